package database

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/docKV/cmd/util"
	"github.com/ValentinKolb/docKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	// DatabaseCommands represents the database command group
	DatabaseCommands = &cobra.Command{
		Use:   "db",
		Short: "Inspect or drop the database",
	}

	dropCmd = &cobra.Command{
		Use:   "drop",
		Short: "Deletes the database with all collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := util.NewEngine()
			if err != nil {
				return err
			}
			if _, err := store.Drop(cmd.Context(), engine, util.DBName()); err != nil {
				return err
			}
			fmt.Printf("dropped database=%s\n", util.DBName())
			return nil
		},
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints statistics about the database and its collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			info, err := store.Info(conn)
			if err != nil {
				return err
			}
			return util.PrintJSON(info)
		},
	}

	metricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "Counts every collection and prints the operation metrics in Prometheus format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			for _, name := range conn.DB().ObjectStoreNames() {
				if _, err := store.Count(conn, name); err != nil {
					return err
				}
			}
			store.WritePrometheus(os.Stdout)
			return nil
		},
	}
)

func init() {
	DatabaseCommands.AddCommand(dropCmd)
	DatabaseCommands.AddCommand(infoCmd)
	DatabaseCommands.AddCommand(metricsCmd)
}
