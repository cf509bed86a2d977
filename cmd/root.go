package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/docKV/cmd/database"
	"github.com/ValentinKolb/docKV/cmd/demo"
	"github.com/ValentinKolb/docKV/cmd/rec"
	"github.com/ValentinKolb/docKV/cmd/schema"
	"github.com/ValentinKolb/docKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dockv",
		Short: "versioned document store",
		Long: fmt.Sprintf(`docKV (v%s)

A typed document store written in Go. Records are JSON objects kept in
collections of a versioned database, with secondary indexes, key range
queries and soft deletes.

Configuration can be set via command line flags or environment variables.
The format of the environment variables is DOCKV_<flag> (e.g. DOCKV_DATA_DIR=/var/lib/dockv).`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return util.BindCommandFlags(cmd) },
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of docKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("docKV v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(schema.StoreCommands)
	RootCmd.AddCommand(rec.RecordCommands)
	RootCmd.AddCommand(database.DatabaseCommands)
	RootCmd.AddCommand(demo.DemoCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupDBFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
// SIGINT and SIGTERM cancel the context of the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
