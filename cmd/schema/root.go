package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/docKV/cmd/util"
	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	// StoreCommands represents the collection command group
	StoreCommands = &cobra.Command{
		Use:   "store",
		Short: "Create and delete collections",
		Long: `Create and delete collections. Every change opens the database with
its current version plus one and applies the change in the upgrade.`,
	}

	createCmd = &cobra.Command{
		Use:   "create [collection]",
		Short: "Creates a collection with its indexes (existing ones are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, _ := cmd.Flags().GetStringArray("index")
			indexes := make([]store.IndexDef, 0, len(specs))
			for _, spec := range specs {
				idx, err := ParseIndex(spec)
				if err != nil {
					return err
				}
				indexes = append(indexes, idx)
			}

			version, err := bumpVersion(cmd.Context(), func(s db.Schema) error {
				return store.CreateStore(s, args[0], indexes...)
			})
			if err != nil {
				return err
			}
			fmt.Printf("collection=%s, indexes=%d, version=%d\n", args[0], len(indexes), version)
			return nil
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete [collection]",
		Short: "Deletes a collection with all its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := bumpVersion(cmd.Context(), func(s db.Schema) error {
				return s.DeleteObjectStore(args[0])
			})
			if err != nil {
				return err
			}
			fmt.Printf("deleted collection=%s, version=%d\n", args[0], version)
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the collections of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			for _, name := range conn.DB().ObjectStoreNames() {
				fmt.Println(name)
			}
			return nil
		},
	}
)

func init() {
	createCmd.Flags().StringArray("index", nil, util.WrapString("Index to create, format name[:keyPath][!]. A trailing ! makes the index unique. May be repeated"))

	StoreCommands.AddCommand(createCmd)
	StoreCommands.AddCommand(deleteCmd)
	StoreCommands.AddCommand(listCmd)
}

// ParseIndex parses an index definition of the form name[:keyPath][!].
func ParseIndex(spec string) (store.IndexDef, error) {
	var idx store.IndexDef
	if strings.HasSuffix(spec, "!") {
		idx.Unique = true
		spec = strings.TrimSuffix(spec, "!")
	}
	idx.Name, idx.KeyPath, _ = strings.Cut(spec, ":")
	if idx.Name == "" {
		return idx, fmt.Errorf("invalid index %q (expected name[:keyPath][!])", spec)
	}
	return idx, nil
}

// bumpVersion opens the database with its current version plus one and runs
// upgrade. It returns the new version.
func bumpVersion(ctx context.Context, upgrade store.UpgradeFunc) (uint64, error) {
	engine, err := util.NewEngine()
	if err != nil {
		return 0, err
	}

	current, err := store.ConnectLatest(ctx, engine, util.DBName())
	if err != nil {
		return 0, err
	}
	version := current.Version() + 1
	if _, err := store.Close(current); err != nil {
		return 0, err
	}

	conn, err := store.Connect(ctx, engine, util.DBName(), version, upgrade)
	if err != nil {
		return 0, err
	}
	_, err = store.Close(conn)
	return version, err
}
