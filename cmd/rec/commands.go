package rec

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ValentinKolb/docKV/cmd/util"
	"github.com/ValentinKolb/docKV/lib/store"
	"github.com/spf13/cobra"
)

type document = map[string]any

var (
	getCmd = &cobra.Command{
		Use:   "get [collection] [id]",
		Short: "Reads a record by id or, with --index, by an index key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			var doc document
			if index, _ := cmd.Flags().GetString("index"); index != "" {
				doc, err = store.GetByIndex[document](conn, args[0], index, ParseKey(args[1]))
			} else {
				doc, err = store.Get[document](conn, args[0], args[1])
			}
			if err != nil {
				return err
			}
			if len(doc) == 0 {
				fmt.Printf("key=%s, found=false\n", args[1])
				return nil
			}
			return util.PrintJSON(doc)
		},
	}

	putCmd = &cobra.Command{
		Use:   "put [collection] [json]",
		Short: "Inserts a record or merges it into the record with the same id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := util.ParseDocument(args[1])
			if err != nil {
				return err
			}

			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			id, err := store.Upsert(conn, args[0], doc, store.UpsertOptions{})
			if err != nil {
				return err
			}
			fmt.Printf("id=%s\n", id)
			return nil
		},
	}

	delCmd = &cobra.Command{
		Use:   "del [collection] [id]",
		Short: "Soft-deletes a record (or removes it with --physical)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			physical, _ := cmd.Flags().GetBool("physical")

			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			if _, err := store.Delete(conn, args[0], args[1], store.DeleteOptions{Logical: !physical}); err != nil {
				return err
			}
			fmt.Printf("key=%s, deleted=true, physical=%t\n", args[1], physical)
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "list [collection]",
		Short: "Lists records in key order, optionally restricted to a key range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := store.ListOptions{}
			opts.Index, _ = cmd.Flags().GetString("index")
			if cmd.Flags().Changed("from") {
				from, _ := cmd.Flags().GetString("from")
				opts.From = rangeKey(opts.Index, from)
			}
			if cmd.Flags().Changed("to") {
				to, _ := cmd.Flags().GetString("to")
				opts.To = rangeKey(opts.Index, to)
			}

			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			docs, err := store.List[document](conn, args[0], opts)
			if err != nil {
				return err
			}
			return util.PrintJSON(docs)
		},
	}

	selectCmd = &cobra.Command{
		Use:   "select [collection]",
		Short: "Scans a collection and prints the records whose --field equals --equals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, _ := cmd.Flags().GetString("field")
			equals, _ := cmd.Flags().GetString("equals")
			includeDeleted, _ := cmd.Flags().GetBool("include-deleted")

			var where func(document) bool
			if field != "" {
				where = func(doc document) bool {
					return fmt.Sprint(doc[field]) == equals
				}
			}

			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			docs, err := store.Select(conn, args[0], where, store.SelectOptions{IncludeDeleted: includeDeleted})
			if err != nil {
				return err
			}
			return util.PrintJSON(docs)
		},
	}

	countCmd = &cobra.Command{
		Use:   "count [collection]",
		Short: "Counts the records of a collection (soft-deleted ones included)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			n, err := store.Count(conn, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("collection=%s, count=%d\n", args[0], n)
			return nil
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear [collection]",
		Short: "Removes every record of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeConn, err := util.Connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeConn()

			if _, err := store.Clear(conn, args[0]); err != nil {
				return err
			}
			fmt.Println("clear successfully")
			return nil
		},
	}
)

func init() {
	getCmd.Flags().String("index", "", util.WrapString("Look the record up by this index instead of the id"))

	delCmd.Flags().Bool("physical", false, util.WrapString("Remove the record instead of marking it as deleted"))

	listCmd.Flags().String("index", "", util.WrapString("Apply the range to this index instead of the id"))
	listCmd.Flags().String("from", "", util.WrapString("Lower bound (inclusive)"))
	listCmd.Flags().String("to", "", util.WrapString("Upper bound (inclusive)"))

	selectCmd.Flags().String("field", "", util.WrapString("Top level field to compare. Without it every record is selected"))
	selectCmd.Flags().String("equals", "", util.WrapString("Value the field must have (compared as text)"))
	selectCmd.Flags().Bool("include-deleted", false, util.WrapString("Also select soft-deleted records"))
}

// ParseKey converts a command line index key into a number if possible.
func ParseKey(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return s
}

// rangeKey parses a range bound. Primary keys are always strings.
func rangeKey(index, s string) any {
	if index == "" {
		return s
	}
	return ParseKey(s)
}
