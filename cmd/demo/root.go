package demo

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/docKV/lib/db"
	"github.com/ValentinKolb/docKV/lib/db/engines/maple"
	"github.com/ValentinKolb/docKV/lib/store"
	"github.com/spf13/cobra"
)

// DemoCmd walks through the basic record life cycle on an in-memory database
var DemoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Runs a short walkthrough on an in-memory database",
	Long: `Runs a short walkthrough on an in-memory database: it creates the
collection users with the index name, inserts Alice, soft-deletes her and
shows that select no longer returns her.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return Run(cmd.Context(), maple.NewMapleEngine(), os.Stdout)
	},
}

// User is the record type of the walkthrough.
type User struct {
	store.Record
	Name string `json:"name,omitempty"`
	Age  int    `json:"age,omitempty"`
}

// Run executes the walkthrough on engine and writes each step to w.
func Run(ctx context.Context, engine db.Engine, w io.Writer) error {
	conn, err := store.Connect(ctx, engine, "demo", 1, func(s db.Schema) error {
		return store.CreateStore(s, "users", store.IndexDef{Name: "name"})
	})
	if err != nil {
		return err
	}
	defer store.Close(conn)
	fmt.Fprintf(w, "connected to %s (version %d)\n", conn.Name(), conn.Version())

	users := store.BindStore[User](conn, "users")

	id, err := users.Upsert(User{Name: "Alice", Age: 28})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "upsert  -> id=%s\n", id)

	u, err := users.Get(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "get     -> name=%s, age=%d, is_delete=%t\n", u.Name, u.Age, u.IsDelete)

	byName, err := users.GetByIndex("name", "Alice")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "by name -> id=%s\n", byName.ID)

	ok, err := users.Delete(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "delete  -> %t\n", ok)

	if u, err = users.Get(id); err != nil {
		return err
	}
	fmt.Fprintf(w, "get     -> is_delete=%t, deleted=%s\n", u.IsDelete, u.Deleted)

	selected, err := users.Select(func(User) bool { return true })
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "select  -> %d records\n", len(selected))

	n, err := users.Count()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "count   -> %d records (soft-deleted included)\n", n)
	return nil
}
