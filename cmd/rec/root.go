package rec

import (
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var (
	log = logger.GetLogger("cli")

	// RecordCommands represents the record command group
	RecordCommands = &cobra.Command{
		Use:   "rec",
		Short: "Perform record operations on a collection",
		Long: `Perform record operations on a collection. Records are JSON objects,
every stored record carries the fields id, inserted, updated, deleted
and is_delete.`,
	}
)

func init() {
	RecordCommands.AddCommand(getCmd)
	RecordCommands.AddCommand(putCmd)
	RecordCommands.AddCommand(delCmd)
	RecordCommands.AddCommand(listCmd)
	RecordCommands.AddCommand(selectCmd)
	RecordCommands.AddCommand(countCmd)
	RecordCommands.AddCommand(clearCmd)
	RecordCommands.AddCommand(perfTestCmd)
}
