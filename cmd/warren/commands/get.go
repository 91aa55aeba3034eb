package commands

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/pkg/runtime"
)

var getCmd = &cobra.Command{
	Use:   "get <id-or-name>",
	Short: "Read one value from the store",
	Long: `Read a single CoValue by content id or registered human-readable
name and print its current content as pretty-printed JSON.

Examples:
  warren get task/report
  warren get co_z7hK2mPqRsT4uVwXyZ1aBcD9`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	router, cleanup, err := connect(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := router.Execute(context.Background(), runtime.Operation{
		Op:  runtime.OpRead,
		Key: args[0],
	})
	if err != nil {
		return printer.Error("Read failed", err.Error(), nil)
	}

	store := result.(*runtime.Store)
	defer store.Close()

	value := store.Get()
	if value == nil {
		return printer.Error(
			"Not found",
			args[0]+" does not resolve to a live value.",
			[]string{"Check the name with: warren seed output, or list via: warren exec '{\"op\":\"read\",\"schema\":\"<schema>\"}'"},
		)
	}

	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return printer.Error("Failed to encode value", err.Error(), nil)
	}
	printer.Println(string(encoded))
	return nil
}
