package commands

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/pkg/runtime"
	"github.com/dyluth/warren/pkg/schema"
)

var execCmd = &cobra.Command{
	Use:   "exec <operation-json>",
	Short: "Execute one router operation",
	Long: `Execute a single tagged operation against the store and print the
result. Reads print a snapshot of the live store's current value.

Examples:
  warren exec '{"op": "create", "schema": "schema/task", "data": {"title": "x"}}'
  warren exec '{"op": "read", "schema": "schema/task", "filter": {"status": "open"}}'
  warren exec '{"op": "resolve", "ref": "schema/task"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	router, cleanup, err := connect(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var op runtime.Operation
	if err := json.Unmarshal([]byte(args[0]), &op); err != nil {
		return printer.Error(
			"Invalid operation",
			err.Error(),
			[]string{"Pass the operation as a JSON object, e.g. '{\"op\": \"read\", \"key\": \"task/report\"}'"},
		)
	}

	result, err := router.Execute(context.Background(), op)
	if err != nil {
		if ve, ok := schema.AsValidation(err); ok {
			lines := make([]string, 0, len(ve.Violations))
			for _, v := range ve.Violations {
				lines = append(lines, v.Path+": "+v.Message)
			}
			return printer.Violations("Validation failed", lines)
		}
		return printer.Error("Operation failed", err.Error(), nil)
	}

	var value any = result
	if store, ok := result.(*runtime.Store); ok {
		value = store.Get()
		store.Close()
	}
	if value == nil {
		printer.Println("null")
		return nil
	}

	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return printer.Error("Failed to encode result", err.Error(), nil)
	}
	printer.Println(string(encoded))
	return nil
}
