package commands

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/actor"
	"github.com/dyluth/warren/internal/machine"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/pkg/runtime"
)

var sendCmd = &cobra.Command{
	Use:   "send <actor> <type> [payload-json]",
	Short: "Deliver a message to an actor's inbox",
	Long: `Append a message to an actor's inbox and drain it once. The payload
must be a JSON object with no unresolved expression placeholders - inbox
entries are durable and replicated.

Examples:
  warren send actor/tasks CREATE
  warren send actor/tasks CREATE '{"title": "write the report"}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	router, cleanup, err := connect(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var payload map[string]any
	if len(args) == 3 {
		if err := json.Unmarshal([]byte(args[2]), &payload); err != nil {
			return printer.Error(
				"Invalid payload",
				err.Error(),
				[]string{"Pass the payload as a JSON object, e.g. '{\"title\": \"x\"}'"},
			)
		}
	}

	tools := machine.NewToolRegistry()
	if err := tools.Register(machine.OperationToolName, machine.NewOperationTool(router)); err != nil {
		return printer.Error("Failed to register built-in tools", err.Error(), nil)
	}
	interp := machine.NewInterpreter(router, tools, cfg.ToolTimeoutDuration())
	rt := actor.NewRuntime(router, interp)

	ctx := context.Background()
	if err := rt.Send(ctx, args[0], args[1], payload, ""); err != nil {
		return printer.Error("Delivery failed", err.Error(), nil)
	}

	result, err := router.Execute(ctx, runtime.Operation{Op: runtime.OpProcessInbox, Actor: args[0]})
	if err != nil {
		return printer.Error("Inbox processing failed", err.Error(), nil)
	}

	printer.Success("Delivered %s to %s (%d message(s) processed)\n",
		args[1], args[0], result.(*runtime.ProcessInboxResult).Processed)
	return nil
}
