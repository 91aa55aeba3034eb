package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/actor"
	"github.com/dyluth/warren/internal/machine"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/seed"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Run the warren runtime",
	Long: `Connect to the store, apply the configured seed bundles, and run the
actor runtime until interrupted.

While running, warren watches the store's change feed and drains actor
inboxes as messages arrive - including the synthetic SUCCESS/ERROR events
tool invocations route back.`,
	RunE: runUp,
}

func init() {
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	router, cleanup, err := connect(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := router.Store().Ping(ctx); err != nil {
		return printer.Error(
			"Cannot reach Redis",
			err.Error(),
			[]string{"Start Redis, or point --redis at a reachable address"},
		)
	}

	if len(cfg.Seeds) > 0 {
		printer.Step("Seeding %d bundle(s)\n", len(cfg.Seeds))
		result, err := seed.LoadAndApply(ctx, router, cfg.Seeds...)
		if err != nil {
			return printer.Error("Seeding failed", err.Error(), nil)
		}
		printer.Success("Seeded: %d created, %d skipped\n", result.Created, result.Skipped)
	}

	tools := machine.NewToolRegistry()
	if err := tools.Register(machine.OperationToolName, machine.NewOperationTool(router)); err != nil {
		return printer.Error("Failed to register built-in tools", err.Error(), nil)
	}

	interp := machine.NewInterpreter(router, tools, cfg.ToolTimeoutDuration())
	rt := actor.NewRuntime(router, interp)

	printer.Success("Warren instance %q is up (session %s)\n", cfg.Instance, rt.Session())

	if err := rt.Run(ctx); err != nil && ctx.Err() == nil {
		return printer.Error("Runtime stopped unexpectedly", err.Error(), nil)
	}
	printer.Info("Shutting down\n")
	return nil
}
