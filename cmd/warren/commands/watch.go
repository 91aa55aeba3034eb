package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/pkg/costore"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream the store's change feed",
	Long: `Subscribe to the instance's change events and print one line per
mutation (create, update, delete, append, message) until interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	sub, err := router.Store().SubscribeChanges(ctx)
	if err != nil {
		return printer.Error("Failed to subscribe to change events", err.Error(), nil)
	}
	defer sub.Close()

	printer.Step("Watching instance %q (ctrl-c to stop)\n", cfg.Instance)

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			printer.Event("%s\n", formatChangeEvent(ev))
		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			printer.Warning("change feed: %v\n", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// formatChangeEvent renders one change-feed line. The schema column is
// omitted for schema-less values (inboxes, actor contexts).
func formatChangeEvent(ev *costore.ChangeEvent) string {
	if ev.Schema != "" {
		return fmt.Sprintf("%-8s %s  %s  schema=%s", ev.Op, ev.Kind, ev.ID, ev.Schema)
	}
	return fmt.Sprintf("%-8s %s  %s", ev.Op, ev.Kind, ev.ID)
}
