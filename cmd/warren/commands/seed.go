package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/seed"
)

var seedFiles []string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply seed bundles to the store",
	Long: `Load one or more YAML seed bundles and apply them through the
operation router. Schemas are created first and human-readable references
are rewritten to content ids before anything is persisted.

Seeding is idempotent: documents whose names are already registered are
skipped.

Examples:
  warren seed -f seeds/schemas.yml
  warren seed -f seeds/schemas.yml -f seeds/actors.yml`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringArrayVarP(&seedFiles, "file", "f", nil, "Seed bundle to apply (repeatable)")
	seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	router, cleanup, err := connect(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := seed.LoadAndApply(context.Background(), router, seedFiles...)
	if err != nil {
		return printer.Error(
			"Seeding failed",
			err.Error(),
			[]string{"Fix the reported document and re-run; already seeded documents are skipped"},
		)
	}

	printer.Success("Seeded: %d created, %d skipped\n", result.Created, result.Skipped)
	for name, id := range result.IDs {
		printer.Printf("  %s -> %s\n", name, id)
	}
	return nil
}
