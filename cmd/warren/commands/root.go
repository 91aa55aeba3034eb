package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/config"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/pkg/costore"
	"github.com/dyluth/warren/pkg/runtime"
	"github.com/dyluth/warren/pkg/schema"
)

var (
	version string
	commit  string
	date    string
)

var (
	configPath   string
	instanceName string
	redisAddr    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warren",
	Short: "Warren - Declarative actor runtime on a collaborative store",
	Long: `Warren runs applications expressed as documents: schemas, state
machines and actor definitions seeded into a collaborative, content-addressed
store. Actors exchange messages through durable inboxes and every read is a
live, reactive view.

All durable state lives in Redis-backed collaborative values; warren itself
is stateless and can be restarted at any time.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is specified, show help
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "warren.yml", "Path to warren.yml")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "instance", "n", "", "Instance name (overrides config)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address (overrides config)")
}

// loadConfig resolves the effective configuration from warren.yml and flag
// overrides. A missing config file is fine when --instance supplies the one
// required value.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, printer.Error(
				"Invalid configuration",
				err.Error(),
				[]string{fmt.Sprintf("Check %s against the documented warren.yml format", configPath)},
			)
		}
		cfg = &config.Config{Version: "1.0"}
	}

	if instanceName != "" {
		cfg.Instance = instanceName
	}
	if redisAddr != "" {
		cfg.Redis = &config.RedisConfig{Addr: redisAddr}
	}

	if cfg.Instance == "" {
		return nil, printer.Error(
			"No instance name",
			"Warren needs an instance name to namespace its keys in Redis.",
			[]string{
				fmt.Sprintf("Create %s with an instance field", configPath),
				"Pass --instance <name>",
			},
		)
	}
	return cfg, nil
}

// connect builds a router over the configured store. The returned cleanup
// closes the client.
func connect(cfg *config.Config) (*runtime.Router, func(), error) {
	client, err := costore.NewClient(&redis.Options{Addr: cfg.RedisAddr()}, cfg.Instance)
	if err != nil {
		return nil, nil, printer.Error(
			"Failed to create store client",
			err.Error(),
			nil,
		)
	}

	router := runtime.NewRouter(client, schema.NewRegistry())
	return router, func() { client.Close() }, nil
}
