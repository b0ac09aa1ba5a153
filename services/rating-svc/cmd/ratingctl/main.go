// Command ratingctl administers the rating service: schema migrations,
// one-off rating lookups, catalog export and local test tokens.
//
// Usage:
//
//	ratingctl migrate up|down|status|version
//	ratingctl resolve --w 40 --t 10 --b 3 --angle 90 --a 60 --icc 50 --force 8000 --poles 3
//	ratingctl catalog export -o catalog.xlsx
//	ratingctl token --user u1 --role admin
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"busbar/pkg/config"
	"busbar/pkg/logger"
)

var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func (g *globalFlags) load() (*config.Config, error) {
	var opts []config.LoaderOption
	if g.configPath != "" {
		opts = append(opts, config.WithConfigPaths(g.configPath))
	}
	cfg, err := config.NewLoader(opts...).Load()
	if err != nil {
		return nil, err
	}
	logger.InitWithConfig(logger.Config{
		Level:  g.logLevel,
		Format: "text",
		Output: "stderr",
	})
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "ratingctl",
		Short:         "Administer the busbar rating service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (default: search paths)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(newMigrateCmd(g))
	rootCmd.AddCommand(newResolveCmd(g))
	rootCmd.AddCommand(newCatalogCmd(g))
	rootCmd.AddCommand(newTokenCmd(g))

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
