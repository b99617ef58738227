// Package cli implements the widgetd command-line interface.
//
// The main commands are:
//   - serve: run the HTTP API over the configured store
//   - config: write or show the effective configuration
//   - snapshot: export the store to, or import it from, a blob store
//   - widgets: inspect the configured store from the terminal
//
// All commands accept --verbose (-v) for debug logging and --config to point
// at a TOML file. Loggers travel through context.Context.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"widgetcore/internal/config"
	"widgetcore/internal/core"
)

const appName = "widgetd"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger     *log.Logger
	configPath string
}

// New creates a CLI writing logs to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:          appName,
		Short:        "widgetd serves z-ordered widgets over HTTP",
		Long:         `widgetd stores rectangular widgets with a unique z-index, shifting neighbours on insert, and lists them page by page with an optional area filter.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if verbose {
				c.SetLogLevel(LogDebug)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a widgetcore.toml file")

	root.AddCommand(c.serveCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.snapshotCommand())
	root.AddCommand(c.widgetsCommand())
	return root
}

// Execute runs the root command with ctx.
func (c *CLI) Execute(ctx context.Context, args []string) error {
	root := c.RootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (c *CLI) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openService opens the configured store and wraps it in a service. The
// returned close function releases durable stores.
func (c *CLI) openService(ctx context.Context, cfg config.Config, opts ...core.Option) (*core.Service, func(), error) {
	store, err := core.OpenPersistentStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	logger := loggerFromContext(ctx)
	logger.Debug("store opened", "driver", cfg.Storage.Driver)
	opts = append([]core.Option{
		core.WithLogger(logger),
		core.WithPaging(core.Paging{DefaultSize: cfg.Paging.DefaultSize, MaxSize: cfg.Paging.MaxSize}),
	}, opts...)
	closeFn := func() {
		if closer, ok := store.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("close store", "err", err)
			}
		}
	}
	return core.NewService(store, opts...), closeFn, nil
}
