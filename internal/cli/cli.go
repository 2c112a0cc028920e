// Package cli implements the pathmap command-line interface.
//
// The commands are thin shells around [pipeline.Runner]: they load the
// layered configuration, open the tile cache, build the tile source and
// hand the resulting plates to a sink.
//
// # Commands
//
//   - render: turn a GPX or GeoJSON track into a PDF or a directory of PNGs
//   - serve: expose the same pipeline over HTTP
//   - config: write or show the configuration file
//   - cache: manage the tile cache
//   - completion: generate shell completion scripts
package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/matzehuels/pathmap/internal/config"
	"github.com/matzehuels/pathmap/pkg/buildinfo"
	"github.com/matzehuels/pathmap/pkg/cache"
	"github.com/matzehuels/pathmap/pkg/pipeline"
	"github.com/matzehuels/pathmap/pkg/tiles"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "pathmap"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// configPath is set by the persistent --config flag.
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// verbose reports whether debug logging is on.
func (c *CLI) verbose() bool {
	return c.Logger.GetLevel() <= log.DebugLevel
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "pathmap prints the map along a GPS track",
		Long: `pathmap cuts a narrow map corridor along a GPS track into plates, turns
each plate so the corridor runs lengthwise and flows them onto A4 pages.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/pathmap/config.toml)")

	root.AddCommand(c.renderCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	mustRegisterCompletions(root)
	return root
}

// =============================================================================
// Config and Runner Factory
// =============================================================================

// loadConfig reads the layered configuration. bindings maps config keys to
// flag names of cmd; flags the user did not set leave the key alone.
func (c *CLI) loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	flags := make(map[string]*pflag.Flag, len(bindings))
	for key, name := range bindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			flags[key] = f
		}
	}
	cfg, err := config.Load(config.LoadOptions{Path: c.configPath, Flags: flags})
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		c.Logger.Debug("config loaded", "file", cfg.File)
	}
	return cfg, nil
}

// environment is everything a command needs to draw plates.
type environment struct {
	provider tiles.Provider
	runner   *pipeline.Runner
	store    cache.Cache
}

func (e *environment) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// newEnvironment opens the cache and assembles the runner for cfg. The
// pipeline logs through logger, which may be quieter than the CLI's own.
func (c *CLI) newEnvironment(ctx context.Context, cfg *config.Config, noCache bool, logger *log.Logger) (*environment, error) {
	p, err := cfg.Provider()
	if err != nil {
		return nil, err
	}

	env := &environment{provider: p}
	if !noCache {
		if env.store, err = cfg.OpenCache(ctx); err != nil {
			return nil, err
		}
	}

	src, err := pipeline.NewSource(cfg.SourceOptions(p, env.store, logger))
	if err != nil {
		env.Close()
		return nil, err
	}
	env.runner = pipeline.NewRunner(src, p.Projection(), logger)
	c.Logger.Debug("tile source ready", "provider", p.Name, "zoom", p.Zoom, "cache", cfg.Cache.Backend, "no_cache", noCache)
	return env, nil
}

// pipelineLogger returns the logger handed to the pipeline: the CLI logger
// when verbose, otherwise a copy that only reports warnings so it does not
// break the plate meter line.
func (c *CLI) pipelineLogger() *log.Logger {
	if c.verbose() {
		return c.Logger
	}
	l := c.Logger.With()
	l.SetLevel(log.WarnLevel)
	return l
}
