// memory-mcp: project and global memory for AI agents.
//
// Usage:
//
//	memory-mcp mcp               Start the MCP server (stdio transport)
//	memory-mcp serve             Start the local HTTP API
//	memory-mcp tui               Browse memories in the terminal
//	memory-mcp save <content>    Save a memory from the CLI
//	memory-mcp search <query>    Search memories from the CLI
//	memory-mcp export <project>  Export a project to markdown, json, csv or txt
//	memory-mcp setup [agent]     Register the server with an agent
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wty0512/memory-mcp-server/internal/config"
	"github.com/wty0512/memory-mcp-server/internal/logger"
	"github.com/wty0512/memory-mcp-server/internal/mcp"
	"github.com/wty0512/memory-mcp-server/internal/setup"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "memory-mcp: %s\n", describeError(err))
		os.Exit(1)
	}
}

// app carries the resolved configuration into every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "memory-mcp",
		Short:             "Project and global memory for AI agents, served over MCP",
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default <data-dir>/config.yaml)")
	pf.String("data-dir", "", "data directory (default ~/.memory-mcp)")
	pf.String("backend", "", "storage backend: sqlite or markdown")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")

	root.AddCommand(
		a.mcpCmd(),
		a.serveCmd(),
		a.tuiCmd(),
		a.saveCmd(),
		a.getCmd(),
		a.listCmd(),
		a.searchCmd(),
		a.editCmd(),
		a.deleteCmd(),
		a.deleteProjectCmd(),
		a.projectsCmd(),
		a.statsCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.syncCmd(),
		a.reindexCmd(),
		a.setupCmd(),
		a.configCmd(),
		versionCmd(),
	)
	return root
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	logger.Init(cfg.LoggerConfig())
	mcp.Version = version
	a.cfg = cfg
	return nil
}

// open opens the configured backend.
func (a *app) open() (store.Backend, error) {
	return a.cfg.OpenBackend()
}

// openSQLite opens the SQLite store regardless of the configured backend,
// for commands that only make sense against it.
func (a *app) openSQLite() (*store.Store, error) {
	return store.New(a.cfg.StoreConfig())
}

// setupOptions only spells out settings that differ from the defaults, so
// agent configs stay short.
func (a *app) setupOptions() setup.Options {
	opts := setup.Options{Tools: a.cfg.Tools}
	if a.cfg.Backend != config.BackendSQLite {
		opts.Backend = a.cfg.Backend
	}
	if a.cfg.DataDir != config.DefaultDataDir() {
		opts.DataDir = a.cfg.DataDir
	}
	if a.cfg.Log.Level != "info" {
		opts.LogLevel = a.cfg.Log.Level
	}
	return opts
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No config needed to print a version.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "memory-mcp %s\n", version)
		},
	}
}

// describeError prefixes store errors with their kind.
func describeError(err error) string {
	var se *store.Error
	if errors.As(err, &se) {
		return fmt.Sprintf("%s: %s", se.Kind, err)
	}
	return err.Error()
}
