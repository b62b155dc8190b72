package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/wty0512/memory-mcp-server/internal/config"
	"github.com/wty0512/memory-mcp-server/internal/logger"
	"github.com/wty0512/memory-mcp-server/internal/mcp"
	"github.com/wty0512/memory-mcp-server/internal/mdstore"
	"github.com/wty0512/memory-mcp-server/internal/reconcile"
	"github.com/wty0512/memory-mcp-server/internal/server"
	"github.com/wty0512/memory-mcp-server/internal/setup"
	"github.com/wty0512/memory-mcp-server/internal/tui"
)

// ─── mcp / serve / tui ───────────────────────────────────────────────────────

func (a *app) mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.open()
			if err != nil {
				return err
			}
			defer b.Close()

			logger.ForComponent("mcp").Info("serving over stdio",
				"backend", a.cfg.Backend,
				"data_dir", a.cfg.DataDir,
				"tools", a.cfg.Tools,
			)
			return mcpserver.ServeStdio(mcp.NewServerWithTools(b, mcp.ResolveTools(a.cfg.Tools)))
		},
	}
	cmd.Flags().String("tools", "", "tool profile: agent, admin, all, or a comma-separated tool list")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API on 127.0.0.1",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.open()
			if err != nil {
				return err
			}
			defer b.Close()

			err = server.New(b, a.cfg.Port).Start()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Int("port", 0, "listen port (default 7438)")
	return cmd
}

func (a *app) tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse memories in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := a.open()
			if err != nil {
				return err
			}
			defer b.Close()

			model := tui.New(b, version).WithSetupOptions(a.setupOptions())
			_, err = tea.NewProgram(model).Run()
			return err
		},
	}
}

// ─── sync / reindex ──────────────────────────────────────────────────────────

func (a *app) syncCmd() *cobra.Command {
	var include string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy new entries from the markdown directory into SQLite",
		Long: `Copy entries from the markdown directory into the SQLite store. Sync is
additive: entries already copied are skipped, and nothing is ever deleted
from SQLite. With --watch, sync runs again whenever a markdown file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := mdstore.New(a.cfg.MarkdownDir, a.cfg.MarkdownOptions())
			if err != nil {
				return err
			}
			dst, err := a.openSQLite()
			if err != nil {
				return err
			}
			defer dst.Close()

			out := cmd.OutOrStdout()
			result, err := reconcile.Sync(src, dst)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Synced %s: %d imported, %d already present\n", src.Dir(), result.Imported, result.Skipped)

			if !a.cfg.Sync.Watch {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(out, "Watching %s (ctrl+c to stop)\n", src.Dir())
			return reconcile.Watch(ctx, reconcile.WatchConfig{
				Dir:      src.Dir(),
				Pattern:  include,
				Debounce: a.cfg.Sync.Debounce,
			}, func(paths []string) {
				result, err := reconcile.Sync(src, dst)
				if err != nil {
					logger.ForComponent("sync").Error("sync failed", "files", len(paths), "error", err)
					return
				}
				if result.Imported > 0 {
					fmt.Fprintf(out, "Synced %d new %s\n", result.Imported, plural(result.Imported, "entry", "entries"))
				}
			})
		},
	}
	cmd.Flags().Bool("watch", false, "keep running and sync on every change")
	cmd.Flags().StringVar(&include, "include", reconcile.DefaultPattern, "with --watch, only react to files matching this glob")
	return cmd
}

func (a *app) reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the SQLite full-text index from the entries table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openSQLite()
			if err != nil {
				return err
			}
			defer s.Close()

			missing, orphaned, err := s.IndexConsistency()
			if err != nil {
				return err
			}
			n, err := s.Reindex()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reindexed %d %s (%d missing, %d orphaned before)\n",
				n, plural(n, "entry", "entries"), missing, orphaned)
			return nil
		},
	}
}

// ─── setup / config ──────────────────────────────────────────────────────────

func (a *app) setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup [agent]",
		Short: "Register the MCP server with an agent (claude-desktop, claude-code, gemini-cli)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(out, "Supported agents:")
				for _, agent := range setup.SupportedAgents() {
					fmt.Fprintf(out, "  %-15s %s\n  %-15s config: %s\n", agent.Name, agent.Description, "", agent.InstallDir)
				}
				fmt.Fprintln(out, "\nRun: memory-mcp setup <agent>")
				return nil
			}

			result, err := setup.Install(args[0], a.setupOptions())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Registered %q with %s\n", setup.ServerName, result.Agent)
			fmt.Fprintf(out, "  Location: %s\n", result.Destination)
			if result.Backup != "" {
				fmt.Fprintf(out, "  Backup:   %s\n", result.Backup)
			}
			fmt.Fprintf(out, "Restart %s to load the server.\n", result.Agent)
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialize the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), a.cfg)
		},
	}, &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml into the data directory",
		Args:  cobra.NoArgs,
		// An explicit --config that does not exist yet is the file to create.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.configPath != "" {
				if _, err := os.Stat(a.configPath); os.IsNotExist(err) {
					return nil
				}
			}
			return a.load(cmd, args)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.configPath
			if path == "" {
				path = filepath.Join(a.cfg.DataDir, config.ConfigFile)
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	})
	return cmd
}
