// Package setup registers the memory MCP server with desktop and CLI agents.
//
// - Claude Desktop: injects an mcpServers entry into claude_desktop_config.json
// - Claude Code: runs `claude mcp add`
// - Gemini CLI: injects an mcpServers entry into ~/.gemini/settings.json
package setup

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	runtimeGOOS = runtime.GOOS
	userHomeDir = os.UserHomeDir
	lookPathFn  = exec.LookPath
	runCommand  = func(name string, args ...string) ([]byte, error) {
		return exec.Command(name, args...).CombinedOutput()
	}
	executableFn        = os.Executable
	readFileFn          = os.ReadFile
	writeFileFn         = os.WriteFile
	jsonMarshalIndentFn = json.MarshalIndent
)

// ServerName is the key the server is registered under in agent configs.
const ServerName = "memory"

const binaryName = "memory-mcp"

// Agent represents a supported AI agent.
type Agent struct {
	Name        string
	Description string
	InstallDir  string // resolved at runtime (display only for claude-code)
}

// Result holds the outcome of an installation.
type Result struct {
	Agent       string
	Destination string
	Files       int
	// Backup is the copy of the previous config, if one was made.
	Backup string
}

// Options shape the command line the agent launches.
type Options struct {
	DataDir  string
	Backend  string
	LogLevel string
	Tools    string
}

// Args returns the arguments passed to the binary after its path.
func (o Options) Args() []string {
	args := []string{"mcp"}
	if o.Tools != "" {
		args = append(args, "--tools="+o.Tools)
	}
	if o.Backend != "" {
		args = append(args, "--backend="+o.Backend)
	}
	if o.DataDir != "" {
		args = append(args, "--data-dir="+o.DataDir)
	}
	if o.LogLevel != "" {
		args = append(args, "--log-level="+o.LogLevel)
	}
	return args
}

// SupportedAgents returns the agents setup knows how to configure.
func SupportedAgents() []Agent {
	return []Agent{
		{
			Name:        "claude-desktop",
			Description: "Claude Desktop: mcpServers entry in claude_desktop_config.json",
			InstallDir:  claudeDesktopConfigPath(),
		},
		{
			Name:        "claude-code",
			Description: "Claude Code: user-scoped registration via `claude mcp add`",
			InstallDir:  "managed by the claude CLI",
		},
		{
			Name:        "gemini-cli",
			Description: "Gemini CLI: mcpServers entry in settings.json",
			InstallDir:  geminiConfigPath(),
		},
	}
}

// Install registers the server with the given agent.
func Install(agentName string, opts Options) (*Result, error) {
	switch agentName {
	case "claude-desktop":
		return installClaudeDesktop(opts)
	case "claude-code":
		return installClaudeCode(opts)
	case "gemini-cli":
		return installGeminiCLI(opts)
	default:
		return nil, fmt.Errorf("unknown agent: %q (supported: claude-desktop, claude-code, gemini-cli)", agentName)
	}
}

// command returns the absolute path of the running binary when it looks
// like ours, so agents with a minimal PATH can still launch it.
func command() string {
	exe, err := executableFn()
	if err != nil || exe == "" {
		return binaryName
	}
	base := strings.TrimSuffix(filepath.Base(exe), ".exe")
	if base != binaryName {
		return binaryName
	}
	return exe
}

// ─── Claude Desktop ──────────────────────────────────────────────────────────

func installClaudeDesktop(opts Options) (*Result, error) {
	path := claudeDesktopConfigPath()
	backup, err := injectMCPServer(path, opts, true)
	if err != nil {
		return nil, err
	}
	return &Result{
		Agent:       "claude-desktop",
		Destination: path,
		Files:       1,
		Backup:      backup,
	}, nil
}

// ─── Claude Code ─────────────────────────────────────────────────────────────

func installClaudeCode(opts Options) (*Result, error) {
	claudeBin, err := lookPathFn("claude")
	if err != nil {
		return nil, fmt.Errorf("claude CLI not found in PATH, install Claude Code first")
	}

	args := append([]string{"mcp", "add", "--scope", "user", ServerName, "--", command()}, opts.Args()...)
	out, err := runCommand(claudeBin, args...)
	outStr := strings.TrimSpace(string(out))
	if err != nil && !strings.Contains(outStr, "already exists") {
		return nil, fmt.Errorf("claude mcp add failed: %s", outStr)
	}

	return &Result{
		Agent:       "claude-code",
		Destination: "claude mcp registry (user scope)",
	}, nil
}

// ─── Gemini CLI ──────────────────────────────────────────────────────────────

func installGeminiCLI(opts Options) (*Result, error) {
	path := geminiConfigPath()
	if _, err := injectMCPServer(path, opts, false); err != nil {
		return nil, err
	}
	return &Result{
		Agent:       "gemini-cli",
		Destination: path,
		Files:       1,
	}, nil
}

// ─── Config injection ────────────────────────────────────────────────────────

// injectMCPServer sets mcpServers.memory in a JSON config, keeping every
// other key. With backup set, an existing file is first copied to
// <path>.backup and that path is returned.
func injectMCPServer(configPath string, opts Options, backup bool) (string, error) {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	var (
		config     map[string]json.RawMessage
		backupPath string
	)
	data, err := readFileFn(configPath)
	switch {
	case os.IsNotExist(err):
		config = make(map[string]json.RawMessage)
	case err != nil:
		return "", fmt.Errorf("read config: %w", err)
	default:
		if len(strings.TrimSpace(string(data))) == 0 {
			config = make(map[string]json.RawMessage)
		} else if err := json.Unmarshal(data, &config); err != nil {
			return "", fmt.Errorf("parse config %s: %w", configPath, err)
		}
		if backup {
			backupPath = configPath + ".backup"
			if err := writeFileFn(backupPath, data, 0644); err != nil {
				return "", fmt.Errorf("write backup: %w", err)
			}
		}
	}

	var servers map[string]json.RawMessage
	if raw, ok := config["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &servers); err != nil {
			return "", fmt.Errorf("parse mcpServers block: %w", err)
		}
	}
	if servers == nil {
		servers = make(map[string]json.RawMessage)
	}

	entry, err := json.Marshal(map[string]any{
		"command": command(),
		"args":    opts.Args(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal %s entry: %w", ServerName, err)
	}
	servers[ServerName] = entry

	block, err := json.Marshal(servers)
	if err != nil {
		return "", fmt.Errorf("marshal mcpServers block: %w", err)
	}
	config["mcpServers"] = block

	output, err := jsonMarshalIndentFn(config, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	if err := writeFileFn(configPath, append(output, '\n'), 0644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return backupPath, nil
}

// ─── Platform paths ──────────────────────────────────────────────────────────

func claudeDesktopConfigPath() string {
	home, _ := userHomeDir()

	switch runtimeGOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Claude", "claude_desktop_config.json")
		}
		return filepath.Join(home, "AppData", "Roaming", "Claude", "claude_desktop_config.json")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "Claude", "claude_desktop_config.json")
		}
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json")
	}
}

func geminiConfigPath() string {
	home, _ := userHomeDir()

	switch runtimeGOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "gemini", "settings.json")
		}
		return filepath.Join(home, "AppData", "Roaming", "gemini", "settings.json")
	default:
		return filepath.Join(home, ".gemini", "settings.json")
	}
}
