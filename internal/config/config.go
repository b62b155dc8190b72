// Package config resolves runtime settings from defaults, an optional YAML
// file, MEMORY_* environment variables and command-line flags, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wty0512/memory-mcp-server/internal/logger"
	"github.com/wty0512/memory-mcp-server/internal/mdstore"
	"github.com/wty0512/memory-mcp-server/internal/store"
)

const (
	BackendSQLite   = "sqlite"
	BackendMarkdown = "markdown"

	EnvPrefix  = "MEMORY"
	ConfigFile = "config.yaml"
)

type Config struct {
	DataDir     string       `mapstructure:"data_dir" json:"data_dir"`
	Backend     string       `mapstructure:"backend" json:"backend"`
	MarkdownDir string       `mapstructure:"markdown_dir" json:"markdown_dir"`
	Port        int          `mapstructure:"port" json:"port"`
	Tools       string       `mapstructure:"tools" json:"tools"`
	Log         LogConfig    `mapstructure:"log" json:"log"`
	Search      SearchConfig `mapstructure:"search" json:"search"`
	Sync        SyncConfig   `mapstructure:"sync" json:"sync"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

type SearchConfig struct {
	DefaultLimit      int `mapstructure:"default_limit" json:"default_limit"`
	MaxLimit          int `mapstructure:"max_limit" json:"max_limit"`
	FallbackScanLimit int `mapstructure:"fallback_scan_limit" json:"fallback_scan_limit"`
}

type SyncConfig struct {
	Watch    bool          `mapstructure:"watch" json:"watch"`
	Debounce time.Duration `mapstructure:"debounce" json:"debounce"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"data-dir":   "data_dir",
	"backend":    "backend",
	"log-level":  "log.level",
	"log-format": "log.format",
	"port":       "port",
	"tools":      "tools",
	"watch":      "sync.watch",
}

var userHomeDir = os.UserHomeDir

// DefaultDataDir is ~/.memory-mcp.
func DefaultDataDir() string {
	home, _ := userHomeDir()
	return filepath.Join(home, ".memory-mcp")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("backend", BackendSQLite)
	v.SetDefault("markdown_dir", "")
	v.SetDefault("port", 7438)
	v.SetDefault("tools", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("search.default_limit", 10)
	v.SetDefault("search.max_limit", 100)
	v.SetDefault("search.fallback_scan_limit", 5000)
	v.SetDefault("sync.watch", false)
	v.SetDefault("sync.debounce", "500ms")
}

// Load resolves the configuration. path names an explicit config file; when
// empty, config.yaml inside the data dir is read if present. flags may be
// nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path == "" {
		candidate := filepath.Join(expandHome(v.GetString("data_dir")), ConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.MarkdownDir == "" {
		cfg.MarkdownDir = filepath.Join(cfg.DataDir, "markdown")
	}
	cfg.MarkdownDir = expandHome(cfg.MarkdownDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.Backend != BackendSQLite && c.Backend != BackendMarkdown {
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendSQLite, BackendMarkdown, c.Backend))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 || c.Search.FallbackScanLimit <= 0 {
		errs = append(errs, errors.New("search limits must be positive"))
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		errs = append(errs, fmt.Errorf("search.default_limit %d exceeds search.max_limit %d", c.Search.DefaultLimit, c.Search.MaxLimit))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// StoreConfig is the SQLite store configuration derived from c.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		DataDir:              c.DataDir,
		DefaultSearchResults: c.Search.DefaultLimit,
		MaxSearchResults:     c.Search.MaxLimit,
		FallbackScanLimit:    c.Search.FallbackScanLimit,
	}
}

func (c *Config) MarkdownOptions() mdstore.Options {
	return mdstore.Options{
		DefaultSearchResults: c.Search.DefaultLimit,
		MaxSearchResults:     c.Search.MaxLimit,
	}
}

func (c *Config) LoggerConfig() logger.Config {
	lc := logger.DefaultConfig()
	lc.Level, _ = logger.ParseLevel(c.Log.Level)
	lc.Format = c.Log.Format
	return lc
}

// OpenBackend opens the configured backend.
func (c *Config) OpenBackend() (store.Backend, error) {
	if c.Backend == BackendMarkdown {
		md, err := mdstore.New(c.MarkdownDir, c.MarkdownOptions())
		if err != nil {
			return nil, err
		}
		return md, nil
	}
	db, err := store.New(c.StoreConfig())
	if err != nil {
		return nil, err
	}
	return db, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := userHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// WriteDefault writes a commented config file with every default.
func WriteDefault(path string) error {
	content := `# memory-mcp configuration
# Every key can also be set with a MEMORY_ environment variable,
# e.g. MEMORY_BACKEND=markdown or MEMORY_SEARCH_MAX_LIMIT=50.

# sqlite (default) or markdown
backend: sqlite

# markdown_dir: ~/.memory-mcp/markdown

port: 7438

# MCP tool profile: agent, admin, all, or a comma-separated tool list
tools: ""

log:
  level: info   # debug, info, warn, error
  format: text  # text or json

search:
  default_limit: 10
  max_limit: 100
  fallback_scan_limit: 5000

sync:
  watch: false
  debounce: 500ms
`
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
