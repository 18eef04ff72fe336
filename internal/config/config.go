// Package config provides configuration management for the trajcut agent.
// Configuration is loaded from defaults, an optional TOML file, and
// environment variable overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// Default values
	DefaultPort           = 8787
	DefaultLogLevel       = "info"
	DefaultDataDir        = ".trajcut"
	DefaultServiceURL     = "http://127.0.0.1:3596"
	DefaultServiceTimeout = 120 // seconds

	// Environment variable names
	EnvConfigPath     = "TRAJCUT_CONFIG"
	EnvPort           = "TRAJCUT_PORT"
	EnvLogLevel       = "TRAJCUT_LOG_LEVEL"
	EnvLogFormat      = "TRAJCUT_LOG_FORMAT"
	EnvDataDir        = "TRAJCUT_DATA_DIR"
	EnvServiceURL     = "TRAJCUT_SERVICE_URL"
	EnvServiceToken   = "TRAJCUT_SERVICE_TOKEN"
	EnvServiceTimeout = "TRAJCUT_SERVICE_TIMEOUT"
	EnvMediaRoot      = "TRAJCUT_MEDIA_ROOT"
	EnvHeadless       = "TRAJCUT_HEADLESS"

	// Database filename
	DBFilename = "trajcut.db"

	// Lock filename guarding a single agent per data dir
	LockFilename = "trajcut.lock"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	LockPath() string
	MediaRoot() string
	ServiceURL() string
	ServiceToken() string
	ServiceTimeout() time.Duration
	Headless() bool
}

// fileConfig mirrors the TOML layout. Zero values mean "not set".
type fileConfig struct {
	Port      int    `toml:"port"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	DataDir   string `toml:"data_dir"`
	MediaRoot string `toml:"media_root"`
	Headless  *bool  `toml:"headless"`

	Service struct {
		URL            string `toml:"url"`
		Token          string `toml:"token"`
		TimeoutSeconds int    `toml:"timeout_seconds"`
	} `toml:"service"`
}

// EnvConfig holds the resolved configuration.
type EnvConfig struct {
	port      int
	logLevel  string
	logFormat string
	dataDir   string
	mediaRoot string
	headless  bool

	serviceURL     string
	serviceToken   string
	serviceTimeout time.Duration

	sourcePath string
}

// New creates a config with defaults, then applies the TOML file at path (or
// at $TRAJCUT_CONFIG when path is empty) and finally environment overrides.
// A missing file is not an error.
func New(path string) (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		serviceURL:     DefaultServiceURL,
		serviceTimeout: DefaultServiceTimeout * time.Second,
	}

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.mediaRoot == "" {
		cfg.mediaRoot = filepath.Join(cfg.dataDir, "projects")
	}

	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Port != 0 {
		if fc.Port < 1 || fc.Port > 65535 {
			return fmt.Errorf("invalid port in %s: must be between 1 and 65535", path)
		}
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		c.logFormat = fc.LogFormat
	}
	if fc.DataDir != "" {
		c.dataDir = expandHome(fc.DataDir)
	}
	if fc.MediaRoot != "" {
		c.mediaRoot = expandHome(fc.MediaRoot)
	}
	if fc.Headless != nil {
		c.headless = *fc.Headless
	}
	if fc.Service.URL != "" {
		c.serviceURL = strings.TrimRight(fc.Service.URL, "/")
	}
	if fc.Service.Token != "" {
		c.serviceToken = fc.Service.Token
	}
	if fc.Service.TimeoutSeconds > 0 {
		c.serviceTimeout = time.Duration(fc.Service.TimeoutSeconds) * time.Second
	}

	c.sourcePath = path
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}
	if lf := os.Getenv(EnvLogFormat); lf != "" {
		c.logFormat = lf
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}
	if mr := os.Getenv(EnvMediaRoot); mr != "" {
		c.mediaRoot = mr
	}

	if u := os.Getenv(EnvServiceURL); u != "" {
		c.serviceURL = strings.TrimRight(u, "/")
	}
	if tok := os.Getenv(EnvServiceToken); tok != "" {
		c.serviceToken = tok
	}
	if t := os.Getenv(EnvServiceTimeout); t != "" {
		secs, err := strconv.Atoi(t)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid %s: must be a positive number of seconds", EnvServiceTimeout)
		}
		c.serviceTimeout = time.Duration(secs) * time.Second
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = headless
	}

	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFormat returns "json", "text", or "" for terminal auto-detection.
func (c *EnvConfig) LogFormat() string {
	return c.logFormat
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) LockPath() string {
	return filepath.Join(c.dataDir, LockFilename)
}

// MediaRoot is the directory clip source URIs are resolved against.
func (c *EnvConfig) MediaRoot() string {
	return c.mediaRoot
}

func (c *EnvConfig) ServiceURL() string {
	return c.serviceURL
}

func (c *EnvConfig) ServiceToken() string {
	return c.serviceToken
}

func (c *EnvConfig) ServiceTimeout() time.Duration {
	return c.serviceTimeout
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

// SourcePath returns the config file that was loaded, if any.
func (c *EnvConfig) SourcePath() string {
	return c.sourcePath
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
