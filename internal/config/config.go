package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Delete payload modes for file deletions seen by the watcher.
const (
	// DeletePayloadLegacy sends the directory-shaped payload: empty file
	// name, path and content with directory set to the deleted path.
	DeletePayloadLegacy = "legacy"

	// DeletePayloadFile sends the deleted file's name, path and parent
	// directory, mirroring the create/update payload without content.
	DeletePayloadFile = "file"
)

// Config holds all environment-based configuration for project-sync.
type Config struct {
	// Remote API root. Requests go to <BaseURL>/developer/api/v1/...
	BaseURL string `env:"BASE_URL"`

	// Bearer token. When empty the cached session in the state database
	// is used, falling back to SessionFile.
	APIToken string `env:"API_TOKEN"`

	// Session file written by the login tool: {"user":..., "authorization":{"token":...}}
	SessionFile string `env:"SESSION_FILE" envDefault:"session-lock.json"`

	// State database holding the cached session and the sync ledger.
	// Defaults to ~/.project-sync/state.db.
	StatePath string `env:"STATE_PATH"`

	// Local root containing one directory per tenant.
	ProjectsDir string `env:"PROJECTS_DIR" envDefault:"projects"`

	// Tenant used when none is given on the command line.
	Tenant string `env:"TENANT"`

	IgnoreExtensions []string `env:"IGNORE_EXTENSIONS" envSeparator:"," envDefault:".gitkeep,.ignore,.gitignore,.temp,.bak,.sync.json"`
	IgnoreFolders    []string `env:"IGNORE_FOLDERS" envSeparator:"," envDefault:".git"`

	// Payload shape for file deletions: legacy or file.
	DeletePayload string `env:"DELETE_PAYLOAD" envDefault:"legacy"`

	WatchDebounce  time.Duration `env:"WATCH_DEBOUNCE" envDefault:"300ms"`
	WatchQueueSize int           `env:"WATCH_QUEUE_SIZE" envDefault:"256"`

	RequestTimeout        time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	TLSInsecureSkipVerify bool          `env:"TLS_INSECURE_SKIP_VERIFY" envDefault:"false"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. The file may carry an API token.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.IgnoreExtensions = cleanList(cfg.IgnoreExtensions)
	cfg.IgnoreFolders = cleanList(cfg.IgnoreFolders)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		p, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = p
	}

	absDir, err := filepath.Abs(cfg.ProjectsDir)
	if err != nil {
		return nil, fmt.Errorf("resolving projects dir to absolute path: %w", err)
	}

	cfg.ProjectsDir = absDir

	return cfg, nil
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}

	if c.ProjectsDir == "" {
		return fmt.Errorf("PROJECTS_DIR must not be empty")
	}

	switch c.DeletePayload {
	case DeletePayloadLegacy, DeletePayloadFile:
	default:
		return fmt.Errorf("DELETE_PAYLOAD must be %q or %q, got %q", DeletePayloadLegacy, DeletePayloadFile, c.DeletePayload)
	}

	if c.WatchDebounce < 0 {
		return fmt.Errorf("WATCH_DEBOUNCE must not be negative")
	}

	if c.WatchQueueSize <= 0 {
		return fmt.Errorf("WATCH_QUEUE_SIZE must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	return nil
}

// DefaultStatePath returns ~/.project-sync/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".project-sync", "state.db"), nil
}

// TenantDir returns the local root for a tenant: <ProjectsDir>/<tenant>.
func (c *Config) TenantDir(tenant string) (string, error) {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return "", fmt.Errorf("tenant must not be empty")
	}

	if strings.ContainsAny(tenant, `/\`) || tenant == "." || tenant == ".." {
		return "", fmt.Errorf("invalid tenant name %q", tenant)
	}

	return filepath.Join(c.ProjectsDir, tenant), nil
}

// ResolveTenant picks the tenant from the command line, falling back to
// TENANT. Returns an error when neither is set.
func (c *Config) ResolveTenant(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}

	if c.Tenant != "" {
		return c.Tenant, nil
	}

	return "", fmt.Errorf("no tenant given: pass one as an argument or set TENANT")
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// cleanList trims entries and drops empty ones.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))

	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		out = append(out, s)
	}

	return out
}
