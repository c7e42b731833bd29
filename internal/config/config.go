package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// DailyCredits is the number of captures allowed per credit window.
	DailyCredits int `json:"daily_credits"`

	// CreditWindowHours is the length of the credit window. The window is
	// anchored at session start and advances in whole windows.
	CreditWindowHours int `json:"credit_window_hours"`

	// AnalysisDelayMillis is how long the built-in analyzer takes to answer.
	AnalysisDelayMillis int `json:"analysis_delay_ms"`

	// AnalysisTimeoutSeconds bounds every analysis run.
	AnalysisTimeoutSeconds int `json:"analysis_timeout_seconds"`

	// MaxUploadBytes caps the size of a captured image or document.
	MaxUploadBytes int64 `json:"max_upload_bytes"`

	// SessionIdleHours is how long an idle web session keeps its gate.
	SessionIdleHours int `json:"session_idle_hours"`

	// StrictInvariants makes entitlement invariant violations panic instead of clamping.
	// Intended for development builds.
	StrictInvariants bool `json:"strict_invariants,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is one of json, console, auto.
	LogFormat string `json:"log_format,omitempty"`

	// AllowedPaths is an allowlist of directories for export destinations and
	// for files an MCP client asks to capture.
	// Exports outside ~/.atlas/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type names to disable entirely
	// (e.g. "paywall" removes paywall_offer and paywall_resolve).
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DailyCredits:           3,
		CreditWindowHours:      24,
		AnalysisDelayMillis:    3000,
		AnalysisTimeoutSeconds: 30,
		MaxUploadBytes:         20 << 20,
		SessionIdleHours:       48,
		LogLevel:               "info",
		LogFormat:              "auto",
	}
}

// CreditWindow returns the credit window as a duration.
func (c *Config) CreditWindow() time.Duration {
	return time.Duration(c.CreditWindowHours) * time.Hour
}

// AnalysisDelay returns the analyzer delay as a duration.
func (c *Config) AnalysisDelay() time.Duration {
	return time.Duration(c.AnalysisDelayMillis) * time.Millisecond
}

// AnalysisTimeout returns the analysis timeout as a duration.
func (c *Config) AnalysisTimeout() time.Duration {
	return time.Duration(c.AnalysisTimeoutSeconds) * time.Second
}

// SessionIdle returns the web session idle limit as a duration.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleHours) * time.Hour
}

// Validate rejects configurations that would break the entitlement invariants.
func (c *Config) Validate() error {
	if c.DailyCredits <= 0 {
		return fmt.Errorf("daily_credits must be positive, got %d", c.DailyCredits)
	}
	if c.CreditWindowHours <= 0 {
		return fmt.Errorf("credit_window_hours must be positive, got %d", c.CreditWindowHours)
	}
	if c.AnalysisTimeoutSeconds <= 0 {
		return fmt.Errorf("analysis_timeout_seconds must be positive, got %d", c.AnalysisTimeoutSeconds)
	}
	if c.AnalysisDelayMillis < 0 {
		return fmt.Errorf("analysis_delay_ms must not be negative, got %d", c.AnalysisDelayMillis)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	return nil
}

// Load loads configuration from baseDir/config.json, then applies
// environment overrides (baseDir/.env and ./.env are read first).
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, filepath.Join(baseDir, ".env"), ".env"); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadWithRepo loads configuration from both global (~/.atlas) and repo (.atlas) directories.
// Repo config is found by walking upward from startDir to find the nearest .atlas/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Environment overrides apply last.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := ApplyEnv(cfg, filepath.Join(globalDir, ".env"), ".env"); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// FindRepoConfig walks upward from startDir to find the nearest .atlas/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".atlas", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// envOverrides maps ATLAS_* variables onto config fields.
var envOverrides = map[string]func(*Config, string) error{
	"ATLAS_DAILY_CREDITS":            intSetter(func(c *Config, v int) { c.DailyCredits = v }),
	"ATLAS_CREDIT_WINDOW_HOURS":      intSetter(func(c *Config, v int) { c.CreditWindowHours = v }),
	"ATLAS_ANALYSIS_DELAY_MS":        intSetter(func(c *Config, v int) { c.AnalysisDelayMillis = v }),
	"ATLAS_ANALYSIS_TIMEOUT_SECONDS": intSetter(func(c *Config, v int) { c.AnalysisTimeoutSeconds = v }),
	"ATLAS_SESSION_IDLE_HOURS":       intSetter(func(c *Config, v int) { c.SessionIdleHours = v }),
	"ATLAS_MAX_UPLOAD_BYTES": func(c *Config, s string) error {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		c.MaxUploadBytes = v
		return nil
	},
	"ATLAS_STRICT_INVARIANTS": func(c *Config, s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		c.StrictInvariants = v
		return nil
	},
	"ATLAS_LOG_LEVEL":  func(c *Config, s string) error { c.LogLevel = s; return nil },
	"ATLAS_LOG_FORMAT": func(c *Config, s string) error { c.LogFormat = s; return nil },
}

func intSetter(set func(*Config, int)) func(*Config, string) error {
	return func(c *Config, s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		set(c, v)
		return nil
	}
}

// ApplyEnv loads the given .env files (missing files are skipped; variables
// already set in the process environment win) and applies ATLAS_* overrides.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}

	for key, apply := range envOverrides {
		raw, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		if err := apply(cfg, strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.DailyCredits = pickInt(overlay.DailyCredits, base.DailyCredits)
	result.CreditWindowHours = pickInt(overlay.CreditWindowHours, base.CreditWindowHours)
	result.AnalysisDelayMillis = pickInt(overlay.AnalysisDelayMillis, base.AnalysisDelayMillis)
	result.AnalysisTimeoutSeconds = pickInt(overlay.AnalysisTimeoutSeconds, base.AnalysisTimeoutSeconds)
	result.SessionIdleHours = pickInt(overlay.SessionIdleHours, base.SessionIdleHours)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	result.MaxUploadBytes = overlay.MaxUploadBytes
	if result.MaxUploadBytes == 0 {
		result.MaxUploadBytes = base.MaxUploadBytes
	}

	result.LogLevel = overlay.LogLevel
	if result.LogLevel == "" {
		result.LogLevel = base.LogLevel
	}
	result.LogFormat = overlay.LogFormat
	if result.LogFormat == "" {
		result.LogFormat = base.LogFormat
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.StrictInvariants = base.StrictInvariants || overlay.StrictInvariants

	// Arrays: merge and deduplicate
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
