// Package config provides sift configuration with a defined load order:
// CLI flags > environment variables > repo config > global config > defaults.
//
// Paths:
//   - Repo: .sift/config.toml (relative to the workspace root)
//   - Global: XDG config dir, e.g. ~/.config/sift/config.toml (see os.UserConfigDir)
//
// Environment variables (override config files when set):
//   - SIFT_STATE_DIR, SIFT_WORKFLOWS_DIR, SIFT_STORAGE (file or badger).
//   - SIFT_RETENTION (Go duration, integer seconds, or days such as "7d").
//   - SIFT_SCAN_TIMEOUT, SIFT_BATCH_TOKEN_TTL (Go duration or integer seconds).
//   - SIFT_SCAN_CONCURRENCY, SIFT_MAX_FILES, SIFT_HISTORY_MAX_RECORDS (non-negative integers).
//   - SIFT_LOG_LEVEL (debug, info, warn, error), SIFT_LOG_FORMAT (text, json).
//   - SIFT_METRICS_FILE (Prometheus textfile written after each command).
package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"sift/cli/internal/erruser"
	"sift/cli/internal/logging"
)

// Storage backends for the session store.
const (
	StorageFile   = "file"
	StorageBadger = "badger"
)

// DirName is the per-workspace directory holding config and default state.
const DirName = ".sift"

// Config holds all sift configuration. Empty StateDir means "use
// <root>/.sift"; empty WorkflowsDir means built-in workflow definitions only.
type Config struct {
	StateDir     string `toml:"state_dir"`
	WorkflowsDir string `toml:"workflows_dir"`
	// Storage selects the session store backend: "file" (one JSON document per session) or "badger".
	Storage string `toml:"storage"`
	// Retention is how long a session may go without updates before cleanup deletes it.
	Retention   time.Duration `toml:"retention"`
	ScanTimeout time.Duration `toml:"scan_timeout"`
	// ScanConcurrency bounds how many files the pattern scanner reads at once.
	ScanConcurrency int `toml:"scan_concurrency"`
	// MaxFiles caps discovery when the caller does not pass max_files (0 = unlimited).
	MaxFiles      int           `toml:"max_files"`
	BatchTokenTTL time.Duration `toml:"batch_token_ttl"`
	LogLevel      string        `toml:"log_level"`
	LogFormat     string        `toml:"log_format"`
	MetricsFile   string        `toml:"metrics_file"`
	// HistoryMaxRecords is the active journal size before rotation to gzip (0 = never rotate).
	HistoryMaxRecords int `toml:"history_max_records"`
}

// Overrides represents optional CLI flag overrides. Non-nil pointer means
// "override with this value".
type Overrides struct {
	StateDir          *string
	WorkflowsDir      *string
	Storage           *string
	Retention         *time.Duration
	ScanTimeout       *time.Duration
	ScanConcurrency   *int
	MaxFiles          *int
	BatchTokenTTL     *time.Duration
	LogLevel          *string
	LogFormat         *string
	MetricsFile       *string
	HistoryMaxRecords *int
}

// LoadOptions configures Load. All fields are optional.
type LoadOptions struct {
	// Root is the workspace root; if set, repo config is Root/.sift/config.toml.
	Root string
	// GlobalConfigPath is the global config file path; if empty, XDG path is used.
	GlobalConfigPath string
	// Env is the environment key=value slice; if nil, os.Environ() is used.
	Env []string
	// Overrides are applied last (highest precedence).
	Overrides *Overrides
}

const (
	_defaultStorage           = StorageFile
	_defaultRetention         = 7 * 24 * time.Hour
	_defaultScanTimeout       = 30 * time.Second
	_defaultScanConcurrency   = 4
	_defaultBatchTokenTTL     = 10 * time.Minute
	_defaultLogLevel          = "info"
	_defaultLogFormat         = "text"
	_defaultHistoryMaxRecords = 1000
)

// errIntOverflow is returned when an int64 value does not fit in int.
var errIntOverflow = errors.New("value out of range for int")

func int64ToInt(n int64) (int, error) {
	if n < int64(math.MinInt) || n > int64(math.MaxInt) {
		return 0, errIntOverflow
	}
	return int(n), nil
}

// DefaultConfig returns the default configuration (no I/O).
func DefaultConfig() Config {
	return Config{
		Storage:           _defaultStorage,
		Retention:         _defaultRetention,
		ScanTimeout:       _defaultScanTimeout,
		ScanConcurrency:   _defaultScanConcurrency,
		BatchTokenTTL:     _defaultBatchTokenTTL,
		LogLevel:          _defaultLogLevel,
		LogFormat:         _defaultLogFormat,
		HistoryMaxRecords: _defaultHistoryMaxRecords,
	}
}

// EffectiveStateDir returns the directory holding sessions, reports, the
// journal and the batch key. If StateDir is set, it is returned as-is;
// otherwise root/.sift is returned.
func (c Config) EffectiveStateDir(root string) string {
	if c.StateDir != "" {
		return c.StateDir
	}
	return filepath.Join(root, DirName)
}

// SessionsDir is where the file store writes one JSON document per session.
func (c Config) SessionsDir(root string) string {
	return filepath.Join(c.EffectiveStateDir(root), "sessions")
}

// ReportsDir is where generated reports are written.
func (c Config) ReportsDir(root string) string {
	return filepath.Join(c.EffectiveStateDir(root), "reports")
}

// Load loads configuration with precedence: defaults < global file < repo file < env < overrides.
// Missing config files are ignored. Invalid TOML or invalid env values return an error.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	cfg := DefaultConfig()

	globalPath := opts.GlobalConfigPath
	if globalPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, erruser.New("Could not determine config directory.", err)
		}
		globalPath = filepath.Join(dir, "sift", "config.toml")
	}
	if err := mergeFile(&cfg, globalPath); err != nil {
		return nil, err
	}

	if opts.Root != "" {
		repoPath := filepath.Join(opts.Root, DirName, "config.toml")
		if err := mergeFile(&cfg, repoPath); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, opts.Env); err != nil {
		return nil, err
	}

	if err := applyOverrides(&cfg, opts.Overrides); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeFile reads path and merges into cfg. Only overwrites fields that are
// present in the file. Missing file is skipped (no error).
func mergeFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return erruser.New("Invalid configuration file.", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return erruser.New("Could not read configuration file.", err)
	}
	var file struct {
		StateDir          *string `toml:"state_dir"`
		WorkflowsDir      *string `toml:"workflows_dir"`
		Storage           *string `toml:"storage"`
		Retention         *string `toml:"retention"`
		ScanTimeout       *string `toml:"scan_timeout"`
		ScanConcurrency   *int64  `toml:"scan_concurrency"`
		MaxFiles          *int64  `toml:"max_files"`
		BatchTokenTTL     *string `toml:"batch_token_ttl"`
		LogLevel          *string `toml:"log_level"`
		LogFormat         *string `toml:"log_format"`
		MetricsFile       *string `toml:"metrics_file"`
		HistoryMaxRecords *int64  `toml:"history_max_records"`
	}
	if _, err := toml.Decode(string(data), &file); err != nil {
		return erruser.Newf(err, "Invalid configuration in %s.", path)
	}
	if file.StateDir != nil {
		cfg.StateDir = *file.StateDir
	}
	if file.WorkflowsDir != nil {
		cfg.WorkflowsDir = *file.WorkflowsDir
	}
	if file.Storage != nil && *file.Storage != "" {
		s, err := validateStorage(*file.Storage)
		if err != nil {
			return err
		}
		cfg.Storage = s
	}
	if file.Retention != nil && *file.Retention != "" {
		d, err := ParseRetention(*file.Retention)
		if err != nil {
			return erruser.New("Configuration retention is invalid.", err)
		}
		cfg.Retention = d
	}
	if file.ScanTimeout != nil && *file.ScanTimeout != "" {
		d, err := parseDuration(*file.ScanTimeout)
		if err != nil {
			return erruser.New("Configuration scan_timeout is invalid.", err)
		}
		cfg.ScanTimeout = d
	}
	if file.ScanConcurrency != nil && *file.ScanConcurrency > 0 {
		v, err := int64ToInt(*file.ScanConcurrency)
		if err != nil {
			return erruser.New("Configuration scan_concurrency value out of range.", err)
		}
		cfg.ScanConcurrency = v
	}
	if file.MaxFiles != nil && *file.MaxFiles >= 0 {
		v, err := int64ToInt(*file.MaxFiles)
		if err != nil {
			return erruser.New("Configuration max_files value out of range.", err)
		}
		cfg.MaxFiles = v
	}
	if file.BatchTokenTTL != nil && *file.BatchTokenTTL != "" {
		d, err := parseDuration(*file.BatchTokenTTL)
		if err != nil {
			return erruser.New("Configuration batch_token_ttl is invalid.", err)
		}
		cfg.BatchTokenTTL = d
	}
	if file.LogLevel != nil && *file.LogLevel != "" {
		if _, err := logging.ParseLevel(*file.LogLevel); err != nil {
			return erruser.New("Configuration log_level must be debug, info, warn, or error.", err)
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(*file.LogLevel))
	}
	if file.LogFormat != nil && *file.LogFormat != "" {
		f, err := validateLogFormat(*file.LogFormat)
		if err != nil {
			return err
		}
		cfg.LogFormat = f
	}
	if file.MetricsFile != nil {
		cfg.MetricsFile = *file.MetricsFile
	}
	if file.HistoryMaxRecords != nil && *file.HistoryMaxRecords >= 0 {
		v, err := int64ToInt(*file.HistoryMaxRecords)
		if err != nil {
			return erruser.New("Configuration history_max_records value out of range.", err)
		}
		cfg.HistoryMaxRecords = v
	}
	return nil
}

func validateStorage(s string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm != StorageFile && norm != StorageBadger {
		return "", erruser.New("Invalid storage; use file or badger.", nil)
	}
	return norm, nil
}

func validateLogFormat(s string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if norm != "text" && norm != "json" {
		return "", erruser.New("Invalid log format; use text or json.", nil)
	}
	return norm, nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	// Try Go duration first (e.g. "5m", "30s")
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}
	// Try integer seconds
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(n) * time.Second, nil
}

// ParseRetention accepts everything parseDuration does plus a whole number of
// days with a "d" suffix ("7d"), since time.ParseDuration has no day unit.
func ParseRetention(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		n, err := strconv.ParseInt(strings.TrimSuffix(s, "d"), 10, 64)
		if err == nil {
			if n < 0 {
				return 0, fmt.Errorf("retention %q must not be negative", s)
			}
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	d, err := parseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("retention %q must not be negative", s)
	}
	return d, nil
}

// env key names for config
const (
	envStateDir          = "SIFT_STATE_DIR"
	envWorkflowsDir      = "SIFT_WORKFLOWS_DIR"
	envStorage           = "SIFT_STORAGE"
	envRetention         = "SIFT_RETENTION"
	envScanTimeout       = "SIFT_SCAN_TIMEOUT"
	envScanConcurrency   = "SIFT_SCAN_CONCURRENCY"
	envMaxFiles          = "SIFT_MAX_FILES"
	envBatchTokenTTL     = "SIFT_BATCH_TOKEN_TTL"
	envLogLevel          = "SIFT_LOG_LEVEL"
	envLogFormat         = "SIFT_LOG_FORMAT"
	envMetricsFile       = "SIFT_METRICS_FILE"
	envHistoryMaxRecords = "SIFT_HISTORY_MAX_RECORDS"
)

func applyEnv(cfg *Config, env []string) error {
	vals := make(map[string]string)
	for _, e := range env {
		idx := strings.Index(e, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(e[:idx])
		val := strings.TrimSpace(e[idx+1:])
		vals[key] = val
	}
	if v, ok := vals[envStateDir]; ok {
		cfg.StateDir = v
	}
	if v, ok := vals[envWorkflowsDir]; ok {
		cfg.WorkflowsDir = v
	}
	if v, ok := vals[envStorage]; ok && v != "" {
		s, err := validateStorage(v)
		if err != nil {
			return err
		}
		cfg.Storage = s
	}
	if v, ok := vals[envRetention]; ok && v != "" {
		d, err := ParseRetention(v)
		if err != nil {
			return erruser.New("SIFT_RETENTION must be a valid duration (e.g. 72h or 7d).", err)
		}
		cfg.Retention = d
	}
	if v, ok := vals[envScanTimeout]; ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return erruser.New("SIFT_SCAN_TIMEOUT must be a valid duration.", err)
		}
		cfg.ScanTimeout = d
	}
	if v, ok := vals[envScanConcurrency]; ok && v != "" {
		n, err := parseNonNegative(v, envScanConcurrency)
		if err != nil {
			return err
		}
		if n > 0 {
			cfg.ScanConcurrency = n
		}
	}
	if v, ok := vals[envMaxFiles]; ok && v != "" {
		n, err := parseNonNegative(v, envMaxFiles)
		if err != nil {
			return err
		}
		cfg.MaxFiles = n
	}
	if v, ok := vals[envBatchTokenTTL]; ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return erruser.New("SIFT_BATCH_TOKEN_TTL must be a valid duration.", err)
		}
		cfg.BatchTokenTTL = d
	}
	if v, ok := vals[envLogLevel]; ok && v != "" {
		if _, err := logging.ParseLevel(v); err != nil {
			return erruser.New("SIFT_LOG_LEVEL must be debug, info, warn, or error.", err)
		}
		cfg.LogLevel = strings.ToLower(v)
	}
	if v, ok := vals[envLogFormat]; ok && v != "" {
		f, err := validateLogFormat(v)
		if err != nil {
			return err
		}
		cfg.LogFormat = f
	}
	if v, ok := vals[envMetricsFile]; ok {
		cfg.MetricsFile = v
	}
	if v, ok := vals[envHistoryMaxRecords]; ok && v != "" {
		n, err := parseNonNegative(v, envHistoryMaxRecords)
		if err != nil {
			return err
		}
		cfg.HistoryMaxRecords = n
	}
	return nil
}

func parseNonNegative(v, key string) (int, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, erruser.New(key+" must be a valid number.", err)
	}
	if n < 0 {
		return 0, erruser.New(key+" must be non-negative.", nil)
	}
	out, err := int64ToInt(n)
	if err != nil {
		return 0, erruser.New(key+" value out of range.", err)
	}
	return out, nil
}

func applyOverrides(cfg *Config, o *Overrides) error {
	if o == nil {
		return nil
	}
	if o.StateDir != nil {
		cfg.StateDir = *o.StateDir
	}
	if o.WorkflowsDir != nil {
		cfg.WorkflowsDir = *o.WorkflowsDir
	}
	if o.Storage != nil && *o.Storage != "" {
		s, err := validateStorage(*o.Storage)
		if err != nil {
			return err
		}
		cfg.Storage = s
	}
	if o.Retention != nil && *o.Retention >= 0 {
		cfg.Retention = *o.Retention
	}
	if o.ScanTimeout != nil {
		cfg.ScanTimeout = *o.ScanTimeout
	}
	if o.ScanConcurrency != nil && *o.ScanConcurrency > 0 {
		cfg.ScanConcurrency = *o.ScanConcurrency
	}
	if o.MaxFiles != nil {
		v := *o.MaxFiles
		if v < 0 {
			v = 0
		}
		cfg.MaxFiles = v
	}
	if o.BatchTokenTTL != nil && *o.BatchTokenTTL > 0 {
		cfg.BatchTokenTTL = *o.BatchTokenTTL
	}
	if o.LogLevel != nil && *o.LogLevel != "" {
		if _, err := logging.ParseLevel(*o.LogLevel); err != nil {
			return erruser.New("Invalid log level; use debug, info, warn, or error.", err)
		}
		cfg.LogLevel = strings.ToLower(*o.LogLevel)
	}
	if o.LogFormat != nil && *o.LogFormat != "" {
		f, err := validateLogFormat(*o.LogFormat)
		if err != nil {
			return err
		}
		cfg.LogFormat = f
	}
	if o.MetricsFile != nil {
		cfg.MetricsFile = *o.MetricsFile
	}
	if o.HistoryMaxRecords != nil && *o.HistoryMaxRecords >= 0 {
		cfg.HistoryMaxRecords = *o.HistoryMaxRecords
	}
	return nil
}
