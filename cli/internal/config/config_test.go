package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func ptrStr(s string) *string { return &s }

func writeRepoConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	c := DefaultConfig()
	if c.Storage != StorageFile {
		t.Errorf("Storage = %q, want %q", c.Storage, StorageFile)
	}
	if c.Retention != 7*24*time.Hour {
		t.Errorf("Retention = %v, want 168h", c.Retention)
	}
	if c.ScanTimeout != _defaultScanTimeout {
		t.Errorf("ScanTimeout = %v, want %v", c.ScanTimeout, _defaultScanTimeout)
	}
	if c.ScanConcurrency != _defaultScanConcurrency || c.MaxFiles != 0 {
		t.Errorf("ScanConcurrency/MaxFiles = %d/%d", c.ScanConcurrency, c.MaxFiles)
	}
	if c.StateDir != "" || c.WorkflowsDir != "" {
		t.Errorf("StateDir or WorkflowsDir non-empty: %q, %q", c.StateDir, c.WorkflowsDir)
	}
}

func TestEffectiveStateDir(t *testing.T) {
	t.Parallel()
	c := DefaultConfig()
	if got := c.EffectiveStateDir("/w"); got != filepath.Join("/w", ".sift") {
		t.Errorf("EffectiveStateDir = %q", got)
	}
	if got := c.SessionsDir("/w"); got != filepath.Join("/w", ".sift", "sessions") {
		t.Errorf("SessionsDir = %q", got)
	}
	c.StateDir = "/var/sift"
	if got := c.ReportsDir("/w"); got != filepath.Join("/var/sift", "reports") {
		t.Errorf("ReportsDir = %q", got)
	}
}

func TestLoad_defaultsOnly(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg, err := Load(context.Background(), LoadOptions{
		Root:             dir,
		GlobalConfigPath: filepath.Join(dir, "nonexistent.toml"),
		Env:              []string{},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != DefaultConfig() {
		t.Errorf("got %+v, want defaults %+v", *cfg, DefaultConfig())
	}
}

func TestLoad_repoOverridesGlobal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.toml")
	if err := os.WriteFile(globalPath, []byte("storage = \"badger\"\nscan_timeout = \"1m\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(dir, "repo")
	writeRepoConfig(t, root, "storage = \"file\"\nretention = \"3d\"\n")
	cfg, err := Load(context.Background(), LoadOptions{Root: root, GlobalConfigPath: globalPath, Env: []string{}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage != StorageFile {
		t.Errorf("Storage = %q, want file (repo overrides global)", cfg.Storage)
	}
	if cfg.ScanTimeout != time.Minute {
		t.Errorf("ScanTimeout = %v, want 1m from global", cfg.ScanTimeout)
	}
	if cfg.Retention != 72*time.Hour {
		t.Errorf("Retention = %v, want 72h", cfg.Retention)
	}
}

func TestLoad_envOverridesRepo(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeRepoConfig(t, dir, "max_files = 10\nlog_level = \"debug\"\n")
	cfg, err := Load(context.Background(), LoadOptions{
		Root:             dir,
		GlobalConfigPath: filepath.Join(dir, "none.toml"),
		Env:              []string{"SIFT_MAX_FILES=25", "SIFT_LOG_FORMAT=json", "SIFT_RETENTION=48h", "SIFT_SCAN_TIMEOUT=90"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxFiles != 25 {
		t.Errorf("MaxFiles = %d, want 25", cfg.MaxFiles)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug from repo", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want json", cfg.LogFormat)
	}
	if cfg.Retention != 48*time.Hour || cfg.ScanTimeout != 90*time.Second {
		t.Errorf("Retention/ScanTimeout = %v/%v", cfg.Retention, cfg.ScanTimeout)
	}
}

func TestLoad_overridesWin(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ttl := 2 * time.Minute
	cfg, err := Load(context.Background(), LoadOptions{
		Root:             dir,
		GlobalConfigPath: filepath.Join(dir, "none.toml"),
		Env:              []string{"SIFT_STATE_DIR=/from/env"},
		Overrides:        &Overrides{StateDir: ptrStr("/from/flag"), BatchTokenTTL: &ttl},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StateDir != "/from/flag" || cfg.BatchTokenTTL != ttl {
		t.Errorf("StateDir/BatchTokenTTL = %q/%v", cfg.StateDir, cfg.BatchTokenTTL)
	}
}

func TestLoad_invalidValues(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		repo string
		env  []string
		o    *Overrides
	}{
		{name: "bad toml", repo: "storage = "},
		{name: "bad storage in file", repo: `storage = "s3"`},
		{name: "bad retention", repo: `retention = "soon"`},
		{name: "bad log level env", env: []string{"SIFT_LOG_LEVEL=loud"}},
		{name: "negative max files env", env: []string{"SIFT_MAX_FILES=-1"}},
		{name: "bad storage override", o: &Overrides{Storage: ptrStr("tape")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			if tt.repo != "" {
				writeRepoConfig(t, dir, tt.repo)
			}
			env := tt.env
			if env == nil {
				env = []string{}
			}
			_, err := Load(context.Background(), LoadOptions{
				Root:             dir,
				GlobalConfigPath: filepath.Join(dir, "none.toml"),
				Env:              env,
				Overrides:        tt.o,
			})
			if err == nil {
				t.Fatal("Load: expected error")
			}
		})
	}
}

func TestParseRetention(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"36h", 36 * time.Hour, false},
		{"60", time.Minute, false},
		{"-1d", 0, true},
		{"week", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseRetention(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRetention(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRetention(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
