package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestDefault_Values(t *testing.T) {
	c := Default()
	if c == nil {
		t.Fatal("Default() returned nil")
	}
	if c.StorageBackend != BackendFlatFile {
		t.Errorf("StorageBackend = %v, want %v", c.StorageBackend, BackendFlatFile)
	}
	if c.OOSLookbackDays != 30 {
		t.Errorf("OOSLookbackDays = %v, want 30", c.OOSLookbackDays)
	}
	if c.BackupRetention != 5 {
		t.Errorf("BackupRetention = %v, want 5", c.BackupRetention)
	}
	if c.MonteCarloDefaults.Distribution != "empirical" {
		t.Errorf("MonteCarloDefaults.Distribution = %v, want empirical", c.MonteCarloDefaults.Distribution)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("", viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("DataDir = %v, want ./data", cfg.DataDir)
	}
	if cfg.StorageBackend != BackendFlatFile {
		t.Errorf("StorageBackend = %v, want %v", cfg.StorageBackend, BackendFlatFile)
	}
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "storage_backend: database\ndata_dir: /var/lib/replenisher\noos_lookback_days: 45\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageBackend != BackendDatabase {
		t.Errorf("StorageBackend = %v, want %v", cfg.StorageBackend, BackendDatabase)
	}
	if cfg.DataDir != "/var/lib/replenisher" {
		t.Errorf("DataDir = %v, want /var/lib/replenisher", cfg.DataDir)
	}
	if cfg.OOSLookbackDays != 45 {
		t.Errorf("OOSLookbackDays = %v, want 45", cfg.OOSLookbackDays)
	}
}

func TestLoad_NegativeOOSLookbackClampedToZero(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("oos_lookback_days: -5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OOSLookbackDays != 0 {
		t.Errorf("OOSLookbackDays = %v, want 0 (clamped)", cfg.OOSLookbackDays)
	}
}

func TestLoad_BackupRetentionNeverBelowTwo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("backup_retention: 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackupRetention != 2 {
		t.Errorf("BackupRetention = %v, want 2 (floor)", cfg.BackupRetention)
	}
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	t.Setenv("REPL_DATA_DIR", "/tmp/repl-data")
	cfg, err := Load("", viper.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/repl-data" {
		t.Errorf("DataDir = %v, want /tmp/repl-data (from env)", cfg.DataDir)
	}
}
