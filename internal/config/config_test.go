package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/terrastamp/internal/storage"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Storage.Backend != storage.BackendDisk {
		t.Errorf("expected disk backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Dir != "tiles" {
		t.Errorf("expected tile dir 'tiles', got %s", cfg.Storage.Dir)
	}
	if cfg.Stamper.SeaLevel != 0 || cfg.Stamper.UndoDir != "" {
		t.Errorf("unexpected stamper defaults %+v", cfg.Stamper)
	}
	if !filepath.IsAbs(cfg.Library.CacheDir) {
		t.Errorf("expected absolute cache dir, got %s", cfg.Library.CacheDir)
	}
	if cfg.Preview.Size != 512 || !cfg.Preview.Colour {
		t.Errorf("unexpected preview defaults %+v", cfg.Preview)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
stamper:
  sea_level: 12.5
  parallel: 4
  undo_dir: /tmp/undo

storage:
  backend: s3
  bucket: terrain
  prefix: worlds/a
  region: eu-west-1

library:
  cache_dir: /tmp/stamps
  sources:
    ridge: https://stamps.example.com/ridge.png

preview:
  size: 256
  colour: false

logging:
  level: "debug"
  log_file: "stamper.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Stamper.SeaLevel != 12.5 || cfg.Stamper.Parallel != 4 || cfg.Stamper.UndoDir != "/tmp/undo" {
		t.Errorf("stamper = %+v", cfg.Stamper)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.Bucket != "terrain" || cfg.Storage.Region != "eu-west-1" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Storage.Dir != "tiles" {
		t.Errorf("expected unset dir to keep its default, got %s", cfg.Storage.Dir)
	}
	if cfg.Library.Sources["ridge"] != "https://stamps.example.com/ridge.png" {
		t.Errorf("library sources = %v", cfg.Library.Sources)
	}
	if cfg.Preview.Size != 256 || cfg.Preview.Colour {
		t.Errorf("preview = %+v", cfg.Preview)
	}
	if cfg.Logging.LogFile != "stamper.log" {
		t.Errorf("expected log file 'stamper.log', got %s", cfg.Logging.LogFile)
	}

	sc := cfg.Storage.Store()
	if sc.Backend != storage.BackendS3 || sc.S3.Bucket != "terrain" || sc.S3.Prefix != "worlds/a" {
		t.Errorf("storage config = %+v", sc)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
preview:
  size: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)

	if path := findConfigFile(); path != "" && filepath.Dir(path) == "." {
		t.Errorf("expected no local config, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("preview:\n  size: 64\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path != "./config.yaml" {
		t.Errorf("expected ./config.yaml, got %q", path)
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name:  "tiles flag",
			setup: func() { *flagTiles = "/data/world" },
			verify: func(cfg *Config) {
				if cfg.Storage.Dir != "/data/world" {
					t.Errorf("expected dir /data/world, got %s", cfg.Storage.Dir)
				}
			},
			teardown: func() { *flagTiles = "" },
		},
		{
			name: "bucket flag selects s3",
			setup: func() {
				*flagBucket = "terrain"
				*flagTiles = "worlds/b"
			},
			verify: func(cfg *Config) {
				if cfg.Storage.Backend != storage.BackendS3 || cfg.Storage.Bucket != "terrain" {
					t.Errorf("storage = %+v", cfg.Storage)
				}
				if cfg.Storage.Prefix != "worlds/b" || cfg.Storage.Dir != "tiles" {
					t.Errorf("tiles flag set dir %q prefix %q", cfg.Storage.Dir, cfg.Storage.Prefix)
				}
			},
			teardown: func() {
				*flagBucket = ""
				*flagTiles = ""
			},
		},
		{
			name:  "backend flag",
			setup: func() { *flagBackend = "memory" },
			verify: func(cfg *Config) {
				if cfg.Storage.Backend != storage.BackendMemory {
					t.Errorf("expected memory backend, got %s", cfg.Storage.Backend)
				}
			},
			teardown: func() { *flagBackend = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)
			tt.verify(cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
storage:
  dir: /from/file
preview:
  size: 128
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagTiles = "/from/flag"
	defer func() {
		*flagConfig = ""
		*flagTiles = ""
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Storage.Dir != "/from/flag" {
		t.Errorf("expected dir from flag, got %s", cfg.Storage.Dir)
	}
	if cfg.Preview.Size != 128 {
		t.Errorf("expected size 128 from file, got %d", cfg.Preview.Size)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Stamper.SeaLevel = 3

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatal(err)
	}
	if loaded.Stamper.SeaLevel != 3 {
		t.Errorf("expected sea level 3, got %v", loaded.Stamper.SeaLevel)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string // expected in the error, empty for valid
	}{
		{"defaults", func(*Config) {}, ""},
		{"memory backend", func(c *Config) { c.Storage.Backend = storage.BackendMemory; c.Storage.Dir = "" }, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "storage.backend"},
		{"disk without dir", func(c *Config) { c.Storage.Dir = "" }, "storage.dir"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = storage.BackendS3 }, "storage.bucket"},
		{"sea level NaN", func(c *Config) { c.Stamper.SeaLevel = math.NaN() }, "sea_level"},
		{"sea level Inf", func(c *Config) { c.Stamper.SeaLevel = math.Inf(1) }, "sea_level"},
		{"negative parallel", func(c *Config) { c.Stamper.Parallel = -1 }, "stamper.parallel"},
		{"undo dir is tile dir", func(c *Config) { c.Stamper.UndoDir = "./tiles/" }, "undo_dir"},
		{"negative preview", func(c *Config) { c.Preview.Size = -5 }, "preview.size"},
		{"bad source name", func(c *Config) { c.Library.Sources["a:b"] = "x.png" }, "library source"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected ErrInvalid naming %s, got %v", tt.field, err)
			}
		})
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("storage:\n  backend: tape\n"), 0644); err != nil {
		t.Fatal(err)
	}
	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	if _, err := Load(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestLoadFromFileUnknownKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("stamper:\n  sealevel: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := loadFromFile(Default(), configPath); err == nil {
		t.Error("expected an error for a misspelt key")
	}
}

func TestLoadFromFileEmpty(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, nil, 0644); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("empty file: %v", err)
	}
	if cfg.Storage.Dir != "tiles" {
		t.Errorf("empty file changed defaults: %+v", cfg.Storage)
	}
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg := Default()
	cfg.Storage.Dir = "~/worlds/a"
	cfg.Stamper.UndoDir = "/abs/undo"
	cfg.expandPaths()

	if want := filepath.Join(home, "worlds/a"); cfg.Storage.Dir != want {
		t.Errorf("Dir = %s, want %s", cfg.Storage.Dir, want)
	}
	if cfg.Stamper.UndoDir != "/abs/undo" {
		t.Errorf("absolute path changed to %s", cfg.Stamper.UndoDir)
	}
}

func TestConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnv, dir)
	if got := ConfigDir(); got != dir {
		t.Errorf("ConfigDir = %s, want %s", got, dir)
	}
}

func TestSaveToReplacesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Default()
	cfg.Preview.Size = 64
	if err := cfg.SaveTo(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), fileHeader) {
		t.Errorf("saved config lacks the header: %q", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}

	cfg.Storage.Backend = "tape"
	if err := cfg.SaveTo(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for an invalid config, got %v", err)
	}
	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil || loaded.Preview.Size != 64 {
		t.Errorf("invalid save touched the file: size %d, %v", loaded.Preview.Size, err)
	}
}
