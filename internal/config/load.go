package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/terrastamp/internal/logger"
	"github.com/Faultbox/terrastamp/internal/storage"
)

// ErrInvalid marks a configuration value the tool cannot run with.
var ErrInvalid = errors.New("invalid config")

// configDirEnv overrides ConfigDir.
const configDirEnv = "TERRASTAMP_CONFIG_DIR"

// Load loads configuration with priority: defaults < file < flags, then
// validates the result.
func Load() (*Config, error) {
	cfg := Default()

	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	applyFlags(cfg)
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the config directory: $TERRASTAMP_CONFIG_DIR when set,
// otherwise the OS default.
func ConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			return abs
		}
		return dir
	}
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Terrastamp")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Terrastamp")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "terrastamp")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "terrastamp")
	}
}

// loadFromFile merges a YAML file into cfg. Unknown keys are errors so a
// misspelt section does not silently fall back to defaults.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// expandPaths replaces a leading ~ in the path settings with the home directory.
func (c *Config) expandPaths() {
	for _, p := range []*string{&c.Storage.Dir, &c.Stamper.UndoDir, &c.Library.CacheDir, &c.Logging.LogFile} {
		*p = expandHome(*p)
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate reports every setting the tool cannot run with.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Storage.Backend {
	case storage.BackendMemory, "":
	case storage.BackendDisk:
		if c.Storage.Dir == "" {
			bad("storage.dir is required for the disk backend")
		}
	case storage.BackendS3:
		if c.Storage.Bucket == "" {
			bad("storage.bucket is required for the s3 backend")
		}
	default:
		bad("storage.backend %q is not memory, disk or s3", c.Storage.Backend)
	}

	if math.IsNaN(c.Stamper.SeaLevel) || math.IsInf(c.Stamper.SeaLevel, 0) {
		bad("stamper.sea_level must be a finite number")
	}
	if c.Stamper.Parallel < 0 {
		bad("stamper.parallel must not be negative, got %d", c.Stamper.Parallel)
	}
	if c.Stamper.UndoDir != "" && c.Storage.Backend == storage.BackendDisk &&
		filepath.Clean(c.Stamper.UndoDir) == filepath.Clean(c.Storage.Dir) {
		bad("stamper.undo_dir must differ from storage.dir")
	}
	if c.Preview.Size < 0 {
		bad("preview.size must not be negative, got %d", c.Preview.Size)
	}
	for name := range c.Library.Sources {
		if name == "" || strings.Contains(name, ":") {
			bad("library source name %q may not be empty or contain ':'", name)
		}
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		bad("logging.level: %v", err)
	}
	switch c.Logging.Format {
	case "", logger.FormatConsole, logger.FormatJSON:
	default:
		bad("logging.format %q is not console or json", c.Logging.Format)
	}
	return errors.Join(errs...)
}
