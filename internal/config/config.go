// Package config handles tool configuration loading and management.
package config

import (
	"path/filepath"

	"github.com/Faultbox/terrastamp/internal/storage"
)

// Config holds all tool settings.
type Config struct {
	Stamper StamperConfig `yaml:"stamper"`
	Storage StorageConfig `yaml:"storage"`
	Library LibraryConfig `yaml:"library"`
	Preview PreviewConfig `yaml:"preview"`
	Logging LoggingConfig `yaml:"logging"`
}

// StamperConfig holds stamping settings.
type StamperConfig struct {
	SeaLevel float64 `yaml:"sea_level"` // world units
	Parallel int     `yaml:"parallel"`  // worker threads, 0 uses every CPU
	UndoDir  string  `yaml:"undo_dir"`  // where apply keeps the undo journal, empty disables undo
}

// StorageConfig selects the terrain tile store.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // memory, disk or s3
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Profile  string `yaml:"profile"`
}

// Store returns the storage configuration.
func (c StorageConfig) Store() storage.Config {
	return storage.Config{
		Backend: c.Backend,
		Dir:     c.Dir,
		S3: storage.S3Config{
			Bucket:   c.Bucket,
			Prefix:   c.Prefix,
			Region:   c.Region,
			Endpoint: c.Endpoint,
			Profile:  c.Profile,
		},
	}
}

// LibraryConfig holds the stamp library.
type LibraryConfig struct {
	CacheDir string            `yaml:"cache_dir"`
	Sources  map[string]string `yaml:"sources"` // name -> path or URL
}

// PreviewConfig holds preview rendering settings.
type PreviewConfig struct {
	Size   int  `yaml:"size"` // longest side in pixels, 0 keeps the terrain size
	Colour bool `yaml:"colour"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	Format  string `yaml:"format"` // log file encoding: console or json
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Stamper: StamperConfig{
			SeaLevel: 0,
			Parallel: 0,
		},
		Storage: StorageConfig{
			Backend: storage.BackendDisk,
			Dir:     "tiles",
			Region:  "us-east-1",
		},
		Library: LibraryConfig{
			CacheDir: filepath.Join(ConfigDir(), "cache"),
			Sources:  map[string]string{},
		},
		Preview: PreviewConfig{
			Size:   512,
			Colour: true,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
			Format:  "console",
		},
	}
}
