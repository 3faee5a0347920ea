package config

import (
	"flag"

	"github.com/Faultbox/terrastamp/internal/storage"
)

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagTiles   = flag.String("tiles", "", "Tile directory (disk backend) or key prefix (s3 backend)")
	flagBackend = flag.String("backend", "", "Tile storage backend: memory, disk or s3")
	flagBucket  = flag.String("bucket", "", "S3 bucket for tiles")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagBackend != "" {
		cfg.Storage.Backend = *flagBackend
	}
	if *flagBucket != "" {
		cfg.Storage.Bucket = *flagBucket
		if *flagBackend == "" {
			cfg.Storage.Backend = storage.BackendS3
		}
	}
	if *flagTiles != "" {
		if cfg.Storage.Backend == storage.BackendS3 {
			cfg.Storage.Prefix = *flagTiles
		} else {
			cfg.Storage.Dir = *flagTiles
		}
	}
}
