package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

const (
	// DefaultMaxCacheEntries is the default bound on cached transcode results
	DefaultMaxCacheEntries = 50
	// DefaultMaxEntrySize is the default bound on a single transcode result
	DefaultMaxEntrySize = int64(1024 * 1024 * 1024) // 1GB
)

// Config is the per-mount configuration, immutable after startup
type Config struct {
	// SourceDir is the directory being mirrored
	SourceDir string
	// SourceExt is the extension of files to transcode
	SourceExt string
	// DestExt is the extension presented on the mount
	DestExt string
	// Pipeline is the gstreamer pipeline description
	Pipeline string
	// MaxCacheEntries bounds the number of cached transcode results
	MaxCacheEntries int
	// MaxEntrySize bounds the buffer size of a single transcode result
	MaxEntrySize int64
}

// NewDefaultConfig creates a new Config with defaults
func NewDefaultConfig() *Config {
	return &Config{
		MaxCacheEntries: DefaultMaxCacheEntries,
		MaxEntrySize:    DefaultMaxEntrySize,
	}
}

// ParseOption parses a single key=value mount option into the config
func (config *Config) ParseOption(option string) error {
	key, value, found := strings.Cut(option, "=")
	if !found {
		return xerrors.Errorf("option %q is not in key=value form", option)
	}

	switch key {
	case "src":
		config.SourceDir = value
	case "src_ext":
		config.SourceExt = value
	case "dst_ext":
		config.DestExt = value
	case "pipeline":
		config.Pipeline = value
	case "ncache":
		entries, err := strconv.Atoi(value)
		if err != nil {
			return xerrors.Errorf("failed to parse ncache value %q: %w", value, err)
		}
		if entries <= 0 {
			// fall back to the default, matching unset
			entries = DefaultMaxCacheEntries
		}
		config.MaxCacheEntries = entries
	default:
		return xerrors.Errorf("unknown option %q", key)
	}

	return nil
}

// ParseOptions parses a comma separated key=value mount option list
func (config *Config) ParseOptions(options string) error {
	for _, option := range strings.Split(options, ",") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}

		err := config.ParseOption(option)
		if err != nil {
			return err
		}
	}
	return nil
}

// Canonicalize makes the source directory absolute against the process
// working directory.
func (config *Config) Canonicalize() error {
	if config.SourceDir == "" || filepath.IsAbs(config.SourceDir) {
		return nil
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return xerrors.Errorf("failed to get working directory: %w", err)
	}

	config.SourceDir = filepath.Join(workingDir, config.SourceDir)
	return nil
}

// Validate validates the configuration. Failures here are fatal at startup.
func (config *Config) Validate() error {
	if config.SourceDir == "" {
		return xerrors.Errorf("src is not given")
	}
	if config.SourceExt == "" {
		return xerrors.Errorf("src_ext is not given")
	}
	if config.DestExt == "" {
		return xerrors.Errorf("dst_ext is not given")
	}
	if config.Pipeline == "" {
		return xerrors.Errorf("pipeline is not given")
	}
	if config.MaxCacheEntries <= 0 {
		return xerrors.Errorf("ncache must be positive, got %d", config.MaxCacheEntries)
	}

	sourceStat, err := os.Stat(config.SourceDir)
	if err != nil {
		return xerrors.Errorf("failed to stat source directory %s: %w", config.SourceDir, err)
	}
	if !sourceStat.IsDir() {
		return xerrors.Errorf("source path %s is not a directory", config.SourceDir)
	}

	return nil
}
