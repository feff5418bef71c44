// Package config implements the CLI configuration surface described in
// section 6: a flat struct of flag-backed values plus a Validate method,
// in a single-struct, fmt.Errorf-wrapped style.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceType and DestType select which Source Reader / Sink
// implementation a run uses, per section 6's --src-type/--dst-type.
type SourceType string

const (
	SourceFilesystem  SourceType = "fs"
	SourceObjectStore SourceType = "s3"
)

type DestType string

const (
	DestFilesystem  DestType = "fs"
	DestObjectStore DestType = "s3"
)

// CombinePolicy selects the Batcher's threshold policy, per section 6's
// --combine flag.
type CombinePolicy string

const (
	CombineSize  CombinePolicy = "size"
	CombineCount CombinePolicy = "count"
)

// LogLevel mirrors section 6's --log-level values.
type LogLevel string

const (
	LogDebug   LogLevel = "DEBUG"
	LogInfo    LogLevel = "INFO"
	LogWarning LogLevel = "WARNING"
	LogError   LogLevel = "ERROR"
)

// Config holds every parameter a run needs, populated from CLI flags and
// optionally layered over a YAML file (--config-file). Flags always win
// over file values; the CLI layer is responsible for that precedence,
// Config itself just validates whatever it ends up holding.
type Config struct {
	SrcType   SourceType
	SrcPath   string
	SrcBucket string
	SrcPrefix string

	DstType   DestType
	DstPath   string
	DstBucket string
	DstPrefix string

	InputFile string

	Combine       CombinePolicy
	MaxTarSize    int64
	MaxFileNumber int

	MaxProcess int
	Compress   bool

	ProfileName string
	Region      string

	LogLevel LogLevel

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	PartSize         int64
	MaxPartsInFlight int
	MaxRetries       int
}

// Default returns a Config with section 5/6's stated defaults (worker
// count 4, connect timeout 5s, read timeout 60s, part size 16 MiB, 10
// parts in flight, 5 retries). Callers overlay flags/file values on top.
func Default() Config {
	return Config{
		Combine:          CombineCount,
		MaxProcess:       4,
		LogLevel:         LogInfo,
		ConnectTimeout:   5 * time.Second,
		ReadTimeout:      60 * time.Second,
		PartSize:         16 << 20,
		MaxPartsInFlight: 10,
		MaxRetries:       5,
	}
}

// LoadFile layers a YAML config file's values onto base: read the whole
// file, unmarshal into the struct, wrap any error.
func LoadFile(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config YAML: %w", err)
	}
	return cfg, nil
}

// Validate implements the validation requirements implied by section 6's
// CLI surface: every selector names a known mode, locators match the
// selected mode, the selected batching policy's threshold is positive, and
// resource limits are positive. The threshold of the unselected policy is
// not checked.
func (c *Config) Validate() error {
	if c.SrcType != SourceFilesystem && c.SrcType != SourceObjectStore {
		return fmt.Errorf("src-type must be %q or %q", SourceFilesystem, SourceObjectStore)
	}
	if c.DstType != DestFilesystem && c.DstType != DestObjectStore {
		return fmt.Errorf("dst-type must be %q or %q", DestFilesystem, DestObjectStore)
	}

	if c.InputFile == "" {
		switch c.SrcType {
		case SourceFilesystem:
			if c.SrcPath == "" {
				return fmt.Errorf("src-path is required when src-type is %q", SourceFilesystem)
			}
		case SourceObjectStore:
			if c.SrcBucket == "" {
				return fmt.Errorf("src-bucket is required when src-type is %q", SourceObjectStore)
			}
		}
	}

	switch c.DstType {
	case DestFilesystem:
		if c.DstPath == "" {
			return fmt.Errorf("dst-path is required when dst-type is %q", DestFilesystem)
		}
	case DestObjectStore:
		if c.DstBucket == "" {
			return fmt.Errorf("dst-bucket is required when dst-type is %q", DestObjectStore)
		}
	}

	switch c.Combine {
	case CombineSize:
		if c.MaxTarSize <= 0 {
			return fmt.Errorf("max-tarfile-size must be positive when combine is %q", CombineSize)
		}
	case CombineCount:
		if c.MaxFileNumber <= 0 {
			return fmt.Errorf("max-file-number must be positive when combine is %q", CombineCount)
		}
	default:
		return fmt.Errorf("combine must be %q or %q", CombineSize, CombineCount)
	}

	if c.MaxProcess < 1 {
		return fmt.Errorf("max-process must be at least 1")
	}

	if c.SrcType == SourceObjectStore || c.DstType == DestObjectStore {
		if c.Region == "" {
			return fmt.Errorf("region is required when either side uses s3")
		}
	}

	switch c.LogLevel {
	case LogDebug, LogInfo, LogWarning, LogError:
	default:
		return fmt.Errorf("log-level must be one of DEBUG, INFO, WARNING, ERROR")
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.PartSize <= 0 {
		return fmt.Errorf("part size must be positive")
	}
	if c.MaxPartsInFlight < 1 {
		return fmt.Errorf("max parts in flight must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}

	return nil
}
