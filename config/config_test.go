package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	c := Default()
	c.SrcType = SourceFilesystem
	c.SrcPath = "/in"
	c.DstType = DestFilesystem
	c.DstPath = "/out"
	c.Combine = CombineCount
	c.MaxFileNumber = 1000
	return c
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config to pass validation, got: %v", err)
	}
}

func TestMissingSrcPathWhenFilesystem(t *testing.T) {
	cfg := validConfig()
	cfg.SrcPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing src-path")
	}
}

func TestInputFileSkipsSrcLocatorRequirement(t *testing.T) {
	cfg := validConfig()
	cfg.SrcPath = ""
	cfg.InputFile = "/in/list.txt"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected input-file mode to skip src-path requirement, got: %v", err)
	}
}

func TestInvalidSrcType(t *testing.T) {
	testCases := []SourceType{"", "FS", "object"}
	for _, st := range testCases {
		t.Run(string(st), func(t *testing.T) {
			cfg := validConfig()
			cfg.SrcType = st
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for invalid src-type: %q", st)
			}
		})
	}
}

func TestMissingSrcBucketWhenObjectStore(t *testing.T) {
	cfg := validConfig()
	cfg.SrcType = SourceObjectStore
	cfg.Region = "us-west-2"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing src-bucket")
	}
}

func TestMissingDstPathWhenFilesystem(t *testing.T) {
	cfg := validConfig()
	cfg.DstPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing dst-path")
	}
}

func TestCombineSizeRequiresMaxTarSize(t *testing.T) {
	cfg := validConfig()
	cfg.Combine = CombineSize
	cfg.MaxTarSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for combine=size with no max-tarfile-size")
	}
	cfg.MaxTarSize = 1 << 20
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid combine=size config to pass, got: %v", err)
	}
}

func TestCombineCountRequiresMaxFileNumber(t *testing.T) {
	cfg := validConfig()
	cfg.MaxFileNumber = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for combine=count with no max-file-number")
	}
}

func TestInvalidMaxProcess(t *testing.T) {
	testCases := []int{0, -1, -100}
	for _, n := range testCases {
		t.Run("process", func(t *testing.T) {
			cfg := validConfig()
			cfg.MaxProcess = n
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for invalid max-process: %d", n)
			}
		})
	}
}

func TestRegionRequiredForObjectStoreEitherSide(t *testing.T) {
	cfg := validConfig()
	cfg.DstType = DestObjectStore
	cfg.DstBucket = "out-bucket"
	cfg.Region = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing region when dst-type is s3")
	}
}

func TestInvalidLogLevel(t *testing.T) {
	testCases := []LogLevel{"", "debug", "TRACE"}
	for _, lvl := range testCases {
		t.Run(string(lvl), func(t *testing.T) {
			cfg := validConfig()
			cfg.LogLevel = lvl
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected error for invalid log-level: %q", lvl)
			}
		})
	}
}

func TestValidLogLevels(t *testing.T) {
	for _, lvl := range []LogLevel{LogDebug, LogInfo, LogWarning, LogError} {
		t.Run(string(lvl), func(t *testing.T) {
			cfg := validConfig()
			cfg.LogLevel = lvl
			if err := cfg.Validate(); err != nil {
				t.Errorf("expected valid log-level %q to pass, got: %v", lvl, err)
			}
		})
	}
}

func TestInvalidTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.ConnectTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero connect timeout")
	}

	cfg = validConfig()
	cfg.ReadTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero read timeout")
	}
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := "srctype: s3\nsrcbucket: from-file\nregion: eu-west-1\n"
	if err := os.WriteFile(path, []byte(yamlBody), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	base := Default()
	cfg, err := LoadFile(base, path)
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if cfg.MaxProcess != base.MaxProcess {
		t.Errorf("expected unset fields to keep base defaults, MaxProcess = %d", cfg.MaxProcess)
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(Default(), filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}
