package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCompiler(); err != nil {
		return err
	}
	if err := c.validateWatch(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.SourceDir == "" {
		return errors.New("paths.source_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if filepath.Clean(c.Paths.SourceDir) == filepath.Clean(c.Paths.OutputDir) &&
		c.Compiler.SourceExt == c.Compiler.OutputExt {
		return errors.New("paths.output_dir must differ from paths.source_dir when extensions match")
	}
	return nil
}

func (c *Config) validateCompiler() error {
	if strings.TrimSpace(c.Compiler.Binary) == "" {
		return errors.New("compiler.binary must be set")
	}
	if c.Compiler.TimeoutSeconds <= 0 {
		return errors.New("compiler.timeout_seconds must be positive")
	}
	if strings.ContainsAny(c.Compiler.SourceExt, `/\`) {
		return fmt.Errorf("compiler.source_ext %q must not contain path separators", c.Compiler.SourceExt)
	}
	if strings.ContainsAny(c.Compiler.OutputExt, `/\`) {
		return fmt.Errorf("compiler.output_ext %q must not contain path separators", c.Compiler.OutputExt)
	}
	return nil
}

func (c *Config) validateWatch() error {
	for _, pattern := range c.Watch.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("watch.ignore: invalid glob %q", pattern)
		}
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.Enabled && c.History.KeepRuns < 0 {
		return errors.New("history.keep_runs must be zero (unlimited) or positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
