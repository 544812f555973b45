package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCompiler()
	if err := c.normalizeBuild(); err != nil {
		return err
	}
	c.normalizeWatch()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		c.Paths.SourceDir = defaultSourceDir
	}
	if c.Paths.SourceDir, err = expandPath(c.Paths.SourceDir); err != nil {
		return fmt.Errorf("paths.source_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCompiler() {
	if value, ok := os.LookupEnv("KETTLE_COMPILER"); ok && strings.TrimSpace(value) != "" {
		c.Compiler.Binary = strings.TrimSpace(value)
	}
	c.Compiler.Binary = strings.TrimSpace(c.Compiler.Binary)
	if c.Compiler.Binary == "" {
		c.Compiler.Binary = defaultCompilerBinary
	}
	c.Compiler.SourceExt = normalizeExt(c.Compiler.SourceExt, defaultSourceExt)
	c.Compiler.OutputExt = normalizeExt(c.Compiler.OutputExt, defaultOutputExt)
	args := c.Compiler.Args[:0]
	for _, arg := range c.Compiler.Args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Compiler.Args = args
}

func normalizeExt(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	if !strings.HasPrefix(value, ".") {
		value = "." + value
	}
	return value
}

func (c *Config) normalizeBuild() error {
	if value, ok := os.LookupEnv("KETTLE_STRICT"); ok && strings.TrimSpace(value) != "" {
		strict, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("KETTLE_STRICT: %w", err)
		}
		c.Build.Strict = strict
	}
	if c.Build.ExcludePrefixes == nil {
		c.Build.ExcludePrefixes = []string{"_"}
		return nil
	}
	prefixes := make([]string, 0, len(c.Build.ExcludePrefixes))
	seen := make(map[string]struct{}, len(c.Build.ExcludePrefixes))
	for _, prefix := range c.Build.ExcludePrefixes {
		if prefix == "" {
			continue
		}
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		prefixes = append(prefixes, prefix)
	}
	c.Build.ExcludePrefixes = prefixes
	return nil
}

func (c *Config) normalizeWatch() {
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = defaultWatchDebounceMS
	}
	ignore := make([]string, 0, len(c.Watch.Ignore))
	for _, pattern := range c.Watch.Ignore {
		if trimmed := strings.TrimSpace(pattern); trimmed != "" {
			ignore = append(ignore, trimmed)
		}
	}
	c.Watch.Ignore = ignore
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
