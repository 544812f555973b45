package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kettle/internal/config"
	"kettle/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	t.Setenv("KETTLE_COMPILER", "")
	t.Setenv("KETTLE_STRICT", "")
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithStubCompiler()}, opts...)...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "kettle.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nsource_dir = %q\noutput_dir = %q\nstate_dir = %q\nlog_dir = %q\n\n",
		cfg.Paths.SourceDir, cfg.Paths.OutputDir, cfg.Paths.StateDir, cfg.Paths.LogDir)
	fmt.Fprintf(&b, "[compiler]\nbinary = %q\nsource_ext = %q\noutput_ext = %q\ntimeout_seconds = %d\n\n",
		cfg.Compiler.Binary, cfg.Compiler.SourceExt, cfg.Compiler.OutputExt, cfg.Compiler.TimeoutSeconds)
	fmt.Fprintf(&b, "[build]\ncheck_timestamps = %t\ncompress = %t\nstrict = %t\n\n",
		cfg.Build.CheckTimestamps, cfg.Build.Compress, cfg.Build.Strict)
	fmt.Fprintf(&b, "[history]\nenabled = %t\nkeep_runs = %d\n\n", cfg.History.Enabled, cfg.History.KeepRuns)
	fmt.Fprintf(&b, "[logging]\nformat = %q\nlevel = %q\n", cfg.Logging.Format, "warn")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}
