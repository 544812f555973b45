package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kettle/internal/config"
)

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteSource writes a source file at rel under the configured source root
// and returns its absolute path.
func WriteSource(t testing.TB, cfg *config.Config, rel, content string) string {
	t.Helper()

	path := filepath.Join(cfg.Paths.SourceDir, filepath.FromSlash(rel))
	WriteFile(t, path, content)
	return path
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t testing.TB, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// SetMtime sets both access and modification time of path.
func SetMtime(t testing.TB, path string, when time.Time) {
	t.Helper()

	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// CompilerInvocations returns the input paths the stub compiler was run
// with, in order. A config without WithStubCompiler has none.
func CompilerInvocations(t testing.TB, cfg *config.Config) []string {
	t.Helper()

	data, err := os.ReadFile(invocationLog(BaseDir(cfg)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read invocation log: %v", err)
	}
	var inputs []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line != "" {
			inputs = append(inputs, line)
		}
	}
	return inputs
}
