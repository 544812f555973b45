package fileutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestWriteOutputSetsModeOnNewFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	path := filepath.Join(t.TempDir(), "app.js")
	created, err := WriteOutput(path, []byte("x"), 0o666)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected created to be true")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o666 {
		t.Fatalf("mode = %o, want 666 regardless of umask", info.Mode().Perm())
	}
}

func TestWriteOutputPreservesExistingMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	path := filepath.Join(t.TempDir(), "app.js")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatal(err)
	}

	created, err := WriteOutput(path, []byte("new"), 0o666)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("expected created to be false for existing file")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %o, want existing 600", info.Mode().Perm())
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("content = %q", got)
	}
}

func TestWriteOutputReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.js")
	for _, body := range []string{"first", "second"} {
		if _, err := WriteOutput(path, []byte(body), 0o644); err != nil {
			t.Fatalf("WriteOutput(%q): %v", body, err)
		}
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("content = %q", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "app.js" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestWriteOutputFailureKeepsPreviousContent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "app.js")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	if _, err := WriteOutput(path, []byte("new"), 0o644); err == nil {
		t.Fatal("expected error writing into read-only directory")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "old" {
		t.Fatalf("previous output damaged: %q", got)
	}
}

func TestWriteOutputFollowsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "real.js")
	link := filepath.Join(dir, "app.js")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	if _, err := WriteOutput(link, []byte("new"), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatal("symlink replaced by a regular file")
	}
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("link target content = %q", got)
	}
}

func TestEnsureDirIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	for i := 0; i < 2; i++ {
		if err := EnsureDir(dir, 0o755); err != nil {
			t.Fatalf("EnsureDir #%d: %v", i, err)
		}
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory, got %v, %v", info, err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDir(file, 0o755); err == nil {
		t.Fatal("expected error when path is a file")
	}
}

func TestStagingFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "app.js")
	staging, err := StagingFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(staging) != filepath.Dir(target) {
		t.Fatalf("staging file %s not next to %s", staging, target)
	}
	if !strings.HasPrefix(filepath.Base(staging), ".app.js.") {
		t.Fatalf("unexpected staging name %s", staging)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Fatalf("target must not be created, stat err = %v", err)
	}
	if !IsStagingFile(filepath.Base(staging)) {
		t.Fatalf("IsStagingFile(%q) = false", filepath.Base(staging))
	}
}

func TestIsStagingFile(t *testing.T) {
	for name, want := range map[string]bool{
		".app.js.123.tmp": true,
		"app.js":          false,
		"notes.tmp":       false,
		".tmp":            false,
		".hidden.js":      false,
	} {
		if got := IsStagingFile(name); got != want {
			t.Errorf("IsStagingFile(%q) = %v, want %v", name, got, want)
		}
	}
}
