package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kettle/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckSourceDirectory_MissingPasses(t *testing.T) {
	result := CheckSourceDirectory(filepath.Join(t.TempDir(), "coffee"))
	if !result.Passed {
		t.Fatalf("expected missing source tree to pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "nothing to compile") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckSourceDirectory_File(t *testing.T) {
	f := filepath.Join(t.TempDir(), "coffee")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckSourceDirectory(f); result.Passed {
		t.Fatal("expected failure for file source root")
	}
}

func TestCheckOutputDirectory_WillBeCreated(t *testing.T) {
	result := CheckOutputDirectory(filepath.Join(t.TempDir(), "web", "js"))
	if !result.Passed {
		t.Fatalf("expected creatable output dir to pass, got: %s", result.Detail)
	}
	if !strings.Contains(result.Detail, "will be created") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckOutputDirectory_AncestorIsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "web")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckOutputDirectory(filepath.Join(f, "js")); result.Passed {
		t.Fatal("expected failure when an ancestor is a file")
	}
}

func TestCheckCompiler(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	result := CheckCompiler(context.Background(), cfg)
	if !result.Passed {
		t.Fatalf("expected stub compiler to pass, got: %s", result.Detail)
	}
	if !strings.HasPrefix(result.Detail, cfg.Compiler.Binary) {
		t.Fatalf("detail should name the binary: %s", result.Detail)
	}

	missing := testsupport.NewConfig(t, testsupport.WithCompilerBinary("clearly-not-a-compiler"))
	if result := CheckCompiler(context.Background(), missing); result.Passed {
		t.Fatal("expected failure for missing compiler")
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubCompiler())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failures(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	cfg.Compiler.Binary = "clearly-not-a-compiler"
	failed := Failures(RunAll(context.Background(), cfg))
	if len(failed) != 1 || failed[0].Name != "Compiler" {
		t.Fatalf("expected compiler failure only, got %+v", failed)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil results, got %+v", results)
	}
}
