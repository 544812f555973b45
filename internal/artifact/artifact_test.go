package artifact

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWrapAndBody(t *testing.T) {
	wrapped := Wrap([]byte("var a = 1;\n"))
	body, ok := Body(wrapped)
	if !ok {
		t.Fatal("expected wrapped content to carry the header")
	}
	if string(body) != "var a = 1;\n" {
		t.Fatalf("unexpected body %q", body)
	}
	if _, ok := Body([]byte("var a = 1;\n")); ok {
		t.Fatal("expected plain content to be rejected")
	}
}

func TestIsManaged(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"generated", string(Wrap([]byte("x();"))), true},
		{"header only", Header, true},
		{"hand written", "// app.js\nx();\n", false},
		{"header not first", "\n" + Header + "\n", false},
		{"header with trailing text", Header + " extra\n", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".js")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			got, err := IsManaged(path)
			if err != nil {
				t.Fatalf("IsManaged: %v", err)
			}
			if got != tc.want {
				t.Fatalf("IsManaged = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsManagedMissingFile(t *testing.T) {
	if _, err := IsManaged(filepath.Join(t.TempDir(), "missing.js")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
