package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"kettle/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceDir = filepath.Join(base, "src")
	cfgVal.Paths.OutputDir = filepath.Join(base, "out")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Compiler.TimeoutSeconds = 10
	cfgVal.Watch.DebounceMS = 20

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStubCompiler points the config at a shell script that copies its input
// to its output and appends the input path to an invocation log.
//
// Inputs whose file name contains "bad" fail with "syntax error line 3" on
// stderr. Inputs containing "noisy" compile but also write a warning to
// stderr. Inputs containing "slow" sleep well past any test timeout.
// --version prints "stubc 1.0.0".
func WithStubCompiler() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "stubc")
		if err := os.WriteFile(target, []byte(stubCompilerScript(invocationLog(b.baseDir))), 0o755); err != nil {
			b.t.Fatalf("write stub compiler: %v", err)
		}
		b.cfg.Compiler.Binary = target
	}
}

// WithCompilerBinary overrides the compiler binary on the test config.
func WithCompilerBinary(binary string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Compiler.Binary = binary
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.SourceDir)
}

func invocationLog(base string) string {
	return filepath.Join(base, "bin", "invocations.log")
}

func stubCompilerScript(logPath string) string {
	return `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "stubc 1.0.0"
  exit 0
fi
in=""
out=""
for arg in "$@"; do
  in="$out"
  out="$arg"
done
echo "$in" >> '` + logPath + `'
case "$(basename "$in")" in
  *bad*)
    echo "" >&2
    echo "syntax error line 3" >&2
    echo "  unexpected indentation" >&2
    exit 1
    ;;
  *noisy*)
    cat "$in" > "$out"
    echo "deprecated syntax" >&2
    exit 0
    ;;
  *slow*)
    exec sleep 30
    ;;
esac
cat "$in" > "$out"
`
}
