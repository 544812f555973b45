package config

const (
	defaultSourceDir       = "web/coffee"
	defaultOutputDir       = "web/js"
	defaultStateDir        = "~/.local/share/kettle"
	defaultLogDir          = "~/.local/share/kettle/logs"
	defaultCompilerBinary  = "coffee"
	defaultSourceExt       = ".coffee"
	defaultOutputExt       = ".js"
	defaultCompilerTimeout = 60
	defaultWatchDebounceMS = 300
	defaultHistoryKeepRuns = 200
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			SourceDir: defaultSourceDir,
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Compiler: Compiler{
			Binary:         defaultCompilerBinary,
			SourceExt:      defaultSourceExt,
			OutputExt:      defaultOutputExt,
			TimeoutSeconds: defaultCompilerTimeout,
		},
		Build: Build{
			CheckTimestamps: true,
			FollowLinks:     true,
			ExcludePrefixes: []string{"_"},
		},
		Watch: Watch{
			DebounceMS: defaultWatchDebounceMS,
		},
		History: History{
			Enabled:  true,
			KeepRuns: defaultHistoryKeepRuns,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
