package config

const (
	defaultStateDir          = "~/.local/share/chatlens"
	defaultRequestTimeout    = 30
	defaultPollInterval      = 2
	defaultProcessingTimeout = 600
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			RequestTimeout: defaultRequestTimeout,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Upload: Upload{
			PollInterval:      defaultPollInterval,
			ProcessingTimeout: defaultProcessingTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
