package logger

// DefaultLevel applies when Config.Level is empty or unknown.
const DefaultLevel = "info"

// Config selects the level, encoding and sinks of a logger.
type Config struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Development switches to console output without sampling.
	Development bool `yaml:"development"`
	// OutputPaths are zap sink URLs or file paths. Defaults to stdout.
	OutputPaths []string `yaml:"output_paths"`
}

// SetDefaults fills the unset fields.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stdout"}
	}
}
