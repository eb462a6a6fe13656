package logger

// LoggingConfig is the logging section of the settings file.
type LoggingConfig struct {
	// DefaultLevel applies to modules without an entry in ModuleLevels.
	DefaultLevel string `yaml:"default_level" mapstructure:"default_level"`
	// Timezone is "Local", "UTC" or an IANA name.
	Timezone     string            `yaml:"timezone" mapstructure:"timezone"`
	Console      ConsoleOutput     `yaml:"console" mapstructure:"console"`
	FileOutput   FileOutput        `yaml:"file_output" mapstructure:"file_output"`
	ModuleLevels map[string]string `yaml:"module_levels" mapstructure:"module_levels"`
}

// ConsoleOutput writes text records to stderr.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" mapstructure:"level"`
}

// FileOutput appends JSON records to Path.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	Level   string `yaml:"level" mapstructure:"level"`
}

// Defaults shared with the settings loader.
const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/rangelink.log"
	DefaultConsoleEnabled = true
	DefaultFileEnabled    = false
)

// SetLevel lowers or raises every output to level.
func (c *LoggingConfig) SetLevel(level LogLevel) {
	c.DefaultLevel = string(level)
	c.Console.Level = string(level)
	c.FileOutput.Level = string(level)
}

func (c *LoggingConfig) withDefaults() LoggingConfig {
	out := *c
	if out.DefaultLevel == "" {
		out.DefaultLevel = DefaultLogLevel
	}
	if out.Console.Level == "" {
		out.Console.Level = out.DefaultLevel
	}
	if out.FileOutput.Level == "" {
		out.FileOutput.Level = out.DefaultLevel
	}
	if out.FileOutput.Path == "" {
		out.FileOutput.Path = DefaultLogPath
	}
	return out
}
