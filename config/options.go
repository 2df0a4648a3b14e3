package config

import "github.com/kmlawson/lmsp/prompt"

// ConfigOption overrides one field, typically from a command-line flag.
type ConfigOption func(*Config)

func SetModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

func SetPort(port int) ConfigOption {
	return func(c *Config) {
		c.Port = port
	}
}

func SetPipeMode(mode prompt.PipeMode) ConfigOption {
	return func(c *Config) {
		c.PipeMode = mode
	}
}

func SetWait(wait bool) ConfigOption {
	return func(c *Config) {
		c.Wait = wait
	}
}

func SetStats(stats bool) ConfigOption {
	return func(c *Config) {
		c.Stats = stats
	}
}

func SetFormat(format string) ConfigOption {
	return func(c *Config) {
		c.Format = format
	}
}

func SetAutoLoad(autoLoad bool) ConfigOption {
	return func(c *Config) {
		c.AutoLoad = autoLoad
	}
}

// SetTimeout sets the request timeout in seconds.
func SetTimeout(seconds int) ConfigOption {
	return func(c *Config) {
		c.Timeout = seconds
	}
}

// ApplyOptions returns a copy of cfg with options applied and validated.
// cfg itself is never modified.
func ApplyOptions(cfg *Config, options ...ConfigOption) (*Config, error) {
	next := *cfg
	for _, option := range options {
		option(&next)
	}
	if err := Validate(&next); err != nil {
		return nil, err
	}
	return &next, nil
}
