package mysql

import "time"

// DefaultTable is the destination table used when none is configured.
const DefaultTable = "relay_messages"

const defaultDialTimeout = 5 * time.Second

// Config defines MySQL store behavior.
type Config struct {
	Table        string
	ValidateUTF8 bool
	validateSet  bool
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if !c.validateSet {
		c.ValidateUTF8 = true
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the destination table name. Use schema.table for a non-default schema.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithValidateUTF8 enables or disables rejecting invalid UTF-8 before the round trip.
// Enabled by default; the server would reject such a payload for a utf8mb4 column anyway.
func WithValidateUTF8(enabled bool) Option {
	return func(c *Config) {
		c.ValidateUTF8 = enabled
		c.validateSet = true
	}
}
