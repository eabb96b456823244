package config

import "fmt"

// ConfigError reports missing or invalid configuration. It is the only
// error that makes the agent exit at startup.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error (%s): %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
