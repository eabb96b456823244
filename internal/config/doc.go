// Package config loads the agentim configuration from
// $XDG_CONFIG_HOME/agentim/config.yaml and the environment.
package config
