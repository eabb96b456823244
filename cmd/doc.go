// Package cmd implements the command-line interface for agentim.
//
// This package provides the following commands:
//   - install: Create the configuration directory and a default config file
//   - setup: Store the Anthropic API key and authorize the Google account
//   - run: Start an interactive chat session (default command)
//   - serve: Expose the Google tools over MCP on stdio
//   - status: Show the state of the stored Google credential
//   - generate-docs: Generate markdown documentation for all tools
//   - version: Display version information
//
// The run command is the default command when no subcommand is specified.
package cmd
