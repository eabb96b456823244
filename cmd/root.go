package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the agentim application
var rootCmd = &cobra.Command{
	Use:   "agentim",
	Short: "Chat with an assistant that can use Gmail, Google Calendar and Google Search",
	Long: `agentim is a conversational agent that answers in natural language and
acts on your Google account when a request needs it: searching and sending
mail, creating calendar events and searching the web.

It can run as:
  - An interactive chat in the terminal (default)
  - An MCP (Model Context Protocol) server for AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

var (
	configPath string
	debugMode  bool
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "agentim version %s\n" .Version}}`)

	// If no subcommand is provided, start a chat session by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default: $XDG_CONFIG_HOME/agentim/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
