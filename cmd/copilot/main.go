// Package main provides the entry point for the feed copilot CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/jonathan/feed-copilot/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	v         = config.NewViper()
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Classify and decorate the profiles on a professional feed",
	Long: `copilot drives a browser on a professional social network. It finds the
profiles linked from the visible page, scrapes each one in a hidden tab,
classifies it with an embedding model and decorates the page with the result.

Configuration is read from copilot.yaml (or --config) and COPILOT_ environment
variables; a .env file in the working directory is loaded first.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./copilot.yaml or ~/.config/copilot/copilot.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "print pipeline progress and console-formatted logs")

	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	configErr = config.ReadFile(v, cfgFile)
}

// loadConfig returns the validated configuration for the current invocation.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	return config.FromViper(v)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
