package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lms-agent/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lms-agent",
	Short: "Conversational assistant for LMS enrollment administration",
	Long: `lms-agent accepts natural-language chat messages, classifies them into
LMS operations and runs them against the LMS API on behalf of the caller's role.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to the YAML config file (defaults are used when empty)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
