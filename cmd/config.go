package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"lms-agent/config"
	"lms-agent/model"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the role table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), roleTable(cfg))
		fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func roleTable(cfg *config.Config) string {
	rows := make([][]string, 0, len(model.Roles))
	for _, role := range model.Roles {
		rule := cfg.RateLimits[role]
		intents := make([]string, 0, len(cfg.Permissions[role]))
		for _, in := range cfg.Permissions[role] {
			intents = append(intents, string(in))
		}
		sort.Strings(intents)
		rows = append(rows, []string{
			string(role),
			strconv.Itoa(rule.Capacity),
			strconv.FormatFloat(rule.RefillPerSecond, 'f', -1, 64),
			strings.Join(intents, "\n"),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		BorderRow(true).
		Headers("Role", "Burst", "Refill/s", "Intents").
		Rows(rows...)
	return t.String()
}
