/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "salesbot",
	Short: "Conversational sales assistant for Telegram shops",
	Long: `salesbot answers customers in Russian and Kazakh: it searches the catalog,
keeps a cart, issues quotes and invoices, and hands every order to a manager as a lead.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if value := strings.TrimSpace(configPath); value != "" {
			return os.Setenv("SALESBOT_CONFIG", value)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json (overrides SALESBOT_CONFIG)")
}
