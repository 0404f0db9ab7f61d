// SPDX-FileCopyrightText: Copyright 2026 Keyfold Authors
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the keyfold command-line
// application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/keyfold/keyfold/pkg/logger"
	"github.com/keyfold/keyfold/pkg/versions"
)

var rootCmd = &cobra.Command{
	Use:               "keyfold",
	DisableAutoGenTag: true,
	Short:             "Keyfold - user identity and access token service",
	Long: `Keyfold is a user identity and access token service. It manages user
accounts and their registered applications, issues signed session, refresh,
master and application-scoped tokens, and authorizes proxied requests
against them.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the keyfold CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Display version information for keyfold",
		Run: func(_ *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()
			fmt.Printf("keyfold %s (commit %s, built %s, %s, %s)\n",
				info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		},
	}
}
