// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main implements the nucleoctl CLI for gateway maintenance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nucleoctl",
		Short:         "Nucleotic gateway CLI",
		Long:          `nucleoctl is a command-line tool for maintaining Nucleotic tenant databases.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(archivesCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(passwordCmd())

	return cmd
}
