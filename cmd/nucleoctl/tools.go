// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/juleno/CA-DevAvance/auth"
	"github.com/juleno/CA-DevAvance/connectors/config"
)

// configCmd returns the config subcommand
func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "example",
		Short: "Print a commented configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.ExampleConfigFile())
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration from NUCLEOTIC_CONFIG and the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK\n  directory: %s\n  engine:    %s\n  listen:    %s\n",
				s.Directory.Redacted(), s.StorageEngine, s.ListenAddress())
			return nil
		},
	})
	return cmd
}

// passwordCmd returns the password subcommand
func passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Password digests for license records",
	}

	var salt string
	hash := &cobra.Command{
		Use:   "hash <password>",
		Short: "Print the digest stored under identifiers.password",
		Long: `Print the hex SHA-512 digest of password+salt, as the gateway compares it at login.

Examples:
  HASH_SALT=... nucleoctl password hash 'correct horse'
  nucleoctl password hash 'correct horse' --salt pepper`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if salt == "" {
				return fmt.Errorf("--salt or HASH_SALT is required")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), auth.HashPassword(args[0], salt))
			return err
		},
	}
	hash.Flags().StringVar(&salt, "salt", os.Getenv("HASH_SALT"), "Salt appended to the password (default: $HASH_SALT)")
	cmd.AddCommand(hash)

	return cmd
}
