// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/juleno/CA-DevAvance/connectors/config"
	"github.com/juleno/CA-DevAvance/gateway"
	"github.com/juleno/CA-DevAvance/server"
)

// Replaced in tests
var (
	loadSettings = config.LoadFromEnv
	newApp       = server.NewApp
)

// archivesCmd returns the archives subcommand
func archivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archives",
		Short: "Inspect and repair archive collections",
	}
	cmd.AddCommand(archivesReconcileCmd())
	return cmd
}

func archivesReconcileCmd() *cobra.Command {
	var license string
	var collections []string
	var purge bool
	var asJSON bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find archive records whose mutation never committed",
		Long: `Scan <collection>_archived in a tenant database for records written by a
replace or remove that failed after archiving.

The tenant is the first database of the given license, resolved through the
global directory configured for the gateway.

Examples:
  nucleoctl archives reconcile --license 65f0c0ffee0000000000beef --collection Orders
  nucleoctl archives reconcile --license 65f0c0ffee0000000000beef -c Orders -c Relations --purge`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(collections) == 0 {
				return fmt.Errorf("--collection is required")
			}
			licenseID, err := primitive.ObjectIDFromHex(license)
			if err != nil {
				return fmt.Errorf("invalid --license %q: %w", license, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			reports, err := reconcile(ctx, licenseID, collections, gateway.ReconcileOptions{Purge: purge})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(reports)
			}
			printReports(cmd.OutOrStdout(), reports, purge)
			return nil
		},
	}

	cmd.Flags().StringVarP(&license, "license", "l", "", "License id of the tenant (required)")
	cmd.Flags().StringSliceVarP(&collections, "collection", "c", nil, "Collection to scan, repeatable (required)")
	cmd.Flags().BoolVar(&purge, "purge", false, "Delete the orphan records found")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the reports as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall time limit")
	_ = cmd.MarkFlagRequired("license")

	return cmd
}

func reconcile(ctx context.Context, licenseID primitive.ObjectID, collections []string, opts gateway.ReconcileOptions) ([]gateway.ReconcileReport, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	app, err := newApp(ctx, settings)
	if err != nil {
		return nil, err
	}
	defer app.Close(context.Background())

	rc := app.Router.NewContext("")
	defer rc.Close(context.Background())

	descriptor, err := app.Authenticator.ResolveDescriptor(ctx, rc, licenseID)
	if err != nil {
		return nil, err
	}
	if err := rc.Bind(ctx, descriptor); err != nil {
		return nil, err
	}
	docs, err := rc.Business()
	if err != nil {
		return nil, err
	}

	reports := make([]gateway.ReconcileReport, 0, len(collections))
	for _, collection := range collections {
		report, err := docs.ReconcileOrphanArchives(ctx, collection, opts)
		if err != nil {
			return reports, fmt.Errorf("%s: %w", collection, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func printReports(out io.Writer, reports []gateway.ReconcileReport, purge bool) {
	for _, r := range reports {
		fmt.Fprintf(out, "%s: scanned %d, skipped %d, orphans %d", gateway.ArchiveCollection(r.Collection), r.Scanned, r.Skipped, len(r.Orphans))
		if purge {
			fmt.Fprintf(out, ", purged %d", r.Purged)
		}
		fmt.Fprintln(out)

		if len(r.Orphans) == 0 {
			continue
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  ARCHIVE\tACTION\tDOCUMENT\tDATE\tREASON")
		for _, o := range r.Orphans {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
				o.ArchiveID.Hex(), o.Action, o.DocumentID.Hex(), o.Date.UTC().Format(time.RFC3339), o.Reason)
		}
		tw.Flush()
	}
}
