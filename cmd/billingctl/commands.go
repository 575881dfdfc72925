package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuelReschke/CoachFox/internal/pkg/billing"
	"github.com/ManuelReschke/CoachFox/internal/pkg/database"
	"github.com/ManuelReschke/CoachFox/internal/pkg/env"
)

const commandTimeout = 60 * time.Second

// serviceOpener builds the billing service a command runs against.
type serviceOpener func() (*billing.Service, error)

func openService() (*billing.Service, error) {
	env.SetupEnvFile()
	cfg := billing.LoadConfigFromEnv()
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	database.SetupDatabase()
	return billing.NewServiceFromDB(database.GetDB()), nil
}

func newRootCmd(open serviceOpener) *cobra.Command {
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Inspect and repair organization billing records",
		SilenceUsage:  true,
	}
	root.AddCommand(
		newShowCmd(open),
		newResyncCmd(open),
		newTerminateCmd(open),
	)
	return root
}

func orgFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "org", "", "organization id")
	_ = cmd.MarkFlagRequired("org")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newShowCmd(open serviceOpener) *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the billing record and resolved entitlements",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			summary, err := svc.Summary(ctx, strings.TrimSpace(orgID))
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	orgFlag(cmd, &orgID)
	return cmd
}

func newResyncCmd(open serviceOpener) *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Pull the subscription from Stripe and apply it to the local record",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			rec, err := svc.Resync(ctx, strings.TrimSpace(orgID))
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
	orgFlag(cmd, &orgID)
	return cmd
}

func newTerminateCmd(open serviceOpener) *cobra.Command {
	var (
		orgID string
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "terminate",
		Short: "Cancel the subscription immediately, without waiting for the period end",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("terminate is irreversible, pass --yes to confirm")
			}
			svc, err := open()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			res, err := svc.HardCancel(ctx, strings.TrimSpace(orgID))
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	orgFlag(cmd, &orgID)
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the termination")
	return cmd
}
