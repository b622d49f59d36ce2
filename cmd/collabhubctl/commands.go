package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/collabhub/collabhub/internal/repository"
)

func newUnlockCmd() *cobra.Command {
	var username, ip string
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Lift a brute-force lockout for a username and client IP",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if err := a.guard.Unlock(ctx, cliActor, username, ip); err != nil {
				return fmt.Errorf("failed to unlock: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s from %s\n", username, ip)
			return nil
		}),
	}
	cmd.Flags().StringVar(&username, "username", "", "login identifier that was locked")
	cmd.Flags().StringVar(&ip, "ip", "", "client IP the failures came from")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("ip")
	return cmd
}

func newAnonymizeCmd() *cobra.Command {
	var reason string
	var yes bool
	cmd := &cobra.Command{
		Use:   "anonymize [user-id]",
		Short: "Erase a user and anonymize their security and audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to erase without --yes")
			}

			user, err := a.users.GetByID(ctx, args[0])
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("user %s not found", args[0])
			}
			if err != nil {
				return err
			}

			req, err := a.gdpr.Erase(ctx, cliActor, user, reason)
			if err != nil {
				return fmt.Errorf("erase failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deletion request %s: %s\n", req.ID, req.Status)
			return nil
		}),
	}
	cmd.Flags().StringVar(&reason, "reason", "operator request", "reason recorded on the deletion request")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the erasure")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [user-id]",
		Short: "Print everything held about a user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			export, err := a.gdpr.Export(ctx, cliActor, args[0])
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("user %s not found", args[0])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(export)
		}),
	}
}

func newTokenStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token-stats",
		Short: "Show verification and reset token counts per purpose",
		RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			stats, err := a.issuer.Stats(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PURPOSE\tISSUED\tUSED\tEXPIRED UNUSED")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", s.Purpose, s.Issued, s.Used, s.ExpiredUnused)
			}
			return w.Flush()
		}),
	}
}
