package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"smartlab/internal/attendance"
	"smartlab/internal/auth"
	"smartlab/internal/store"
)

func absencesCmd(a *App) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "absences",
		Short: "Insert absence placeholders for everybody without a record on a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			day := a.clock.Today()
			if date != "" {
				parsed, err := attendance.ParseDate(date)
				if err != nil {
					return err
				}
				day = parsed
			}
			n, err := a.resolver.RegisterAbsences(cmd.Context(), day)
			if err != nil {
				return fmt.Errorf("register absences: %w", err)
			}
			fmt.Printf("%s: %d absence(s) registered\n", day, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default: today)")
	return cmd
}

func badgesCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "badges",
		Short: "Badge directory commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List enrolled badges with presence counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			list, err := a.badges.ListEnrolled(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tBADGE\tPRESENCES")
			for _, e := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", e.PersonID, e.Name, e.BadgeID, e.PresenceCount)
			}
			return tw.Flush()
		},
	})
	return cmd
}

func historyCmd(a *App) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <personId>",
		Short: "Show the newest attendance records of a person",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("person id %q: %w", args[0], err)
			}
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			records, err := a.resolver.History(cmd.Context(), id, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tIN\tOUT")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Date, clock(r.CheckIn), clock(r.CheckOut))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")
	return cmd
}

func clock(t *attendance.TimeOfDay) string {
	if t == nil {
		return "-"
	}
	return t.String()
}

func tokenCmd(a *App) *cobra.Command {
	var subject, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a reader or an operator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			accessTTL := a.cfg.AccessTTL
			if ttl > 0 {
				accessTTL = ttl
			}
			iss := auth.NewIssuer(a.cfg.JWTIssuer, a.cfg.JWTSigningKey, accessTTL, a.cfg.RefreshTTL)
			pair, err := iss.Issue(subject, role)
			if err != nil {
				return err
			}
			fmt.Println(pair.AccessToken)
			fmt.Fprintf(os.Stderr, "expires %s\n", pair.AccessExp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "reader id or operator name")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "device or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: ACCESS_TTL)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func devicesCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Reader registry commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <refreshToken>",
		Short: "Revoke a reader refresh token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd.Context()); err != nil {
				return err
			}
			if err := a.backends.Devices.RevokeRefreshToken(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("revoked")
			return nil
		},
	})
	return cmd
}

func migrateCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}
			db, err := store.NewDB(cmd.Context(), a.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return store.Migrate(db.Client, a.logger.Named("migrate"))
		},
	}
}
