package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docdesk/pkg/apiclient"
	"docdesk/pkg/domain"
)

var errNotAdmin = errors.New("admin role required")

func (a *app) adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer users and inspect usage (admin only)",
		// Cobra runs only the nearest persistent hook, so setup is repeated here.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			if !a.session.IsAdmin() {
				return errNotAdmin
			}
			return nil
		},
	}
	cmd.AddCommand(
		a.adminUsersCmd(),
		a.adminSetRoleCmd(),
		a.adminDeleteUserCmd(),
		a.adminAnalyticsCmd(),
		a.adminActivityCmd(),
		a.adminDocumentsCmd(),
		a.adminBroadcastCmd(),
		a.adminDashboardCmd(),
	)
	return cmd
}

func (a *app) adminUsersCmd() *cobra.Command {
	var f apiclient.UserFilter
	var role string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.Role = domain.UserRole(role)
			page, err := a.client.Admin.Users(cmd.Context(), f)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), page, func() { printUsers(cmd.OutOrStdout(), page.Users) })
		},
	}
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&f.Search, "search", "", "match email or name")
	cmd.Flags().StringVar(&role, "role", "", "user or admin")
	return cmd
}

func (a *app) adminSetRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-role <user-id> <user|admin>",
		Short: "Change the role of an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := domain.UserRole(strings.ToLower(args[1]))
			if role != domain.RoleUser && role != domain.RoleAdmin {
				return fmt.Errorf("unknown role %q", args[1])
			}
			u, err := a.client.Admin.UpdateUser(cmd.Context(), args[0], apiclient.UserPatch{Role: &role})
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), u, func() {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("%s is now %s", u.Email, u.Role)))
			})
		},
	}
}

func (a *app) adminDeleteUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <user-id>",
		Short: "Delete an account with all its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.Admin.DeleteUser(cmd.Context(), args[0])
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), res, func() {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Deleted user "+args[0]))
				for k, v := range res {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", k, v)
				}
			})
		},
	}
}

func (a *app) adminAnalyticsCmd() *cobra.Command {
	var p apiclient.AnalyticsParams
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show usage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			an, err := a.client.Admin.Analytics(cmd.Context(), p)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), an, func() { printAnalytics(cmd.OutOrStdout(), an) })
		},
	}
	cmd.Flags().StringVar(&p.Period, "period", "month", "day, week, month or year")
	cmd.Flags().StringVar(&p.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&p.EndDate, "end", "", "end date (YYYY-MM-DD)")
	return cmd
}

func (a *app) adminActivityCmd() *cobra.Command {
	var (
		limit int
		kind  string
	)
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.client.Admin.Activity(cmd.Context(), limit, kind)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), items, func() { printActivity(cmd.OutOrStdout(), items) })
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries")
	cmd.Flags().StringVar(&kind, "type", "", "only entries of this type")
	return cmd
}

func (a *app) adminDocumentsCmd() *cobra.Command {
	var f apiclient.DocumentFilter
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List documents of all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := a.client.Admin.Documents(cmd.Context(), f)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), page, func() { printDocuments(cmd.OutOrStdout(), page.Documents) })
		},
	}
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	cmd.Flags().StringVar(&f.UserID, "user", "", "only documents of this user")
	cmd.Flags().StringVar(&f.Search, "search", "", "match document name")
	return cmd
}

func (a *app) adminBroadcastCmd() *cobra.Command {
	var b apiclient.Broadcast
	var recipients []string
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send a notification to users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(b.Title) == "" || strings.TrimSpace(b.Message) == "" {
				return errors.New("--title and --message are required")
			}
			b.Recipients = "all"
			if len(recipients) > 0 {
				b.Recipients = recipients
			}
			res, err := a.client.Admin.SendBroadcast(cmd.Context(), b)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), res, func() {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("Sent to %d user(s)", res.RecipientCount)))
			})
		},
	}
	cmd.Flags().StringVar(&b.Title, "title", "", "notification title")
	cmd.Flags().StringVar(&b.Message, "message", "", "notification body")
	cmd.Flags().StringVar(&b.Type, "type", "info", "info, warning or maintenance")
	cmd.Flags().StringSliceVar(&recipients, "to", nil, "user ids (default: all users)")
	return cmd
}

type dashboard struct {
	Analytics domain.Analytics  `json:"analytics"`
	Users     []domain.User     `json:"users"`
	Activity  []domain.Activity `json:"activity"`
}

// adminDashboardCmd loads analytics, newest users and activity concurrently.
func (a *app) adminDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show analytics, users and activity at once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var d dashboard
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				an, err := a.client.Admin.Analytics(ctx, apiclient.AnalyticsParams{Period: "month"})
				d.Analytics = an
				return err
			})
			g.Go(func() error {
				page, err := a.client.Admin.Users(ctx, apiclient.UserFilter{Page: 1, Limit: 5})
				d.Users = page.Users
				return err
			})
			g.Go(func() error {
				items, err := a.client.Admin.Activity(ctx, 10, "")
				d.Activity = items
				return err
			})
			if err := g.Wait(); err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), d, func() {
				out := cmd.OutOrStdout()
				printAnalytics(out, d.Analytics)
				fmt.Fprintln(out, headerStyle.Render("Users"))
				printUsers(out, d.Users)
				fmt.Fprintln(out, headerStyle.Render("Recent activity"))
				printActivity(out, d.Activity)
			})
		},
	}
}
