package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"docdesk/internal/health"
)

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := health.NewChecker(a.cfg.HealthURL, nil).Check(cmd.Context())
			err := a.emit(cmd.OutOrStdout(), res, func() {
				out := cmd.OutOrStdout()
				switch {
				case res.Healthy:
					fmt.Fprintf(out, "%s %s\n", successStyle.Render(res.Message), dimStyle.Render(res.ResponseTime.String()))
				case res.APIReachable:
					fmt.Fprintln(out, warningStyle.Render(res.Message))
				default:
					fmt.Fprintln(out, warningStyle.Render(res.Message))
					fmt.Fprintln(out, dimStyle.Render("  "+res.Error))
					fmt.Fprintln(out, dimStyle.Render("  check that the server runs and "+a.cfg.HealthURL+" is reachable"))
				}
			})
			if err != nil {
				return err
			}
			if !res.Healthy {
				return fmt.Errorf("backend unhealthy: %s", res.Message)
			}
			return nil
		},
	}
}
