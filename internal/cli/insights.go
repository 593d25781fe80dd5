package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"docdesk/pkg/apiclient"
)

func (a *app) compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare two documents",
	}
	cmd.AddCommand(a.compareRunCmd(), a.compareShowCmd(), a.compareHistoryCmd(), a.compareDeleteCmd())
	return cmd
}

func (a *app) compareRunCmd() *cobra.Command {
	var opts apiclient.CompareOptions
	cmd := &cobra.Command{
		Use:   "run <document-id> <document-id>",
		Short: "Run a comparison",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			res, err := a.client.Compare.Run(cmd.Context(), args[0], args[1], opts)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), res, func() { printComparison(cmd.OutOrStdout(), res) })
		},
	}
	cmd.Flags().StringVar(&opts.ComparisonType, "type", apiclient.CompareFull, "full, structure, content or metadata")
	cmd.Flags().BoolVar(&opts.IgnoreFormatting, "ignore-formatting", false, "ignore formatting differences")
	cmd.Flags().BoolVar(&opts.CaseSensitive, "case-sensitive", false, "compare case-sensitively")
	cmd.Flags().BoolVar(&opts.HighlightChanges, "highlight", true, "ask the server to highlight changes")
	return cmd
}

func (a *app) compareShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <comparison-id>",
		Short: "Show a stored comparison",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			res, err := a.client.Compare.Get(cmd.Context(), args[0])
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), res, func() { printComparison(cmd.OutOrStdout(), res) })
		},
	}
}

func (a *app) compareHistoryCmd() *cobra.Command {
	var p apiclient.CompareHistoryParams
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past comparisons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			items, _, err := a.client.Compare.History(cmd.Context(), p)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), items, func() {
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No comparisons"))
				}
				for _, c := range items {
					printComparison(cmd.OutOrStdout(), c)
				}
			})
		},
	}
	cmd.Flags().IntVar(&p.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&p.Limit, "limit", 10, "page size")
	cmd.Flags().StringVar(&p.DocumentID, "document", "", "only comparisons involving this document")
	return cmd
}

func (a *app) compareDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <comparison-id>",
		Short: "Delete a stored comparison",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			if err := a.client.Compare.Delete(cmd.Context(), args[0]); err != nil {
				return sessionErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Deleted comparison "+args[0]))
			return nil
		},
	}
}

func (a *app) summariesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summaries",
		Short: "Browse stored summaries",
	}
	var style string
	list := &cobra.Command{
		Use:   "list <document-id>",
		Short: "List summaries of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			items, err := a.client.Summaries.ForDocument(cmd.Context(), args[0], "", style)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), items, func() {
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No summaries"))
				}
				for _, s := range items {
					printSummary(cmd.OutOrStdout(), s)
				}
			})
		},
	}
	list.Flags().StringVar(&style, "style", "", "only summaries of this style")

	show := &cobra.Command{
		Use:   "show <summary-id>",
		Short: "Show one summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			sum, err := a.client.Summaries.Get(cmd.Context(), args[0])
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), sum, func() { printSummary(cmd.OutOrStdout(), sum) })
		},
	}

	del := &cobra.Command{
		Use:   "delete <summary-id>",
		Short: "Delete one summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			if err := a.client.Summaries.Delete(cmd.Context(), args[0]); err != nil {
				return sessionErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Deleted summary "+args[0]))
			return nil
		},
	}
	cmd.AddCommand(list, show, del)
	return cmd
}
