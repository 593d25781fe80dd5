package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docdesk/pkg/apiclient"
	"docdesk/pkg/workspace"
)

func (a *app) docsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"documents"},
		Short:   "List, upload and manage documents",
	}
	cmd.AddCommand(
		a.docsListCmd(),
		a.docsUploadCmd(),
		a.docsDeleteCmd(),
		a.docsRenameCmd(),
		a.docsSummarizeCmd(),
		a.docsDownloadCmd(),
	)
	return cmd
}

func (a *app) docsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.restoreWithDocuments(cmd.Context()); err != nil {
				return sessionErr(err)
			}
			docs := a.ws.Documents.List()
			return a.emit(cmd.OutOrStdout(), docs, func() { printDocuments(cmd.OutOrStdout(), docs) })
		},
	}
}

func (a *app) docsUploadCmd() *cobra.Command {
	var (
		tags     []string
		metadata string
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var meta map[string]any
			if metadata != "" {
				if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
					return fmt.Errorf("parse --metadata: %w", err)
				}
			}
			if err := a.restoreWithDocuments(cmd.Context()); err != nil {
				return sessionErr(err)
			}
			doc, err := a.ws.Documents.Upload(cmd.Context(), workspace.UploadInput{
				Filename: filepath.Base(args[0]),
				Content:  content,
				Tags:     tags,
				Metadata: meta,
			})
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), doc, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("Uploaded "+doc.Name), idStyle.Render(doc.ID))
			})
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag to attach (repeatable)")
	cmd.Flags().StringVar(&metadata, "metadata", "", "metadata as a JSON object")
	return cmd
}

func (a *app) docsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its chat history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			if err := a.ws.Documents.Delete(cmd.Context(), args[0]); err != nil {
				return sessionErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Deleted "+args[0]))
			return nil
		},
	}
}

func (a *app) docsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <document-id> <name>",
		Short: "Rename a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restoreWithDocuments(cmd.Context()); err != nil {
				return sessionErr(err)
			}
			doc, err := a.ws.Documents.Rename(cmd.Context(), args[0], args[1])
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), doc, func() {
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Renamed to "+doc.Name))
			})
		},
	}
}

func (a *app) docsSummarizeCmd() *cobra.Command {
	var opts apiclient.SummaryOptions
	cmd := &cobra.Command{
		Use:   "summarize <document-id>",
		Short: "Generate a summary of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restoreWithDocuments(cmd.Context()); err != nil {
				return sessionErr(err)
			}
			sum, err := a.ws.Documents.Summarize(cmd.Context(), args[0], opts)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), sum, func() { printSummary(cmd.OutOrStdout(), sum) })
		},
	}
	cmd.Flags().StringVar(&opts.Style, "style", "", "executive, detailed, bullet or technical")
	cmd.Flags().StringVar(&opts.Length, "length", "", "short, medium or long")
	cmd.Flags().StringSliceVar(&opts.FocusAreas, "focus", nil, "focus area (repeatable)")
	cmd.Flags().StringVar(&opts.Language, "language", "", "summary language")
	return cmd
}

func (a *app) docsDownloadCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <document-id>",
		Short: "Download the original file of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			tmp, err := os.CreateTemp(filepath.Dir(firstNonEmpty(output, "./x")), ".docdesk-download-*")
			if err != nil {
				return fmt.Errorf("create download file: %w", err)
			}
			defer os.Remove(tmp.Name())
			n, name, err := a.ws.Documents.Download(cmd.Context(), args[0], tmp)
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return sessionErr(err)
			}
			target := output
			if target == "" {
				target = filepath.Base(firstNonEmpty(name, args[0]))
			}
			if err := os.Rename(tmp.Name(), target); err != nil {
				return fmt.Errorf("save download: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("Saved "+target), dimStyle.Render(humanSize(n)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination path (default: server filename)")
	return cmd
}
