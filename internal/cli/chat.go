package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions about a document",
	}
	cmd.AddCommand(a.chatSendCmd(), a.chatHistoryCmd(), a.chatClearCmd(), a.chatConversationsCmd())
	return cmd
}

func (a *app) chatSendCmd() *cobra.Command {
	var fresh bool
	cmd := &cobra.Command{
		Use:   "send <document-id> <message...>",
		Short: "Send a question and print the answer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docID := args[0]
			if err := a.restoreWithDocuments(ctx); err != nil {
				return sessionErr(err)
			}
			// Loading the stored thread continues its conversation.
			if !fresh {
				if _, err := a.ws.Chats.LoadHistory(ctx, docID); err != nil {
					return sessionErr(err)
				}
			}
			reply, err := a.ws.Chats.Send(ctx, docID, strings.Join(args[1:], " "))
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), reply, func() { printMessage(cmd.OutOrStdout(), reply) })
		},
	}
	cmd.Flags().BoolVar(&fresh, "new", false, "start a new conversation")
	return cmd
}

func (a *app) chatHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <document-id>",
		Short: "Show the chat history of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.restoreWithDocuments(cmd.Context()); err != nil {
				return sessionErr(err)
			}
			msgs, err := a.ws.Chats.LoadHistory(cmd.Context(), args[0])
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), msgs, func() { printMessages(cmd.OutOrStdout(), msgs) })
		},
	}
}

func (a *app) chatClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <document-id>",
		Short: "Delete the chat history of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.restoreWithDocuments(ctx); err != nil {
				return sessionErr(err)
			}
			if _, err := a.ws.Chats.LoadHistory(ctx, args[0]); err != nil {
				return sessionErr(err)
			}
			if err := a.ws.Chats.Clear(ctx, args[0]); err != nil {
				return sessionErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Chat history cleared"))
			return nil
		},
	}
}

func (a *app) chatConversationsCmd() *cobra.Command {
	var page, limit int
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List your conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.restore(cmd.Context()); err != nil {
				return err
			}
			convs, _, err := a.client.Chat.Conversations(cmd.Context(), page, limit)
			if err != nil {
				return sessionErr(err)
			}
			return a.emit(cmd.OutOrStdout(), convs, func() {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "CONVERSATION\tDOCUMENT\tMESSAGES\tLAST")
				for _, c := range convs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, firstNonEmpty(c.DocumentName, c.DocumentID), c.MessageCount, c.LastMessage)
				}
				_ = tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	return cmd
}
