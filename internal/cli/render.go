package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"docdesk/pkg/domain"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// emit writes v as JSON under --json and calls styled otherwise.
func (a *app) emit(w io.Writer, v any, styled func()) error {
	if a.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	styled()
	return nil
}

func printDocuments(w io.Writer, docs []domain.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, warningStyle.Render("No documents yet"))
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d document(s)", len(docs))))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tSTATUS\tUPLOADED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, humanSize(d.Size), d.Status, formatTime(d.UploadedAt))
	}
	_ = tw.Flush()
}

func printMessages(w io.Writer, msgs []domain.ChatMessage) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No messages"))
		return
	}
	for _, m := range msgs {
		printMessage(w, m)
	}
}

func printMessage(w io.Writer, m domain.ChatMessage) {
	label := userStyle.Render("you")
	if m.Role == domain.MessageAssistant {
		label = assistantStyle.Render("assistant")
	}
	fmt.Fprintf(w, "%s %s\n%s\n", label, dimStyle.Render(formatTime(m.Timestamp)), m.Content)
	for _, s := range m.Sources {
		fmt.Fprintf(w, "  %s\n", dimStyle.Render(fmt.Sprintf("source: %s p.%d (%.2f)", s.Document, s.Page, s.Relevance)))
	}
}

func printSummary(w io.Writer, s domain.Summary) {
	title := headerStyle.Render("Summary of " + firstNonEmpty(s.DocumentName, s.DocumentID))
	body := s.Content
	if len(s.KeyPoints) > 0 {
		body += "\n\n" + "• " + strings.Join(s.KeyPoints, "\n• ")
	}
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, boxStyle.Render(body))
	fmt.Fprintln(w, idStyle.Render(fmt.Sprintf("%s · %s · %d words", s.ID, firstNonEmpty(s.Style, "default"), s.WordCount)))
}

func printComparison(w io.Writer, c domain.Comparison) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%s vs %s",
		firstNonEmpty(c.Document1Name, c.DocumentID1), firstNonEmpty(c.Document2Name, c.DocumentID2))))
	fmt.Fprintf(w, "%s %s\n", idStyle.Render(c.ID), dimStyle.Render(c.ComparisonType+" · "+c.Status))
	if c.Summary != nil {
		fmt.Fprintf(w, "similarity %.0f%%  changes %d (+%d -%d ~%d)\n",
			c.Summary.SimilarityScore*100, c.Summary.TotalChanges,
			c.Summary.Additions, c.Summary.Deletions, c.Summary.Modifications)
	}
}

func printUsers(w io.Writer, users []domain.User) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE\tJOINED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.Role, formatTime(u.CreatedAt))
	}
	_ = tw.Flush()
}

func printAnalytics(w io.Writer, an domain.Analytics) {
	rows := []string{
		fmt.Sprintf("users        %d total, %d active, %d new", an.Users.Total, an.Users.Active, an.Users.New),
		fmt.Sprintf("documents    %d total, %s stored", an.Documents.Total, humanSize(an.Documents.TotalStorage)),
		fmt.Sprintf("chats        %d total, %d this month", an.Chats.Total, an.Chats.ThisMonth),
		fmt.Sprintf("summaries    %d total, %d this month", an.Summaries.Total, an.Summaries.ThisMonth),
		fmt.Sprintf("comparisons  %d total, %d this month", an.Comparisons.Total, an.Comparisons.ThisMonth),
	}
	fmt.Fprintln(w, headerStyle.Render("Analytics "+firstNonEmpty(an.Period, "")))
	fmt.Fprintln(w, boxStyle.Render(strings.Join(rows, "\n")))
}

func printActivity(w io.Writer, items []domain.Activity) {
	if len(items) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No activity"))
		return
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s %s %s\n", dimStyle.Render(formatTime(it.Timestamp)), idStyle.Render(it.Type), it.Message)
	}
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
