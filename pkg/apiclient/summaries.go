package apiclient

import (
	"context"
	"encoding/json"
	"net/url"

	"docdesk/pkg/domain"
)

// SummariesAPI groups the /summarize endpoints.
type SummariesAPI struct {
	c *Client
}

// SummaryOptions shapes a generated summary.
type SummaryOptions struct {
	Length     string   `json:"length,omitempty"`
	Style      string   `json:"style,omitempty"`
	FocusAreas []string `json:"focusAreas,omitempty"`
	Language   string   `json:"language,omitempty"`
}

// DefaultSummaryOptions is used when the caller sets neither length nor style.
var DefaultSummaryOptions = SummaryOptions{Length: "medium", Style: "executive"}

// Generate requests a summary for a document.
func (s *SummariesAPI) Generate(ctx context.Context, documentID string, opts SummaryOptions) (domain.Summary, error) {
	if opts.Length == "" && opts.Style == "" {
		focus, lang := opts.FocusAreas, opts.Language
		opts = DefaultSummaryOptions
		opts.FocusAreas, opts.Language = focus, lang
	}
	body := map[string]any{"documentId": documentID, "options": opts}
	var raw json.RawMessage
	if err := s.c.Post(ctx, "/summarize", body, &raw); err != nil {
		return domain.Summary{}, err
	}
	sum, err := decodeSummary(raw)
	if err != nil {
		return domain.Summary{}, err
	}
	if sum.DocumentID == "" {
		sum.DocumentID = documentID
	}
	return sum, nil
}

// ForDocument lists stored summaries of a document.
func (s *SummariesAPI) ForDocument(ctx context.Context, documentID, summaryID, style string) ([]domain.Summary, error) {
	q := newQuery().str("summaryId", summaryID).str("style", style)
	var raw json.RawMessage
	if err := s.c.Get(ctx, "/summarize/"+url.PathEscape(documentID), q.values(), &raw); err != nil {
		return nil, err
	}
	var out []domain.Summary
	found, err := decodeList(raw, &out, "summaries")
	if err != nil {
		return nil, invalidResponse("summaries: %v", err)
	}
	if !found {
		return nil, invalidResponse("summaries response carries no list")
	}
	return out, nil
}

// Get returns one stored summary.
func (s *SummariesAPI) Get(ctx context.Context, summaryID string) (domain.Summary, error) {
	var raw json.RawMessage
	if err := s.c.Get(ctx, "/summarize/summary/"+url.PathEscape(summaryID), nil, &raw); err != nil {
		return domain.Summary{}, err
	}
	return decodeSummary(raw)
}

// Delete removes a stored summary.
func (s *SummariesAPI) Delete(ctx context.Context, summaryID string) error {
	return s.c.Delete(ctx, "/summarize/"+url.PathEscape(summaryID), nil, nil)
}

// decodeSummary accepts {summary:{...}}, {summary:"text"} and a bare summary.
func decodeSummary(raw json.RawMessage) (domain.Summary, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return domain.Summary{}, invalidResponse("summary: %v", err)
	}
	inner, ok := obj["summary"]
	if !ok || isNull(inner) {
		inner = raw
	}
	var text string
	if err := json.Unmarshal(inner, &text); err == nil {
		if text == "" {
			return domain.Summary{}, invalidResponse("summary response carries no content")
		}
		return domain.Summary{Content: text}, nil
	}
	var sum domain.Summary
	if err := json.Unmarshal(inner, &sum); err != nil {
		return domain.Summary{}, invalidResponse("summary: %v", err)
	}
	if sum.Content == "" {
		return domain.Summary{}, invalidResponse("summary response carries no content")
	}
	return sum, nil
}
