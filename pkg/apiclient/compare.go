package apiclient

import (
	"context"
	"encoding/json"
	"net/url"

	"docdesk/pkg/domain"
)

// CompareAPI groups the /compare endpoints.
type CompareAPI struct {
	c *Client
}

// Comparison types accepted by the server.
const (
	CompareFull      = "full"
	CompareStructure = "structure"
	CompareContent   = "content"
	CompareMetadata  = "metadata"
)

// CompareOptions tunes a comparison.
type CompareOptions struct {
	ComparisonType   string `json:"comparisonType,omitempty"`
	IgnoreFormatting bool   `json:"ignoreFormatting,omitempty"`
	CaseSensitive    bool   `json:"caseSensitive,omitempty"`
	HighlightChanges bool   `json:"highlightChanges,omitempty"`
}

// Run compares two documents.
func (cmp *CompareAPI) Run(ctx context.Context, documentID1, documentID2 string, opts CompareOptions) (domain.Comparison, error) {
	if opts.ComparisonType == "" {
		opts.ComparisonType = CompareFull
	}
	body := map[string]any{
		"documentId1":    documentID1,
		"documentId2":    documentID2,
		"comparisonType": opts.ComparisonType,
		"options":        opts,
	}
	var raw json.RawMessage
	if err := cmp.c.Post(ctx, "/compare", body, &raw); err != nil {
		return domain.Comparison{}, err
	}
	return decodeComparison(raw)
}

// Get returns a stored comparison.
func (cmp *CompareAPI) Get(ctx context.Context, id string) (domain.Comparison, error) {
	var raw json.RawMessage
	if err := cmp.c.Get(ctx, "/compare/"+url.PathEscape(id), nil, &raw); err != nil {
		return domain.Comparison{}, err
	}
	return decodeComparison(raw)
}

// CompareHistoryParams narrows the comparison history.
type CompareHistoryParams struct {
	Page       int
	Limit      int
	DocumentID string
}

// History lists past comparisons.
func (cmp *CompareAPI) History(ctx context.Context, p CompareHistoryParams) ([]domain.Comparison, *domain.Pagination, error) {
	q := newQuery().num("page", p.Page).num("limit", p.Limit).str("documentId", p.DocumentID)
	var raw json.RawMessage
	if err := cmp.c.Get(ctx, "/compare/history", q.values(), &raw); err != nil {
		return nil, nil, err
	}
	var out []domain.Comparison
	found, err := decodeList(raw, &out, "comparisons")
	if err != nil {
		return nil, nil, invalidResponse("comparison history: %v", err)
	}
	if !found {
		return nil, nil, invalidResponse("comparison history carries no list")
	}
	return out, decodePagination(raw), nil
}

// Delete removes a stored comparison.
func (cmp *CompareAPI) Delete(ctx context.Context, id string) error {
	return cmp.c.Delete(ctx, "/compare/"+url.PathEscape(id), nil, nil)
}

func decodeComparison(raw json.RawMessage) (domain.Comparison, error) {
	var out domain.Comparison
	found, err := decodeMember(raw, "comparison", &out)
	if err != nil {
		return domain.Comparison{}, invalidResponse("comparison: %v", err)
	}
	if !found {
		return domain.Comparison{}, invalidResponse("response carries no comparison")
	}
	return out, nil
}
