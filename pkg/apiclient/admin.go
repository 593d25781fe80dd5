package apiclient

import (
	"context"
	"encoding/json"
	"net/url"

	"docdesk/pkg/domain"
)

// AdminAPI groups the admin-only endpoints. The server enforces the role;
// callers are expected to check the session before offering these calls.
type AdminAPI struct {
	c *Client
}

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Page   int
	Limit  int
	Search string
	Role   domain.UserRole
	Status string
}

// UserPage is one page of users.
type UserPage struct {
	Users      []domain.User      `json:"users"`
	Pagination *domain.Pagination `json:"pagination"`
	Summary    map[string]any     `json:"summary"`
}

// Users lists accounts.
func (a *AdminAPI) Users(ctx context.Context, f UserFilter) (UserPage, error) {
	q := newQuery().num("page", f.Page).num("limit", f.Limit).str("search", f.Search).
		str("role", string(f.Role)).str("status", f.Status)
	var out UserPage
	if err := a.c.Get(ctx, "/admin/users", q.values(), &out); err != nil {
		return UserPage{}, err
	}
	return out, nil
}

// User returns one account.
func (a *AdminAPI) User(ctx context.Context, id string) (domain.User, error) {
	var raw json.RawMessage
	if err := a.c.Get(ctx, "/admin/users/"+url.PathEscape(id), nil, &raw); err != nil {
		return domain.User{}, err
	}
	return decodeUser(raw)
}

// UserPatch holds the admin-editable account fields.
type UserPatch struct {
	Name         *string          `json:"name,omitempty"`
	Email        *string          `json:"email,omitempty"`
	Role         *domain.UserRole `json:"role,omitempty"`
	Status       *string          `json:"status,omitempty"`
	StorageLimit *int64           `json:"storageLimit,omitempty"`
}

// UpdateUser edits an account.
func (a *AdminAPI) UpdateUser(ctx context.Context, id string, patch UserPatch) (domain.User, error) {
	var raw json.RawMessage
	if err := a.c.Put(ctx, "/admin/users/"+url.PathEscape(id), patch, &raw); err != nil {
		return domain.User{}, err
	}
	return decodeUser(raw)
}

// DeleteUser removes an account and returns the server's resource tally.
func (a *AdminAPI) DeleteUser(ctx context.Context, id string) (map[string]any, error) {
	var out struct {
		Message          string         `json:"message"`
		DeletedResources map[string]any `json:"deletedResources"`
	}
	if err := a.c.Delete(ctx, "/admin/users/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.DeletedResources, nil
}

// AnalyticsParams selects the analytics window.
type AnalyticsParams struct {
	Period    string
	StartDate string
	EndDate   string
}

// Analytics returns usage statistics.
func (a *AdminAPI) Analytics(ctx context.Context, p AnalyticsParams) (domain.Analytics, error) {
	q := newQuery().str("period", p.Period).str("startDate", p.StartDate).str("endDate", p.EndDate)
	var out struct {
		Analytics *domain.Analytics `json:"analytics"`
	}
	if err := a.c.Get(ctx, "/admin/analytics", q.values(), &out); err != nil {
		return domain.Analytics{}, err
	}
	if out.Analytics == nil {
		return domain.Analytics{}, invalidResponse("analytics response carries no analytics")
	}
	return *out.Analytics, nil
}

// DocumentFilter narrows the admin document listing.
type DocumentFilter struct {
	Page   int
	Limit  int
	UserID string
	Status string
	Search string
}

// Documents lists documents of all users.
func (a *AdminAPI) Documents(ctx context.Context, f DocumentFilter) (DocumentPage, error) {
	q := newQuery().num("page", f.Page).num("limit", f.Limit).str("userId", f.UserID).
		str("status", f.Status).str("search", f.Search)
	var raw json.RawMessage
	if err := a.c.Get(ctx, "/admin/documents", q.values(), &raw); err != nil {
		return DocumentPage{}, err
	}
	var docs []domain.Document
	found, err := decodeList(raw, &docs, "documents")
	if err != nil {
		return DocumentPage{}, invalidResponse("admin documents: %v", err)
	}
	if !found {
		return DocumentPage{}, invalidResponse("admin documents response carries no documents")
	}
	return DocumentPage{Documents: docs, Pagination: decodePagination(raw)}, nil
}

// Activity returns recent activity entries.
func (a *AdminAPI) Activity(ctx context.Context, limit int, kind string) ([]domain.Activity, error) {
	q := newQuery().num("limit", limit).str("type", kind)
	var raw json.RawMessage
	if err := a.c.Get(ctx, "/admin/activity", q.values(), &raw); err != nil {
		return nil, err
	}
	var out []domain.Activity
	if _, err := decodeList(raw, &out, "activities"); err != nil {
		return nil, invalidResponse("activity: %v", err)
	}
	return out, nil
}

// Broadcast is a notification sent to a set of users.
type Broadcast struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	Recipients any    `json:"recipients"`
	Type       string `json:"type"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
}

// BroadcastResult acknowledges a broadcast.
type BroadcastResult struct {
	BroadcastID    string `json:"broadcastId"`
	RecipientCount int    `json:"recipientCount"`
}

// SendBroadcast posts a notification.
func (a *AdminAPI) SendBroadcast(ctx context.Context, b Broadcast) (BroadcastResult, error) {
	var out BroadcastResult
	if err := a.c.Post(ctx, "/admin/broadcast", b, &out); err != nil {
		return BroadcastResult{}, err
	}
	return out, nil
}

func decodeUser(raw json.RawMessage) (domain.User, error) {
	var user domain.User
	found, err := decodeMember(raw, "user", &user)
	if err != nil {
		return domain.User{}, invalidResponse("user: %v", err)
	}
	if !found {
		return domain.User{}, invalidResponse("response carries no user")
	}
	return user, nil
}
