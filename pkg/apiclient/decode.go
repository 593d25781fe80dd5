package apiclient

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"docdesk/pkg/domain"
)

// decodeMember decodes either {key: value} or the bare value into out. The
// bare form is only accepted when it carries an "id" member, so an unrelated
// object is never mistaken for the payload.
func decodeMember(raw json.RawMessage, key string, out any) (bool, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false, nil
	}
	if inner, ok := obj[key]; ok && !isNull(inner) {
		if err := json.Unmarshal(inner, out); err != nil {
			return false, err
		}
		return true, nil
	}
	if id, ok := obj["id"]; ok && !isNull(id) {
		if err := json.Unmarshal(raw, out); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// decodeList decodes a list that may arrive bare or under one of keys.
func decodeList(raw json.RawMessage, out any, keys ...string) (bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return true, json.Unmarshal(trimmed, out)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false, nil
	}
	for _, key := range keys {
		inner, ok := obj[key]
		if !ok || isNull(inner) {
			continue
		}
		if err := json.Unmarshal(inner, out); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// decodePagination reads the optional pagination member.
func decodePagination(raw json.RawMessage) *domain.Pagination {
	var obj struct {
		Pagination *domain.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	return obj.Pagination
}

type queryBuilder struct {
	v url.Values
}

func newQuery() *queryBuilder {
	return &queryBuilder{v: url.Values{}}
}

func (q *queryBuilder) str(key, value string) *queryBuilder {
	if value != "" {
		q.v.Set(key, value)
	}
	return q
}

func (q *queryBuilder) num(key string, value int) *queryBuilder {
	if value > 0 {
		q.v.Set(key, strconv.Itoa(value))
	}
	return q
}

func (q *queryBuilder) values() url.Values {
	if len(q.v) == 0 {
		return nil
	}
	return q.v
}

// wireMessage accepts both "type" and "role" for the message author.
type wireMessage struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	DocumentID     string          `json:"documentId"`
	Type           string          `json:"type"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Timestamp      time.Time       `json:"timestamp"`
	Confidence     *float64        `json:"confidence"`
	Sources        []domain.Source `json:"sources"`
}

func (w wireMessage) toDomain(fallbackRole domain.MessageRole) domain.ChatMessage {
	role := domain.MessageRole(w.Role)
	if role == "" {
		role = domain.MessageRole(w.Type)
	}
	if role == "" {
		role = fallbackRole
	}
	return domain.ChatMessage{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		DocumentID:     w.DocumentID,
		Role:           role,
		Content:        w.Content,
		Timestamp:      w.Timestamp,
		Confidence:     w.Confidence,
		Sources:        w.Sources,
	}
}
