package apiclient

import (
	"context"
	"encoding/json"
	"net/url"

	"docdesk/pkg/domain"
)

// ChatAPI groups the /chat endpoints.
type ChatAPI struct {
	c *Client
}

// QueryInput is one question about a document.
type QueryInput struct {
	DocumentID     string
	Message        string
	ConversationID string
}

// Reply is the server answer to a query.
type Reply struct {
	Assistant      domain.ChatMessage
	ConversationID string
	// UserMessageID is the server id of the question when the server echoes it.
	UserMessageID string
}

type queryResponse struct {
	Response *struct {
		wireMessage
		UserMessageID string `json:"userMessageId"`
	} `json:"response"`
}

// Query sends a question and returns the assistant reply.
func (ch *ChatAPI) Query(ctx context.Context, in QueryInput) (Reply, error) {
	body := map[string]any{
		"document_id": in.DocumentID,
		"message":     in.Message,
	}
	if in.ConversationID != "" {
		body["conversationId"] = in.ConversationID
	}
	var out queryResponse
	if err := ch.c.Post(ctx, "/chat/query", body, &out); err != nil {
		return Reply{}, err
	}
	if out.Response == nil || out.Response.ID == "" {
		return Reply{}, invalidResponse("chat response carries no message")
	}
	msg := out.Response.toDomain(domain.MessageAssistant)
	if msg.DocumentID == "" {
		msg.DocumentID = in.DocumentID
	}
	conv := msg.ConversationID
	if conv == "" {
		conv = in.ConversationID
	}
	msg.ConversationID = conv
	return Reply{Assistant: msg, ConversationID: conv, UserMessageID: out.Response.UserMessageID}, nil
}

// HistoryParams narrows a history fetch.
type HistoryParams struct {
	ConversationID string
	Limit          int
}

// History returns the stored thread for a document.
func (ch *ChatAPI) History(ctx context.Context, documentID string, p HistoryParams) ([]domain.ChatMessage, error) {
	q := newQuery().str("conversationId", p.ConversationID).num("limit", p.Limit)
	var raw json.RawMessage
	if err := ch.c.Get(ctx, "/chat/history/"+url.PathEscape(documentID), q.values(), &raw); err != nil {
		return nil, err
	}
	var wire []wireMessage
	found, err := decodeList(raw, &wire, "history", "messages")
	if err != nil {
		return nil, invalidResponse("chat history: %v", err)
	}
	if !found {
		return nil, invalidResponse("chat history response carries no messages")
	}
	msgs := make([]domain.ChatMessage, 0, len(wire))
	for _, w := range wire {
		m := w.toDomain(domain.MessageAssistant)
		if m.DocumentID == "" {
			m.DocumentID = documentID
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// ClearResult acknowledges a history deletion.
type ClearResult struct {
	Message         string `json:"message"`
	DeletedMessages int    `json:"deletedMessages"`
}

// ClearHistory deletes the stored thread of a document, narrowed to one
// conversation when conversationID is set.
func (ch *ChatAPI) ClearHistory(ctx context.Context, documentID, conversationID string) (ClearResult, error) {
	q := newQuery().str("conversationId", conversationID)
	var out ClearResult
	if err := ch.c.Delete(ctx, "/chat/history/"+url.PathEscape(documentID), q.values(), &out); err != nil {
		return ClearResult{}, err
	}
	return out, nil
}

// Conversation summarizes one stored conversation.
type Conversation struct {
	ID           string `json:"id"`
	DocumentID   string `json:"documentId"`
	DocumentName string `json:"documentName,omitempty"`
	MessageCount int    `json:"messageCount"`
	LastMessage  string `json:"lastMessage,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Conversations lists the user's conversations.
func (ch *ChatAPI) Conversations(ctx context.Context, page, limit int) ([]Conversation, *domain.Pagination, error) {
	q := newQuery().num("page", page).num("limit", limit)
	var raw json.RawMessage
	if err := ch.c.Get(ctx, "/chat/conversations", q.values(), &raw); err != nil {
		return nil, nil, err
	}
	var convs []Conversation
	if _, err := decodeList(raw, &convs, "conversations"); err != nil {
		return nil, nil, invalidResponse("conversations: %v", err)
	}
	return convs, decodePagination(raw), nil
}
