package workspace

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docdesk/pkg/apiclient"
	"docdesk/pkg/domain"
	"docdesk/pkg/session"
)

const tempIDPrefix = "temp-"

type thread struct {
	messages       []domain.ChatMessage
	conversationID string
	// pending is the temp id of the provisional message, if any.
	pending string
}

// Chats keeps one message thread per document in insertion order.
type Chats struct {
	client  *apiclient.Client
	session *session.Session
	docs    *Documents
	logger  *slog.Logger

	mu      sync.RWMutex
	threads map[string]*thread
}

// Messages returns a copy of the thread of documentID.
func (c *Chats) Messages(documentID string) []domain.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	th := c.threads[documentID]
	if th == nil {
		return nil
	}
	return append([]domain.ChatMessage(nil), th.messages...)
}

// ConversationID returns the server conversation of documentID, or "".
func (c *Chats) ConversationID(documentID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if th := c.threads[documentID]; th != nil {
		return th.conversationID
	}
	return ""
}

// Pending reports whether a send for documentID awaits its reply.
func (c *Chats) Pending(documentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	th := c.threads[documentID]
	return th != nil && th.pending != ""
}

// Forget drops the thread and conversation of documentID.
func (c *Chats) Forget(documentID string) {
	c.mu.Lock()
	delete(c.threads, documentID)
	c.mu.Unlock()
}

// Reset drops every thread.
func (c *Chats) Reset() {
	c.mu.Lock()
	c.threads = map[string]*thread{}
	c.mu.Unlock()
}

// Send asks a question about a document. The question shows up at once as a
// provisional message; on success it is replaced in place by the confirmed
// message and the assistant reply is appended, on failure exactly that
// provisional entry is removed and the error returned.
func (c *Chats) Send(ctx context.Context, documentID, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	if _, err := c.session.RequireUser(); err != nil {
		return domain.ChatMessage{}, err
	}
	if _, ok := c.docs.Get(documentID); !ok {
		return domain.ChatMessage{}, ErrDocumentNotFound
	}
	epoch := c.session.Epoch()
	tempID := tempIDPrefix + uuid.NewString()

	c.mu.Lock()
	th := c.threads[documentID]
	if th == nil {
		th = &thread{}
		c.threads[documentID] = th
	}
	if th.pending != "" {
		c.mu.Unlock()
		return domain.ChatMessage{}, ErrSendInFlight
	}
	provisional := domain.ChatMessage{
		ID:             tempID,
		TempID:         tempID,
		ConversationID: th.conversationID,
		DocumentID:     documentID,
		Role:           domain.MessageUser,
		Content:        text,
		Timestamp:      time.Now().UTC(),
	}
	th.pending = tempID
	th.messages = append(th.messages, provisional)
	conv := th.conversationID
	c.mu.Unlock()

	reply, err := c.client.Chat.Query(ctx, apiclient.QueryInput{
		DocumentID:     documentID,
		Message:        text,
		ConversationID: conv,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Epoch() != epoch {
		if err != nil {
			return domain.ChatMessage{}, err
		}
		return domain.ChatMessage{}, ErrStaleSession
	}
	// The thread may have been forgotten or replaced while the request ran;
	// a reply is only applied to the thread that still awaits it.
	th = c.threads[documentID]
	if th == nil || th.pending != tempID {
		return reply.Assistant, err
	}
	th.pending = ""
	idx := -1
	for i := range th.messages {
		if th.messages[i].TempID == tempID {
			idx = i
			break
		}
	}
	if err != nil {
		if idx >= 0 {
			th.messages = append(th.messages[:idx], th.messages[idx+1:]...)
		}
		c.logger.Info("send failed", "document_id", documentID, "err", err)
		return domain.ChatMessage{}, err
	}

	if th.conversationID == "" {
		th.conversationID = reply.ConversationID
	}
	if idx >= 0 {
		confirmed := provisional
		confirmed.TempID = ""
		confirmed.ID = reply.UserMessageID
		if confirmed.ID == "" {
			confirmed.ID = reply.Assistant.ID + "-q"
		}
		confirmed.ConversationID = reply.ConversationID
		th.messages[idx] = confirmed
	}
	th.messages = append(th.messages, reply.Assistant)
	return reply.Assistant, nil
}

// Clear deletes the thread of documentID on the server, narrowed to the
// current conversation when one is known, and then locally. A failed call
// leaves the thread intact. It refuses while a send is pending.
func (c *Chats) Clear(ctx context.Context, documentID string) error {
	if _, err := c.session.RequireUser(); err != nil {
		return err
	}
	if c.Pending(documentID) {
		return ErrSendInFlight
	}
	epoch := c.session.Epoch()
	if _, err := c.client.Chat.ClearHistory(ctx, documentID, c.ConversationID(documentID)); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Epoch() != epoch {
		return ErrStaleSession
	}
	if th := c.threads[documentID]; th != nil && th.pending != "" {
		return ErrSendInFlight
	}
	delete(c.threads, documentID)
	return nil
}

// LoadHistory replaces the thread of documentID with the stored history.
// It refuses while a send is pending so the provisional entry is not lost.
func (c *Chats) LoadHistory(ctx context.Context, documentID string) ([]domain.ChatMessage, error) {
	if _, err := c.session.RequireUser(); err != nil {
		return nil, err
	}
	if c.Pending(documentID) {
		return nil, ErrSendInFlight
	}
	epoch := c.session.Epoch()
	msgs, err := c.client.Chat.History(ctx, documentID, apiclient.HistoryParams{})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.Epoch() != epoch {
		return nil, ErrStaleSession
	}
	th := c.threads[documentID]
	if th != nil && th.pending != "" {
		return nil, ErrSendInFlight
	}
	th = &thread{messages: msgs}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ConversationID != "" {
			th.conversationID = msgs[i].ConversationID
			break
		}
	}
	c.threads[documentID] = th
	return append([]domain.ChatMessage(nil), msgs...), nil
}
