// Package workspace holds the per-user client state: the document list and
// the chat threads attached to each document. Both stores are emptied
// whenever the signed-in user changes.
package workspace

import (
	"errors"
	"log/slog"

	"docdesk/pkg/apiclient"
	"docdesk/pkg/domain"
	"docdesk/pkg/preflight"
	"docdesk/pkg/session"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrSendInFlight     = errors.New("a message for this document is still being sent")
	ErrEmptyMessage     = errors.New("message is empty")
	// ErrStaleSession reports a response that arrived after the user changed;
	// it was discarded.
	ErrStaleSession = errors.New("session changed while the request was in flight")
)

const defaultPageSize = 100

// Options tunes a Workspace.
type Options struct {
	// Preflight validates uploads locally when set.
	Preflight *preflight.Checker
	// PageSize is the page length used by Documents.Refresh.
	PageSize int
	Logger   *slog.Logger
}

// Workspace owns the Documents and Chats of the current session.
type Workspace struct {
	Documents *Documents
	Chats     *Chats
}

// New wires both stores to sess. They are reset synchronously on every
// identity change, before the call that caused it returns.
func New(client *apiclient.Client, sess *session.Session, opts Options) *Workspace {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	chats := &Chats{
		client:  client,
		session: sess,
		logger:  logger.With("component", "chats"),
		threads: map[string]*thread{},
	}
	docs := &Documents{
		client:    client,
		session:   sess,
		chats:     chats,
		preflight: opts.Preflight,
		pageSize:  pageSize,
		logger:    logger.With("component", "documents"),
	}
	chats.docs = docs
	w := &Workspace{Documents: docs, Chats: chats}
	sess.OnChange(func(prev, cur *domain.User) {
		logger.Debug("resetting workspace", "from", idOf(prev), "to", idOf(cur))
		w.Reset()
	})
	return w
}

// Reset empties both stores.
func (w *Workspace) Reset() {
	w.Chats.Reset()
	w.Documents.Reset()
}

func idOf(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
