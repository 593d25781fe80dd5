package workspace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"docdesk/pkg/apiclient"
	"docdesk/pkg/domain"
	"docdesk/pkg/preflight"
	"docdesk/pkg/session"
)

// Documents is the list of the current user's documents. The list is only
// ever replaced wholesale by Refresh; single operations patch one entry.
type Documents struct {
	client    *apiclient.Client
	session   *session.Session
	chats     *Chats
	preflight *preflight.Checker
	pageSize  int
	logger    *slog.Logger

	mu   sync.RWMutex
	docs []domain.Document
}

// List returns a copy of the documents in server order.
func (d *Documents) List() []domain.Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]domain.Document(nil), d.docs...)
}

func (d *Documents) Get(id string) (domain.Document, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i := d.indexLocked(id); i >= 0 {
		return d.docs[i], true
	}
	return domain.Document{}, false
}

func (d *Documents) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// Reset forgets every document.
func (d *Documents) Reset() {
	d.mu.Lock()
	d.docs = nil
	d.mu.Unlock()
}

func (d *Documents) indexLocked(id string) int {
	for i := range d.docs {
		if d.docs[i].ID == id {
			return i
		}
	}
	return -1
}

// apply runs fn under the write lock unless the session changed since epoch.
func (d *Documents) apply(epoch uint64, fn func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session.Epoch() != epoch {
		return ErrStaleSession
	}
	fn()
	return nil
}

// Refresh fetches every page of the document list and replaces the store.
// A malformed list empties the store; a transport failure leaves it as is.
func (d *Documents) Refresh(ctx context.Context) error {
	user, err := d.session.RequireUser()
	if err != nil {
		return err
	}
	epoch := d.session.Epoch()

	var all []domain.Document
	for page := 1; ; page++ {
		res, err := d.client.Documents.List(ctx, apiclient.ListParams{Page: page, Limit: d.pageSize})
		if err != nil {
			if apiclient.IsCode(err, apiclient.CodeInvalidResponse) || apiclient.IsCode(err, apiclient.CodeParse) {
				d.logger.Warn("document list malformed, clearing store", "err", err)
				_ = d.apply(epoch, func() { d.docs = nil })
			}
			return err
		}
		all = append(all, res.Documents...)
		if res.Pagination == nil || page >= res.Pagination.TotalPages || len(res.Documents) == 0 {
			break
		}
	}
	docs := d.owned(user.ID, all)
	return d.apply(epoch, func() { d.docs = docs })
}

// owned drops documents of other users and duplicate ids.
func (d *Documents) owned(userID string, docs []domain.Document) []domain.Document {
	seen := make(map[string]bool, len(docs))
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.UserID != "" && doc.UserID != userID {
			d.logger.Warn("dropping document of another user", "document_id", doc.ID)
			continue
		}
		if doc.ID == "" || seen[doc.ID] {
			continue
		}
		seen[doc.ID] = true
		out = append(out, doc)
	}
	return out
}

// UploadInput is a file to upload.
type UploadInput struct {
	Filename string
	Content  []byte
	Tags     []string
	Metadata map[string]any
}

// Upload validates and submits a file, then appends the new document. A
// failed upload leaves the store unchanged.
func (d *Documents) Upload(ctx context.Context, in UploadInput) (domain.Document, error) {
	user, err := d.session.RequireUser()
	if err != nil {
		return domain.Document{}, err
	}
	if d.preflight != nil {
		if _, err := d.preflight.Check(in.Filename, in.Content); err != nil {
			return domain.Document{}, fmt.Errorf("upload %s: %w", in.Filename, err)
		}
	}
	epoch := d.session.Epoch()
	doc, err := d.client.Documents.Upload(ctx, apiclient.UploadInput{
		Filename: in.Filename,
		Content:  bytes.NewReader(in.Content),
		Tags:     in.Tags,
		Metadata: in.Metadata,
	})
	if err != nil {
		return domain.Document{}, err
	}
	if doc.UserID != "" && doc.UserID != user.ID {
		return domain.Document{}, &apiclient.Error{
			Code:    apiclient.CodeInvalidResponse,
			Message: "uploaded document belongs to another user",
		}
	}
	err = d.apply(epoch, func() {
		if i := d.indexLocked(doc.ID); i >= 0 {
			d.docs[i] = doc
			return
		}
		d.docs = append(d.docs, doc)
	})
	if err != nil {
		return domain.Document{}, err
	}
	d.logger.Info("document uploaded", "document_id", doc.ID, "name", doc.Name)
	return doc, nil
}

// Delete removes a document on the server first, then locally together
// with its chat thread. A failed call changes nothing.
func (d *Documents) Delete(ctx context.Context, id string) error {
	if _, err := d.session.RequireUser(); err != nil {
		return err
	}
	epoch := d.session.Epoch()
	if _, err := d.client.Documents.Delete(ctx, id); err != nil {
		return err
	}
	err := d.apply(epoch, func() {
		if i := d.indexLocked(id); i >= 0 {
			d.docs = append(d.docs[:i], d.docs[i+1:]...)
		}
	})
	if err != nil {
		return err
	}
	d.chats.Forget(id)
	d.logger.Info("document deleted", "document_id", id)
	return nil
}

// Summarize generates a summary and stores its text on the document. Only
// the summary field of the stored document changes.
func (d *Documents) Summarize(ctx context.Context, id string, opts apiclient.SummaryOptions) (domain.Summary, error) {
	if _, err := d.session.RequireUser(); err != nil {
		return domain.Summary{}, err
	}
	epoch := d.session.Epoch()
	sum, err := d.client.Summaries.Generate(ctx, id, opts)
	if err != nil {
		return domain.Summary{}, err
	}
	err = d.apply(epoch, func() {
		if i := d.indexLocked(id); i >= 0 {
			d.docs[i].Summary = sum.Content
		}
	})
	if err != nil {
		return domain.Summary{}, err
	}
	return sum, nil
}

// Update edits name, tags or metadata and replaces the stored document.
func (d *Documents) Update(ctx context.Context, id string, patch apiclient.DocumentPatch) (domain.Document, error) {
	if _, err := d.session.RequireUser(); err != nil {
		return domain.Document{}, err
	}
	epoch := d.session.Epoch()
	doc, err := d.client.Documents.Update(ctx, id, patch)
	if err != nil {
		return domain.Document{}, err
	}
	err = d.apply(epoch, func() {
		if i := d.indexLocked(id); i >= 0 {
			d.docs[i] = doc
		}
	})
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Rename is Update with only a new name.
func (d *Documents) Rename(ctx context.Context, id, name string) (domain.Document, error) {
	return d.Update(ctx, id, apiclient.DocumentPatch{Name: &name})
}

// Download streams the file of a document into w and returns the byte
// count and the server-suggested filename. Nothing is cached.
func (d *Documents) Download(ctx context.Context, id string, w io.Writer) (int64, string, error) {
	if _, err := d.session.RequireUser(); err != nil {
		return 0, "", err
	}
	link, err := d.client.Documents.DownloadLink(ctx, id)
	if err != nil {
		return 0, "", err
	}
	n, err := d.client.Documents.Fetch(ctx, link, w)
	if err != nil {
		return n, link.Filename, err
	}
	return n, link.Filename, nil
}
