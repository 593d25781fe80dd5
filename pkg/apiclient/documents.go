package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"docdesk/pkg/domain"
)

// DocumentsAPI groups the /documents endpoints.
type DocumentsAPI struct {
	c *Client
}

// ListParams filters a document listing.
type ListParams struct {
	Page   int
	Limit  int
	Search string
}

// DocumentPage is one page of a document listing.
type DocumentPage struct {
	Documents  []domain.Document
	Pagination *domain.Pagination
}

// List returns one page of the current user's documents. A payload without a
// document list is reported as INVALID_RESPONSE.
func (d *DocumentsAPI) List(ctx context.Context, p ListParams) (DocumentPage, error) {
	q := newQuery().num("page", p.Page).num("limit", p.Limit).str("search", p.Search)
	var raw json.RawMessage
	if err := d.c.Get(ctx, "/documents/list", q.values(), &raw); err != nil {
		return DocumentPage{}, err
	}
	var docs []domain.Document
	found, err := decodeList(raw, &docs, "documents", "items")
	if err != nil {
		return DocumentPage{}, invalidResponse("document list: %v", err)
	}
	if !found {
		return DocumentPage{}, invalidResponse("document list response carries no documents")
	}
	return DocumentPage{Documents: docs, Pagination: decodePagination(raw)}, nil
}

// Get returns a single document.
func (d *DocumentsAPI) Get(ctx context.Context, id string) (domain.Document, error) {
	var raw json.RawMessage
	if err := d.c.Get(ctx, "/documents/"+url.PathEscape(id), nil, &raw); err != nil {
		return domain.Document{}, err
	}
	return decodeDocument(raw)
}

// UploadInput is a file to upload with optional tags and metadata.
type UploadInput struct {
	Filename string
	Content  io.Reader
	Tags     []string
	Metadata map[string]any
}

// Upload submits a file as multipart form data. The server may answer with
// {document} or with the bare document.
func (d *DocumentsAPI) Upload(ctx context.Context, in UploadInput) (domain.Document, error) {
	if in.Content == nil {
		return domain.Document{}, fmt.Errorf("upload %q: no content", in.Filename)
	}
	fields := map[string]string{}
	if len(in.Tags) > 0 {
		data, err := json.Marshal(in.Tags)
		if err != nil {
			return domain.Document{}, fmt.Errorf("encode tags: %w", err)
		}
		fields["tags"] = string(data)
	}
	if len(in.Metadata) > 0 {
		data, err := json.Marshal(in.Metadata)
		if err != nil {
			return domain.Document{}, fmt.Errorf("encode metadata: %w", err)
		}
		fields["metadata"] = string(data)
	}
	req := Request{
		Method: http.MethodPost,
		Path:   "/documents/upload",
		Multipart: &Multipart{
			Fields: fields,
			Files:  []FilePart{{Field: "file", Filename: in.Filename, Content: in.Content}},
		},
	}
	var raw json.RawMessage
	if err := d.c.Do(ctx, req, &raw); err != nil {
		return domain.Document{}, err
	}
	return decodeDocument(raw)
}

// DocumentPatch holds the mutable document fields; nil members are untouched.
type DocumentPatch struct {
	Name     *string        `json:"name,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Update changes name, tags or metadata of a document.
func (d *DocumentsAPI) Update(ctx context.Context, id string, patch DocumentPatch) (domain.Document, error) {
	var raw json.RawMessage
	if err := d.c.Put(ctx, "/documents/"+url.PathEscape(id), patch, &raw); err != nil {
		return domain.Document{}, err
	}
	return decodeDocument(raw)
}

// DeleteResult acknowledges a document deletion.
type DeleteResult struct {
	Message    string `json:"message"`
	DocumentID string `json:"documentId"`
}

// Delete removes a document server-side.
func (d *DocumentsAPI) Delete(ctx context.Context, id string) (DeleteResult, error) {
	var out DeleteResult
	if err := d.c.Delete(ctx, "/documents/"+url.PathEscape(id), nil, &out); err != nil {
		return DeleteResult{}, err
	}
	return out, nil
}

// DownloadLink is a presigned URL for a document file.
type DownloadLink struct {
	URL      string
	Filename string
}

// DownloadLink asks the server for a presigned download URL.
func (d *DocumentsAPI) DownloadLink(ctx context.Context, id string) (DownloadLink, error) {
	var out struct {
		DownloadURL string `json:"downloadUrl"`
		URL         string `json:"url"`
		Filename    string `json:"filename"`
	}
	if err := d.c.Get(ctx, "/documents/"+url.PathEscape(id)+"/download", nil, &out); err != nil {
		return DownloadLink{}, err
	}
	link := out.DownloadURL
	if link == "" {
		link = out.URL
	}
	if link == "" {
		return DownloadLink{}, invalidResponse("download response carries no URL")
	}
	return DownloadLink{URL: link, Filename: out.Filename}, nil
}

// Fetch streams the file behind link into w. Presigned URLs carry their own
// credentials, so no bearer token is sent. Relative links resolve against the
// API base URL.
func (d *DocumentsAPI) Fetch(ctx context.Context, link DownloadLink, w io.Writer) (int64, error) {
	target, err := d.c.resolve(link.URL)
	if err != nil {
		return 0, invalidResponse("download URL %q: %v", link.URL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}
	resp, err := d.c.httpClient.Do(req)
	if err != nil {
		return 0, networkError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		pageErr := errorFromPage(resp.StatusCode, resp.Header.Get("Content-Type"), data)
		return 0, &Error{Code: CodeDownloadFailed, Message: pageErr.Message, Status: resp.StatusCode}
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, networkError(err)
	}
	return n, nil
}

func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

func decodeDocument(raw json.RawMessage) (domain.Document, error) {
	var doc domain.Document
	found, err := decodeMember(raw, "document", &doc)
	if err != nil {
		return domain.Document{}, invalidResponse("document: %v", err)
	}
	if !found || doc.ID == "" {
		return domain.Document{}, invalidResponse("response carries neither {document} nor a bare document")
	}
	return doc, nil
}
