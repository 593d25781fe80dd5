package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"docdesk/internal/util"
	"docdesk/pkg/tokenstore"
)

const (
	defaultTimeout = 30 * time.Second
	maxAttempts    = 2
	maxErrorBody   = 1 << 20
)

// Config wires the client's dependencies.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8000/api.
	BaseURL string
	// Tokens persists the session token pair; defaults to an in-memory store.
	Tokens     tokenstore.Store
	HTTPClient *http.Client
	// Timeout applies when HTTPClient is nil.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client is the single point of outbound HTTP traffic to the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     tokenstore.Store
	logger     *slog.Logger
	refreshes  singleflight.Group

	Auth      *AuthAPI
	Documents *DocumentsAPI
	Chat      *ChatAPI
	Summaries *SummariesAPI
	Compare   *CompareAPI
	Admin     *AdminAPI
}

// New constructs an API client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("apiclient: invalid base URL: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = tokenstore.NewMemory()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    base,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
	c.Auth = &AuthAPI{c: c}
	c.Documents = &DocumentsAPI{c: c}
	c.Chat = &ChatAPI{c: c}
	c.Summaries = &SummariesAPI{c: c}
	c.Compare = &CompareAPI{c: c}
	c.Admin = &AdminAPI{c: c}
	return c, nil
}

// BaseURL returns the API root without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Tokens exposes the token store the client reads and writes.
func (c *Client) Tokens() tokenstore.Store {
	return c.tokens
}

// Request describes one logical API call. Body is JSON encoded unless
// Multipart is set.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Multipart *Multipart
	// NoAuth sends the request without the bearer token and never refreshes.
	NoAuth bool
}

// Multipart is a form upload body.
type Multipart struct {
	Fields map[string]string
	Files  []FilePart
}

// FilePart is one file of a multipart upload.
type FilePart struct {
	Field    string
	Filename string
	Content  io.Reader
}

// RawResponse is handed to callers for non-JSON success responses such as
// file streams. The caller owns Body.
type RawResponse struct {
	Status      int
	ContentType string
	Header      http.Header
	Body        io.ReadCloser
}

type encodedBody struct {
	data        []byte
	contentType string
}

// Get issues a GET and decodes the unwrapped payload into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Query: query}, out)
}

// Do executes req with bearer auth. A 401 on an authenticated attempt triggers
// one token refresh and at most one retry. If the server rejects the refresh
// the tokens are cleared and the original 401 error is returned; if the
// refresh never completed the tokens are kept and its error is returned.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := encodeBody(req)
	if err != nil {
		return err
	}
	ctx, _ = util.WithRequestID(ctx, c.logger)
	logger := util.LoggerFromContext(ctx, c.logger)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var (
			token    string
			hasToken bool
		)
		if !req.NoAuth {
			token, hasToken, err = c.tokens.AccessToken(ctx)
			if err != nil {
				return fmt.Errorf("read access token: %w", err)
			}
		}
		start := time.Now()
		resp, err := c.send(ctx, req, body, token)
		if err != nil {
			logger.Warn("api request failed", "method", req.Method, "path", req.Path, "attempt", attempt, "err", err)
			return networkError(err)
		}
		logger.Debug("api request",
			"method", req.Method,
			"path", req.Path,
			"status", resp.StatusCode,
			"attempt", attempt,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if resp.StatusCode == http.StatusUnauthorized && hasToken && attempt < maxAttempts {
			original := c.handleResponse(resp, nil)
			if rerr := c.refresh(ctx, token); rerr != nil {
				logger.Info("token refresh failed", "path", req.Path, "err", rerr)
				if refreshRejected(rerr) {
					return original
				}
				// The session may still be valid; report why the retry never happened.
				var apiErr *Error
				if errors.As(rerr, &apiErr) {
					return rerr
				}
				return networkError(rerr)
			}
			continue
		}
		return c.handleResponse(resp, out)
	}
	return nil
}

func encodeBody(req Request) (*encodedBody, error) {
	switch {
	case req.Multipart != nil:
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)
		for k, v := range req.Multipart.Fields {
			if err := writer.WriteField(k, v); err != nil {
				return nil, fmt.Errorf("encode form field %s: %w", k, err)
			}
		}
		for _, f := range req.Multipart.Files {
			field := f.Field
			if field == "" {
				field = "file"
			}
			part, err := writer.CreateFormFile(field, f.Filename)
			if err != nil {
				return nil, fmt.Errorf("encode form file: %w", err)
			}
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, fmt.Errorf("read upload content: %w", err)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("finish form: %w", err)
		}
		return &encodedBody{data: buf.Bytes(), contentType: writer.FormDataContentType()}, nil
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return &encodedBody{data: data, contentType: "application/json"}, nil
	default:
		return nil, nil
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) send(ctx context.Context, req Request, body *encodedBody, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body.data)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.endpoint(req.Path, req.Query), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", body.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	addAuthHeader(httpReq, token)
	if id := util.RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set(util.RequestIDHeader, id)
	}
	return c.httpClient.Do(httpReq)
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// handleResponse unwraps resp into out and always settles the body: it is
// closed unless it was handed to the caller through a *RawResponse.
func (c *Client) handleResponse(resp *http.Response, out any) error {
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !isJSON(contentType) {
		if resp.StatusCode >= 400 {
			defer resp.Body.Close()
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return errorFromPage(resp.StatusCode, contentType, data)
		}
		if raw, ok := out.(*RawResponse); ok {
			*raw = RawResponse{
				Status:      resp.StatusCode,
				ContentType: contentType,
				Header:      resp.Header,
				Body:        resp.Body,
			}
			return nil
		}
		resp.Body.Close()
		if out == nil {
			return nil
		}
		return &Error{
			Code:    CodeInvalidResponse,
			Message: fmt.Sprintf("unexpected content type %q", contentType),
			Status:  resp.StatusCode,
		}
	}

	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}
	if resp.StatusCode >= 400 {
		if len(bytes.TrimSpace(data)) == 0 {
			return &Error{Code: CodeUnknown, Message: resp.Status, Status: resp.StatusCode}
		}
		return errorFromJSON(resp.StatusCode, data)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		return &Error{Code: CodeParse, Message: "failed to parse server response", Status: resp.StatusCode}
	}
	payload, err := unwrapEnvelope(data)
	if err != nil {
		return &Error{Code: CodeParse, Message: "failed to parse server response", Status: resp.StatusCode, Err: err}
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = payload
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &Error{
			Code:    CodeInvalidResponse,
			Message: fmt.Sprintf("unexpected response shape: %v", err),
			Status:  resp.StatusCode,
			Err:     err,
		}
	}
	return nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// unwrapEnvelope returns the inner payload of a {success, data} envelope, or
// the whole document when it is not enveloped.
func unwrapEnvelope(data []byte) (json.RawMessage, error) {
	if !json.Valid(data) {
		return nil, errors.New("invalid JSON body")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		// Arrays and scalars are never enveloped.
		return json.RawMessage(data), nil
	}
	if inner, ok := obj["data"]; ok {
		return inner, nil
	}
	return json.RawMessage(data), nil
}
