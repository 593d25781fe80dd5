package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNoRefreshToken indicates a refresh was needed but none is stored.
var ErrNoRefreshToken = errors.New("no refresh token stored")

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Tokens       *struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"tokens"`
}

// refresh exchanges the stored refresh token for a new access token.
// Concurrent callers share one in-flight exchange; a caller whose failing
// token was already replaced by another refresh returns immediately.
func (c *Client) refresh(ctx context.Context, staleAccess string) error {
	return c.sharedRefresh(ctx, func(ctx context.Context) error {
		current, ok, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}
		if ok && current != staleAccess {
			return nil
		}
		return c.exchangeRefreshToken(ctx)
	})
}

// Refresh forces a token refresh outside the 401 path.
func (c *Client) Refresh(ctx context.Context) error {
	return c.sharedRefresh(ctx, c.exchangeRefreshToken)
}

// sharedRefresh runs fn once for all concurrent callers. The exchange is
// detached from the caller that started it and bounded by the client
// timeout; a caller whose ctx ends stops waiting without failing the others.
func (c *Client) sharedRefresh(ctx context.Context, fn func(context.Context) error) error {
	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout())
		defer cancel()
		return nil, fn(rctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) refreshTimeout() time.Duration {
	if c.httpClient.Timeout > 0 {
		return c.httpClient.Timeout
	}
	return defaultTimeout
}

// refreshRejected reports whether err means the stored refresh token is no
// longer usable, as opposed to the exchange not completing.
func refreshRejected(err error) bool {
	switch {
	case errors.Is(err, ErrNoRefreshToken):
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case IsCode(err, CodeInvalidResponse):
		return true
	}
	status := StatusOf(err)
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}

func (c *Client) exchangeRefreshToken(ctx context.Context) (err error) {
	defer func() {
		if err != nil && refreshRejected(err) {
			if cerr := c.tokens.Clear(ctx); cerr != nil {
				c.logger.Warn("clear tokens after rejected refresh", "err", cerr)
			}
		}
	}()

	refreshToken, ok, err := c.tokens.RefreshToken(ctx)
	if err != nil {
		return fmt.Errorf("read refresh token: %w", err)
	}
	if !ok {
		return ErrNoRefreshToken
	}

	req := Request{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Body:   map[string]string{"refreshToken": refreshToken},
	}
	body, err := encodeBody(req)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, req, body, "")
	if err != nil {
		return networkError(err)
	}
	var raw json.RawMessage
	if err := c.handleResponse(resp, &raw); err != nil {
		return err
	}
	var out refreshResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return invalidResponse("refresh response: %v", err)
	}
	access, rotated := out.AccessToken, out.RefreshToken
	if access == "" && out.Tokens != nil {
		access, rotated = out.Tokens.AccessToken, out.Tokens.RefreshToken
	}
	if access == "" {
		return invalidResponse("refresh response carries no access token")
	}
	if rotated == "" {
		rotated = refreshToken
	}
	if err := c.tokens.SetTokens(ctx, access, rotated); err != nil {
		return fmt.Errorf("store refreshed tokens: %w", err)
	}
	c.logger.Debug("access token refreshed")
	return nil
}
