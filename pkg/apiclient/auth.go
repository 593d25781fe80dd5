package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"docdesk/pkg/domain"
)

// AuthAPI groups the /auth endpoints.
type AuthAPI struct {
	c *Client
}

// AuthResult is the login/register payload.
type AuthResult struct {
	User   domain.User   `json:"user"`
	Tokens domain.Tokens `json:"tokens"`
}

// Login posts credentials and stores the returned token pair.
func (a *AuthAPI) Login(ctx context.Context, email, password string) (AuthResult, error) {
	payload := map[string]string{"email": email, "password": password}
	return a.authenticate(ctx, "/auth/login", payload)
}

// Register creates an account and stores the returned token pair.
func (a *AuthAPI) Register(ctx context.Context, email, password, name, confirmPassword string) (AuthResult, error) {
	payload := map[string]string{
		"email":           email,
		"password":        password,
		"name":            name,
		"confirmPassword": confirmPassword,
	}
	return a.authenticate(ctx, "/auth/register", payload)
}

func (a *AuthAPI) authenticate(ctx context.Context, path string, payload any) (AuthResult, error) {
	var resp AuthResult
	// Credentials stand on their own; a stored pair of another account must
	// not be sent or refreshed here.
	req := Request{Method: http.MethodPost, Path: path, Body: payload, NoAuth: true}
	if err := a.c.Do(ctx, req, &resp); err != nil {
		return AuthResult{}, err
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		return AuthResult{}, invalidResponse("invalid authentication response from server")
	}
	if err := a.c.tokens.SetTokens(ctx, resp.Tokens.AccessToken, resp.Tokens.RefreshToken); err != nil {
		return AuthResult{}, fmt.Errorf("store tokens: %w", err)
	}
	return resp, nil
}

// Logout invalidates the refresh token server-side. Local tokens are cleared
// whatever the outcome of the call.
func (a *AuthAPI) Logout(ctx context.Context) error {
	refreshToken, ok, err := a.c.tokens.RefreshToken(ctx)
	var callErr error
	switch {
	case err != nil:
		callErr = fmt.Errorf("read refresh token: %w", err)
	case ok:
		callErr = a.c.Post(ctx, "/auth/logout", map[string]string{"refreshToken": refreshToken}, nil)
	}
	if err := a.c.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return callErr
}

// Me returns the user owning the current access token.
func (a *AuthAPI) Me(ctx context.Context) (domain.User, error) {
	var raw json.RawMessage
	if err := a.c.Get(ctx, "/auth/me", nil, &raw); err != nil {
		return domain.User{}, err
	}
	var user domain.User
	found, err := decodeMember(raw, "user", &user)
	if err != nil {
		return domain.User{}, invalidResponse("current user: %v", err)
	}
	if !found || user.ID == "" {
		return domain.User{}, invalidResponse("current user response carries no user")
	}
	return user, nil
}

// HasSession reports whether an access token is stored.
func (a *AuthAPI) HasSession(ctx context.Context) (bool, error) {
	_, ok, err := a.c.tokens.AccessToken(ctx)
	return ok, err
}
