// Package session tracks who is signed in. It owns the current user, drives
// login, registration, logout and the startup auth check, and tells its
// listeners about every identity change before any per-user data is fetched.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"docdesk/pkg/apiclient"
	"docdesk/pkg/domain"
	"docdesk/pkg/tokenstore"
)

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// State is the lifecycle stage of a session.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Listener observes identity changes. prev and cur are nil for the anonymous
// side of a transition. Listeners run synchronously on the goroutine that
// caused the change.
type Listener func(prev, cur *domain.User)

// TokenWatcher reports token changes made outside this process.
type TokenWatcher interface {
	Watch(ctx context.Context, fn func(tokenstore.Change)) error
}

// Session is the authenticated identity held client-side.
type Session struct {
	client *apiclient.Client
	logger *slog.Logger

	mu    sync.RWMutex
	state State
	user  *domain.User
	epoch uint64

	listenersMu sync.Mutex
	listeners   []Listener
}

// New constructs an anonymous session over client.
func New(client *apiclient.Client, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{client: client, logger: logger.With("component", "session")}
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// RequireUser returns the signed-in user or ErrNotAuthenticated.
func (s *Session) RequireUser() (domain.User, error) {
	u := s.User()
	if u == nil {
		return domain.User{}, ErrNotAuthenticated
	}
	return *u, nil
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.IsAdmin()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Epoch increases on every identity change. A response fetched under an
// older epoch belongs to a previous user and must not be applied.
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// OnChange registers fn for identity changes.
func (s *Session) OnChange(fn Listener) {
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenersMu.Unlock()
}

// Login authenticates with email and password. Rejected credentials report
// false with a nil error; only transport and response-shape failures return
// an error.
func (s *Session) Login(ctx context.Context, email, password string) (bool, error) {
	prev := s.beginAuth()
	res, err := s.client.Auth.Login(ctx, email, password)
	if err != nil {
		s.abortAuth(prev)
		if apiclient.IsTransport(err) {
			s.logger.Warn("login failed", "err", err)
			return false, err
		}
		if status := apiclient.StatusOf(err); status >= 400 && status < 500 {
			s.logger.Info("login rejected", "status", status, "err", err)
			return false, nil
		}
		return false, err
	}
	if err := s.completeAuth(ctx, res); err != nil {
		return false, err
	}
	return true, nil
}

// Register creates an account and signs it in. Server-side validation
// errors are returned as they are.
func (s *Session) Register(ctx context.Context, email, password, name, confirmPassword string) (bool, error) {
	prev := s.beginAuth()
	res, err := s.client.Auth.Register(ctx, email, password, name, confirmPassword)
	if err != nil {
		s.abortAuth(prev)
		s.logger.Info("registration failed", "err", err)
		return false, err
	}
	if err := s.completeAuth(ctx, res); err != nil {
		return false, err
	}
	return true, nil
}

// Logout ends the session. The server call is best effort; local tokens and
// the user are always cleared.
func (s *Session) Logout(ctx context.Context) {
	if err := s.client.Auth.Logout(ctx); err != nil {
		s.logger.Warn("logout request failed", "err", err)
	}
	s.setUser(nil)
}

// Bootstrap restores a persisted session. Any failure leaves the session
// anonymous with tokens cleared; it never reports an error.
func (s *Session) Bootstrap(ctx context.Context) {
	ok, err := s.client.Auth.HasSession(ctx)
	if err != nil {
		s.logger.Warn("read stored session", "err", err)
	}
	if !ok {
		s.setUser(nil)
		return
	}
	prev := s.beginAuth()
	user, err := s.client.Auth.Me(ctx)
	if err != nil {
		s.logger.Info("stored session rejected", "err", err)
		s.clearTokens(ctx)
		s.abortAuth(prev)
		s.setUser(nil)
		return
	}
	s.setUser(&user)
}

// WatchTokens follows token changes made by other processes sharing the same
// token store: a cleared store signs this session out, new tokens on an
// anonymous session trigger Bootstrap. Watching stops when ctx is done.
func (s *Session) WatchTokens(ctx context.Context, w TokenWatcher) error {
	return w.Watch(ctx, func(ch tokenstore.Change) {
		switch state := s.State(); {
		case !ch.HasTokens && state == Authenticated:
			s.logger.Info("tokens cleared externally")
			s.setUser(nil)
		case ch.HasTokens && state == Anonymous:
			s.logger.Info("tokens stored externally")
			s.Bootstrap(ctx)
		}
	})
}

func (s *Session) beginAuth() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = Authenticating
	return prev
}

func (s *Session) abortAuth(prev State) {
	s.mu.Lock()
	if s.state == Authenticating {
		s.state = prev
	}
	s.mu.Unlock()
}

func (s *Session) completeAuth(ctx context.Context, res apiclient.AuthResult) error {
	if res.User.ID == "" {
		s.clearTokens(ctx)
		s.setUser(nil)
		return &apiclient.Error{Code: apiclient.CodeInvalidResponse, Message: "authentication response carries no user"}
	}
	u := res.User
	s.setUser(&u)
	return nil
}

func (s *Session) clearTokens(ctx context.Context) {
	if err := s.client.Tokens().Clear(ctx); err != nil {
		s.logger.Warn("clear tokens", "err", err)
	}
}

// setUser installs the new identity and notifies listeners when the user id
// changed.
func (s *Session) setUser(u *domain.User) {
	s.mu.Lock()
	prev := s.user
	s.user = u
	if u == nil {
		s.state = Anonymous
	} else {
		s.state = Authenticated
	}
	changed := userID(prev) != userID(u)
	if changed {
		s.epoch++
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	s.logger.Info("session changed", "from", userID(prev), "to", userID(u))
	s.listenersMu.Lock()
	listeners := append([]Listener(nil), s.listeners...)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(copyUser(prev), copyUser(u))
	}
}

func userID(u *domain.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func copyUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
