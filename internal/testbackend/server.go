// Package testbackend is an in-memory implementation of the document backend
// REST API. Tests run it behind httptest to drive the client end to end; it
// can expire tokens, fail selected routes and hold responses open.
package testbackend

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"docdesk/internal/util"
	"docdesk/pkg/domain"
)

const (
	userIDContextKey  = "auth_user_id"
	defaultAccessTTL  = 15 * time.Minute
	defaultJWTIssuer  = "docdesk-testbackend"
	maxUploadBodySize = 32 << 20
)

// Options configures a Server.
type Options struct {
	// Secret signs access tokens; a random one is used when empty.
	Secret    string
	AccessTTL time.Duration
	// Envelope wraps every success body as {success, data}.
	Envelope bool
	// EchoUserMessageID makes chat replies carry the id of the question.
	EchoUserMessageID bool
	Logger            *slog.Logger
}

type account struct {
	user         domain.User
	passwordHash []byte
}

type failure struct {
	status  int
	code    string
	message string
	html    bool
	times   int
}

// Server holds all backend state behind one mutex.
type Server struct {
	router    *gin.Engine
	secret    []byte
	accessTTL time.Duration
	logger    *slog.Logger

	mu            sync.Mutex
	envelope      bool
	echoUserMsgID bool
	generation    int
	accounts      map[string]*account
	byEmail       map[string]string
	refreshTokens map[string]string
	documents     map[string]*domain.Document
	docOrder      []string
	files         map[string][]byte
	history       map[string][]domain.ChatMessage
	conversations map[string]string
	summaries     map[string]domain.Summary
	comparisons   map[string]domain.Comparison
	activity      []domain.Activity
	failures      map[string]*failure
	holds         map[string]chan struct{}
	calls         map[string]int
}

// New builds a Server.
func New(opts Options) *Server {
	secret := opts.Secret
	if secret == "" {
		secret = util.NewID()
	}
	ttl := opts.AccessTTL
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		secret:        []byte(secret),
		accessTTL:     ttl,
		logger:        logger,
		envelope:      opts.Envelope,
		echoUserMsgID: opts.EchoUserMessageID,
		accounts:      map[string]*account{},
		byEmail:       map[string]string{},
		refreshTokens: map[string]string{},
		documents:     map[string]*domain.Document{},
		files:         map[string][]byte{},
		history:       map[string][]domain.ChatMessage{},
		conversations: map[string]string{},
		summaries:     map[string]domain.Summary{},
		comparisons:   map[string]domain.Comparison{},
		failures:      map[string]*failure{},
		holds:         map[string]chan struct{}{},
		calls:         map[string]int{},
	}
	s.router = s.routes()
	return s
}

// Serve starts s on an httptest server closed at test cleanup and returns
// the API base URL.
func Serve(tb testing.TB, opts Options) (*Server, string) {
	tb.Helper()
	s := New(opts)
	hs := httptest.NewServer(s.Handler())
	tb.Cleanup(hs.Close)
	return s, hs.URL + "/api"
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.instrument())

	r.GET("/health", s.health)
	r.GET("/files/:id", s.serveFile)

	api := r.Group("/api")
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)
	api.POST("/auth/refresh", s.refresh)
	api.POST("/auth/logout", s.logout)

	authed := api.Group("")
	authed.Use(s.requireAuth())
	authed.GET("/auth/me", s.me)

	authed.GET("/documents/list", s.listDocuments)
	authed.POST("/documents/upload", s.uploadDocument)
	authed.GET("/documents/:id", s.getDocument)
	authed.PUT("/documents/:id", s.updateDocument)
	authed.DELETE("/documents/:id", s.deleteDocument)
	authed.GET("/documents/:id/download", s.downloadDocument)

	authed.POST("/summarize", s.summarize)
	authed.GET("/summarize/summary/:id", s.getSummary)
	authed.GET("/summarize/:id", s.listSummaries)
	authed.DELETE("/summarize/:id", s.deleteSummary)

	authed.POST("/chat/query", s.chatQuery)
	authed.GET("/chat/history/:documentId", s.chatHistory)
	authed.DELETE("/chat/history/:documentId", s.clearChatHistory)
	authed.GET("/chat/conversations", s.conversationList)

	authed.POST("/compare", s.compare)
	authed.GET("/compare/history", s.compareHistory)
	authed.GET("/compare/:id", s.getComparison)
	authed.DELETE("/compare/:id", s.deleteComparison)

	admin := authed.Group("/admin")
	admin.Use(s.requireAdmin())
	admin.GET("/users", s.adminUsers)
	admin.GET("/users/:id", s.adminUser)
	admin.PUT("/users/:id", s.adminUpdateUser)
	admin.DELETE("/users/:id", s.adminDeleteUser)
	admin.GET("/analytics", s.adminAnalytics)
	admin.GET("/documents", s.adminDocuments)
	admin.GET("/activity", s.adminActivity)
	admin.POST("/broadcast", s.adminBroadcast)
	return r
}

func routeKey(method, route string) string {
	return method + " " + route
}

// instrument counts calls and applies injected failures and holds. Routes
// are identified by method plus gin route pattern, e.g.
// "DELETE /api/documents/:id".
func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := routeKey(c.Request.Method, c.FullPath())
		s.mu.Lock()
		s.calls[key]++
		hold := s.holds[key]
		f := s.failures[key]
		if f != nil {
			f.times--
			if f.times == 0 {
				delete(s.failures, key)
			}
		}
		s.mu.Unlock()

		s.logger.Debug("request", "route", key, "request_id", c.GetHeader(util.RequestIDHeader))
		if hold != nil {
			select {
			case <-hold:
			case <-c.Request.Context().Done():
				c.Abort()
				return
			}
		}
		if f != nil {
			if f.html {
				c.Data(f.status, "text/html; charset=utf-8",
					[]byte(fmt.Sprintf("<html><head><title>%s</title></head><body>%s</body></html>", f.message, f.message)))
				c.Abort()
				return
			}
			s.fail(c, f.status, f.code, f.message)
			return
		}
		c.Next()
	}
}

// Fail makes the next times calls of route answer with an error body. A
// negative times fails until ClearFailures.
func (s *Server) Fail(method, route string, times, status int, code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[routeKey(method, route)] = &failure{status: status, code: code, message: message, times: times}
}

// FailHTML is Fail with an HTML error page body, as a proxy would send.
func (s *Server) FailHTML(method, route string, times, status int, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[routeKey(method, route)] = &failure{status: status, message: title, html: true, times: times}
}

// ClearFailures removes every injected failure.
func (s *Server) ClearFailures() {
	s.mu.Lock()
	s.failures = map[string]*failure{}
	s.mu.Unlock()
}

// Hold blocks requests to route until the returned release func is called.
func (s *Server) Hold(method, route string) (release func()) {
	ch := make(chan struct{})
	key := routeKey(method, route)
	s.mu.Lock()
	s.holds[key] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[key] == ch {
				delete(s.holds, key)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls reports how many requests reached route.
func (s *Server) Calls(method, route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[routeKey(method, route)]
}

// SetEnvelope toggles {success, data} wrapping.
func (s *Server) SetEnvelope(on bool) {
	s.mu.Lock()
	s.envelope = on
	s.mu.Unlock()
}

// ExpireAccessTokens invalidates every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	s.refreshTokens = map[string]string{}
	s.mu.Unlock()
}

func (s *Server) respond(c *gin.Context, status int, payload any) {
	s.mu.Lock()
	envelope := s.envelope
	s.mu.Unlock()
	if envelope {
		c.JSON(status, gin.H{"success": true, "data": payload})
		return
	}
	c.JSON(status, payload)
}

func (s *Server) fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC()})
}

type accessClaims struct {
	jwt.RegisteredClaims
	Generation int `json:"gen"`
}

func (s *Server) issueTokens(userID string) (domain.Tokens, error) {
	now := time.Now().UTC()
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    defaultJWTIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        util.NewID(),
		},
		Generation: gen,
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh := util.NewID()
	s.mu.Lock()
	s.refreshTokens[refresh] = userID
	s.mu.Unlock()
	return domain.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresIn: int(s.accessTTL.Seconds())}, nil
}

func (s *Server) verifyAccessToken(raw string) (string, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithIssuer(defaultJWTIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation != s.generation {
		return "", errors.New("token expired")
	}
	if _, ok := s.accounts[claims.Subject]; !ok {
		return "", errors.New("unknown user")
	}
	return claims.Subject, nil
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			s.fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "authorization required")
			return
		}
		userID, err := s.verifyAccessToken(strings.TrimSpace(header[7:]))
		if err != nil {
			s.fail(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "invalid or expired token")
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		acct := s.accounts[c.GetString(userIDContextKey)]
		isAdmin := acct != nil && acct.user.IsAdmin()
		s.mu.Unlock()
		if !isAdmin {
			s.fail(c, http.StatusForbidden, "FORBIDDEN", "admin access required")
			return
		}
		c.Next()
	}
}

// SeedUser creates an account directly.
func (s *Server) SeedUser(email, password, name string, role domain.UserRole) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := s.byEmail[key]; exists {
		return domain.User{}, fmt.Errorf("user %s exists", email)
	}
	u := domain.User{
		ID:        util.NewID(),
		Email:     email,
		Name:      name,
		Role:      role,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	s.accounts[u.ID] = &account{user: u, passwordHash: hash}
	s.byEmail[key] = u.ID
	s.recordLocked("user_registered", u.ID, "user "+email+" registered")
	return u, nil
}

// SeedDocument stores a document owned by userID without going through upload.
func (s *Server) SeedDocument(userID, name string, content []byte) domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addDocumentLocked(userID, name, content, nil, nil)
}

// Documents returns the stored documents of userID in upload order.
func (s *Server) Documents(userID string) []domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Document
	for _, id := range s.docOrder {
		if d := s.documents[id]; d != nil && d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out
}

func (s *Server) recordLocked(kind, userID, message string) {
	s.activity = append(s.activity, domain.Activity{
		ID:        util.NewID(),
		Type:      kind,
		UserID:    userID,
		Message:   message,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	})
}
