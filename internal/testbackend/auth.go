package testbackend

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"docdesk/pkg/domain"
)

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	switch {
	case !strings.Contains(req.Email, "@"):
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "a valid email is required")
		return
	case len(req.Password) < 6:
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "password must be at least 6 characters")
		return
	case req.Password != req.ConfirmPassword:
		s.fail(c, http.StatusBadRequest, "PASSWORD_MISMATCH", "passwords do not match")
		return
	}
	user, err := s.SeedUser(req.Email, req.Password, req.Name, domain.RoleUser)
	if err != nil {
		s.fail(c, http.StatusConflict, "USER_EXISTS", "user already exists")
		return
	}
	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	s.respond(c, http.StatusCreated, gin.H{"user": user, "tokens": tokens})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	s.mu.Lock()
	acct := s.accounts[s.byEmail[strings.ToLower(req.Email)]]
	var hash []byte
	if acct != nil {
		hash = acct.passwordHash
	}
	s.mu.Unlock()
	if acct == nil || bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil {
		s.fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
		return
	}
	tokens, err := s.issueTokens(acct.user.ID)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	s.mu.Lock()
	now := time.Now().UTC().Truncate(time.Second)
	acct.user.LastLogin = &now
	user := acct.user
	s.recordLocked("user_login", user.ID, "user "+user.Email+" logged in")
	s.mu.Unlock()
	s.respond(c, http.StatusOK, gin.H{"user": user, "tokens": tokens})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "refresh token is required")
		return
	}
	s.mu.Lock()
	userID, ok := s.refreshTokens[req.RefreshToken]
	if ok {
		delete(s.refreshTokens, req.RefreshToken)
	}
	s.mu.Unlock()
	if !ok {
		s.fail(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "invalid or expired refresh token")
		return
	}
	tokens, err := s.issueTokens(userID)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	s.respond(c, http.StatusOK, gin.H{"accessToken": tokens.AccessToken, "refreshToken": tokens.RefreshToken})
}

func (s *Server) logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)
	s.mu.Lock()
	delete(s.refreshTokens, req.RefreshToken)
	s.mu.Unlock()
	s.respond(c, http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) me(c *gin.Context) {
	s.mu.Lock()
	acct := s.accounts[c.GetString(userIDContextKey)]
	var user domain.User
	if acct != nil {
		user = acct.user
	}
	s.mu.Unlock()
	if acct == nil {
		s.fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "user no longer exists")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"user": user})
}
