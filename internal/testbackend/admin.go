package testbackend

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docdesk/internal/util"
	"docdesk/pkg/domain"
)

func (s *Server) userWithStatsLocked(a *account) domain.User {
	u := a.user
	stats := domain.UserStats{}
	for _, d := range s.documents {
		if d.UserID == u.ID {
			stats.TotalDocuments++
			stats.StorageUsed += d.Size
			stats.TotalChats += len(s.history[d.ID])
		}
	}
	u.Stats = &stats
	return u
}

func (s *Server) sortedAccountsLocked() []*account {
	out := make([]*account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].user.Email < out[j].user.Email })
	return out
}

func (s *Server) adminUsers(c *gin.Context) {
	search := strings.ToLower(c.Query("search"))
	role := c.Query("role")
	page, limit := pageParams(c)
	var users []domain.User
	admins := 0
	s.mu.Lock()
	for _, a := range s.sortedAccountsLocked() {
		if a.user.IsAdmin() {
			admins++
		}
		if role != "" && string(a.user.Role) != role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(a.user.Email+" "+a.user.Name), search) {
			continue
		}
		users = append(users, s.userWithStatsLocked(a))
	}
	total := len(s.accounts)
	s.mu.Unlock()
	items, pagination := paginate(users, page, limit)
	s.respond(c, http.StatusOK, gin.H{
		"users":      items,
		"pagination": pagination,
		"summary":    gin.H{"totalUsers": total, "adminUsers": admins},
	})
}

func (s *Server) adminUser(c *gin.Context) {
	s.mu.Lock()
	a := s.accounts[c.Param("id")]
	var u domain.User
	if a != nil {
		u = s.userWithStatsLocked(a)
	}
	s.mu.Unlock()
	if a == nil {
		s.fail(c, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"user": u})
}

type userPatch struct {
	Name  *string          `json:"name"`
	Email *string          `json:"email"`
	Role  *domain.UserRole `json:"role"`
}

func (s *Server) adminUpdateUser(c *gin.Context) {
	var patch userPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if patch.Role != nil && *patch.Role != domain.RoleUser && *patch.Role != domain.RoleAdmin {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "role must be user or admin")
		return
	}
	s.mu.Lock()
	a := s.accounts[c.Param("id")]
	var u domain.User
	if a != nil {
		if patch.Name != nil {
			a.user.Name = *patch.Name
		}
		if patch.Email != nil {
			delete(s.byEmail, strings.ToLower(a.user.Email))
			a.user.Email = *patch.Email
			s.byEmail[strings.ToLower(a.user.Email)] = a.user.ID
		}
		if patch.Role != nil {
			a.user.Role = *patch.Role
		}
		now := time.Now().UTC().Truncate(time.Second)
		a.user.UpdatedAt = &now
		u = s.userWithStatsLocked(a)
	}
	s.mu.Unlock()
	if a == nil {
		s.fail(c, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"user": u})
}

func (s *Server) adminDeleteUser(c *gin.Context) {
	id := c.Param("id")
	if id == c.GetString(userIDContextKey) {
		s.fail(c, http.StatusBadRequest, "CANNOT_DELETE_SELF", "cannot delete your own account")
		return
	}
	s.mu.Lock()
	a := s.accounts[id]
	docs, chats := 0, 0
	if a != nil {
		for _, docID := range append([]string(nil), s.docOrder...) {
			if d := s.documents[docID]; d != nil && d.UserID == id {
				docs++
				chats += len(s.history[docID])
				s.removeDocumentLocked(docID)
			}
		}
		for token, owner := range s.refreshTokens {
			if owner == id {
				delete(s.refreshTokens, token)
			}
		}
		delete(s.byEmail, strings.ToLower(a.user.Email))
		delete(s.accounts, id)
	}
	s.mu.Unlock()
	if a == nil {
		s.fail(c, http.StatusNotFound, "USER_NOT_FOUND", "user not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{
		"message":          "user deleted",
		"deletedResources": gin.H{"documents": docs, "chatMessages": chats},
	})
}

func (s *Server) adminAnalytics(c *gin.Context) {
	period := c.DefaultQuery("period", "30d")
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var a domain.Analytics
	a.Period = period
	a.EndDate = now.Format(time.DateOnly)
	a.StartDate = now.AddDate(0, 0, -30).Format(time.DateOnly)

	s.mu.Lock()
	for _, acct := range s.accounts {
		a.Users.Total++
		if acct.user.LastLogin != nil {
			a.Users.Active++
		}
		if !acct.user.CreatedAt.Before(monthStart) {
			a.Users.New++
		}
	}
	for _, d := range s.documents {
		a.Documents.Total++
		a.Documents.TotalStorage += d.Size
		if !d.UploadedAt.Before(monthStart) {
			a.Documents.Uploaded++
		}
	}
	for _, msgs := range s.history {
		a.Chats.Total += len(msgs)
	}
	a.Chats.ThisMonth = a.Chats.Total
	a.Comparisons.Total = len(s.comparisons)
	a.Comparisons.ThisMonth = a.Comparisons.Total
	a.Summaries.Total = len(s.summaries)
	a.Summaries.ThisMonth = a.Summaries.Total
	s.mu.Unlock()
	if a.Users.Total > 0 {
		a.Users.Growth = 100 * float64(a.Users.New) / float64(a.Users.Total)
	}
	s.respond(c, http.StatusOK, gin.H{"analytics": a})
}

func (s *Server) adminDocuments(c *gin.Context) {
	userID := c.Query("userId")
	search := strings.ToLower(c.Query("search"))
	page, limit := pageParams(c)
	var docs []domain.Document
	s.mu.Lock()
	for _, id := range s.docOrder {
		d := s.documents[id]
		if userID != "" && d.UserID != userID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(d.Name), search) {
			continue
		}
		docs = append(docs, *d)
	}
	s.mu.Unlock()
	items, pagination := paginate(docs, page, limit)
	s.respond(c, http.StatusOK, gin.H{"documents": items, "pagination": pagination})
}

func (s *Server) adminActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	kind := c.Query("type")
	var out []domain.Activity
	s.mu.Lock()
	for i := len(s.activity) - 1; i >= 0; i-- {
		act := s.activity[i]
		if kind != "" && act.Type != kind {
			continue
		}
		out = append(out, act)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	s.mu.Unlock()
	s.respond(c, http.StatusOK, gin.H{"activities": out})
}

type broadcastRequest struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	Recipients any    `json:"recipients"`
	Type       string `json:"type"`
}

func (s *Server) adminBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" || req.Message == "" {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "title and message are required")
		return
	}
	s.mu.Lock()
	count := 0
	switch r := req.Recipients.(type) {
	case []any:
		count = len(r)
	default:
		count = len(s.accounts)
	}
	s.recordLocked("broadcast_sent", c.GetString(userIDContextKey), req.Title)
	s.mu.Unlock()
	s.respond(c, http.StatusOK, gin.H{"broadcastId": util.NewID(), "recipientCount": count})
}
