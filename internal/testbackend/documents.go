package testbackend

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docdesk/internal/util"
	"docdesk/pkg/domain"
)

func (s *Server) addDocumentLocked(userID, name string, content []byte, tags []string, metadata map[string]any) domain.Document {
	now := time.Now().UTC().Truncate(time.Second)
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	doc := &domain.Document{
		ID:           util.NewID(),
		Name:         name,
		OriginalName: name,
		Filename:     name,
		Size:         int64(len(content)),
		MimeType:     mimeType,
		UserID:       userID,
		Status:       domain.StatusProcessed,
		WordCount:    len(strings.Fields(string(content))),
		UploadedAt:   now,
		ProcessedAt:  &now,
		Tags:         tags,
		Metadata:     metadata,
	}
	s.documents[doc.ID] = doc
	s.docOrder = append(s.docOrder, doc.ID)
	s.files[doc.ID] = append([]byte(nil), content...)
	return *doc
}

// ownedDocumentLocked returns the document when userID owns it.
func (s *Server) ownedDocumentLocked(userID, id string) *domain.Document {
	d := s.documents[id]
	if d == nil || d.UserID != userID {
		return nil
	}
	return d
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return page, limit
}

func paginate[T any](items []T, page, limit int) ([]T, domain.Pagination) {
	total := len(items)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	pages := (total + limit - 1) / limit
	out := append([]T{}, items[start:end]...)
	return out, domain.Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

func (s *Server) listDocuments(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	search := strings.ToLower(c.Query("search"))
	page, limit := pageParams(c)
	var docs []domain.Document
	s.mu.Lock()
	for _, id := range s.docOrder {
		d := s.documents[id]
		if d == nil || d.UserID != userID {
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

func (s *Server) uploadDocument(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBodySize)
	fh, err := c.FormFile("file")
	if err != nil {
		s.fail(c, http.StatusBadRequest, "NO_FILE", "no file uploaded")
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, http.StatusBadRequest, "NO_FILE", "unreadable upload")
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, http.StatusBadRequest, "NO_FILE", "unreadable upload")
		return
	}
	var tags []string
	if raw := c.PostForm("tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "tags must be a JSON array")
			return
		}
	}
	var metadata map[string]any
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "metadata must be a JSON object")
			return
		}
	}
	s.mu.Lock()
	doc := s.addDocumentLocked(userID, fh.Filename, content, tags, metadata)
	s.recordLocked("document_uploaded", userID, "uploaded "+doc.Name)
	s.mu.Unlock()
	s.respond(c, http.StatusCreated, gin.H{"document": doc})
}

func (s *Server) getDocument(c *gin.Context) {
	s.mu.Lock()
	d := s.ownedDocumentLocked(c.GetString(userIDContextKey), c.Param("id"))
	var doc domain.Document
	if d != nil {
		doc = *d
	}
	s.mu.Unlock()
	if d == nil {
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"document": doc})
}

type documentPatch struct {
	Name     *string        `json:"name"`
	Tags     []string       `json:"tags"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) updateDocument(c *gin.Context) {
	var patch documentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	s.mu.Lock()
	d := s.ownedDocumentLocked(c.GetString(userIDContextKey), c.Param("id"))
	var doc domain.Document
	if d != nil {
		if patch.Name != nil {
			d.Name = *patch.Name
		}
		if patch.Tags != nil {
			d.Tags = patch.Tags
		}
		if patch.Metadata != nil {
			d.Metadata = patch.Metadata
		}
		doc = *d
	}
	s.mu.Unlock()
	if d == nil {
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"document": doc})
}

func (s *Server) deleteDocument(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	id := c.Param("id")
	s.mu.Lock()
	d := s.ownedDocumentLocked(userID, id)
	if d != nil {
		s.removeDocumentLocked(id)
		s.recordLocked("document_deleted", userID, "deleted "+d.Name)
	}
	s.mu.Unlock()
	if d == nil {
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"message": "document deleted", "documentId": id})
}

func (s *Server) removeDocumentLocked(id string) {
	delete(s.documents, id)
	delete(s.files, id)
	delete(s.history, id)
	delete(s.conversations, id)
	for i, v := range s.docOrder {
		if v == id {
			s.docOrder = append(s.docOrder[:i], s.docOrder[i+1:]...)
			break
		}
	}
}

func (s *Server) downloadDocument(c *gin.Context) {
	s.mu.Lock()
	d := s.ownedDocumentLocked(c.GetString(userIDContextKey), c.Param("id"))
	var name string
	if d != nil {
		name = d.OriginalName
	}
	s.mu.Unlock()
	if d == nil {
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{
		"downloadUrl": "http://" + c.Request.Host + "/files/" + c.Param("id") + "?sig=" + util.NewID(),
		"filename":    name,
	})
}

// serveFile plays the object store behind presigned URLs; it takes no
// bearer token.
func (s *Server) serveFile(c *gin.Context) {
	if c.Query("sig") == "" {
		c.String(http.StatusForbidden, "signature required")
		return
	}
	s.mu.Lock()
	content, ok := s.files[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		c.String(http.StatusNotFound, "no such object")
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", content)
}
