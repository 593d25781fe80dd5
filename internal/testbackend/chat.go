package testbackend

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docdesk/internal/util"
	"docdesk/pkg/domain"
)

type queryRequest struct {
	DocumentID     string `json:"document_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
}

// wireMessage mirrors the backend's message shape, which names the author
// "type".
func wireMessage(m domain.ChatMessage) gin.H {
	h := gin.H{
		"id":             m.ID,
		"documentId":     m.DocumentID,
		"conversationId": m.ConversationID,
		"type":           m.Role,
		"content":        m.Content,
		"timestamp":      m.Timestamp,
	}
	if m.Confidence != nil {
		h["confidence"] = *m.Confidence
	}
	if len(m.Sources) > 0 {
		h["sources"] = m.Sources
	}
	return h
}

func (s *Server) chatQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "document_id and message are required")
		return
	}
	userID := c.GetString(userIDContextKey)
	now := time.Now().UTC().Truncate(time.Second)
	confidence := 0.9

	s.mu.Lock()
	d := s.ownedDocumentLocked(userID, req.DocumentID)
	if d == nil {
		s.mu.Unlock()
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	conv := s.conversations[req.DocumentID]
	if req.ConversationID != "" {
		conv = req.ConversationID
	}
	if conv == "" {
		conv = "conv-" + util.NewID()
	}
	s.conversations[req.DocumentID] = conv
	question := domain.ChatMessage{
		ID:             util.NewID(),
		ConversationID: conv,
		DocumentID:     req.DocumentID,
		Role:           domain.MessageUser,
		Content:        req.Message,
		Timestamp:      now,
	}
	answer := domain.ChatMessage{
		ID:             util.NewID(),
		ConversationID: conv,
		DocumentID:     req.DocumentID,
		Role:           domain.MessageAssistant,
		Content:        "About " + d.Name + ": " + req.Message,
		Timestamp:      now,
		Confidence:     &confidence,
		Sources:        []domain.Source{{Document: d.Name, Page: 1, Excerpt: req.Message, Relevance: confidence}},
	}
	if !s.echoUserMsgID {
		question.ID = answer.ID + "-q"
	}
	s.history[req.DocumentID] = append(s.history[req.DocumentID], question, answer)
	echo := s.echoUserMsgID
	s.mu.Unlock()

	resp := wireMessage(answer)
	if echo {
		resp["userMessageId"] = question.ID
	}
	s.respond(c, http.StatusOK, gin.H{"response": resp})
}

func (s *Server) chatHistory(c *gin.Context) {
	docID := c.Param("documentId")
	conv := c.Query("conversationId")
	s.mu.Lock()
	if s.ownedDocumentLocked(c.GetString(userIDContextKey), docID) == nil {
		s.mu.Unlock()
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	msgs := make([]gin.H, 0, len(s.history[docID]))
	for _, m := range s.history[docID] {
		if conv != "" && m.ConversationID != conv {
			continue
		}
		msgs = append(msgs, wireMessage(m))
	}
	s.mu.Unlock()
	s.respond(c, http.StatusOK, gin.H{"history": msgs})
}

func (s *Server) clearChatHistory(c *gin.Context) {
	docID := c.Param("documentId")
	conv := c.Query("conversationId")
	s.mu.Lock()
	if s.ownedDocumentLocked(c.GetString(userIDContextKey), docID) == nil {
		s.mu.Unlock()
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	kept := s.history[docID][:0]
	deleted := 0
	for _, m := range s.history[docID] {
		if conv != "" && m.ConversationID != conv {
			kept = append(kept, m)
			continue
		}
		deleted++
	}
	if len(kept) == 0 {
		delete(s.history, docID)
		delete(s.conversations, docID)
	} else {
		s.history[docID] = kept
	}
	s.mu.Unlock()
	s.respond(c, http.StatusOK, gin.H{"message": "chat history cleared", "deletedMessages": deleted})
}

func (s *Server) conversationList(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	page, limit := pageParams(c)
	var convs []gin.H
	s.mu.Lock()
	for _, docID := range s.docOrder {
		d := s.ownedDocumentLocked(userID, docID)
		msgs := s.history[docID]
		if d == nil || len(msgs) == 0 {
			continue
		}
		last := msgs[len(msgs)-1]
		convs = append(convs, gin.H{
			"id":           s.conversations[docID],
			"documentId":   docID,
			"documentName": d.Name,
			"messageCount": len(msgs),
			"lastMessage":  last.Content,
			"updatedAt":    last.Timestamp.Format(time.RFC3339),
		})
	}
	s.mu.Unlock()
	items, pagination := paginate(convs, page, limit)
	s.respond(c, http.StatusOK, gin.H{"conversations": items, "pagination": pagination})
}
