package testbackend

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docdesk/internal/util"
	"docdesk/pkg/domain"
)

type summarizeRequest struct {
	DocumentID string `json:"documentId"`
	Options    struct {
		Length string `json:"length"`
		Style  string `json:"style"`
	} `json:"options"`
}

func (s *Server) summarize(c *gin.Context) {
	var req summarizeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DocumentID == "" {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "documentId is required")
		return
	}
	userID := c.GetString(userIDContextKey)
	s.mu.Lock()
	d := s.ownedDocumentLocked(userID, req.DocumentID)
	if d == nil {
		s.mu.Unlock()
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	words := strings.Fields(string(s.files[d.ID]))
	if len(words) > 12 {
		words = words[:12]
	}
	content := fmt.Sprintf("%s summary of %s: %s", req.Options.Style, d.Name, strings.Join(words, " "))
	sum := domain.Summary{
		ID:           util.NewID(),
		DocumentID:   d.ID,
		DocumentName: d.Name,
		Style:        req.Options.Style,
		Length:       req.Options.Length,
		Content:      content,
		WordCount:    len(strings.Fields(content)),
		ReadingTime:  "1 min",
		Confidence:   0.8,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	s.summaries[sum.ID] = sum
	d.Summary = content
	s.recordLocked("summary_generated", userID, "summarized "+d.Name)
	s.mu.Unlock()
	s.respond(c, http.StatusOK, gin.H{"summary": sum})
}

func (s *Server) listSummaries(c *gin.Context) {
	docID := c.Param("id")
	style := c.Query("style")
	s.mu.Lock()
	if s.ownedDocumentLocked(c.GetString(userIDContextKey), docID) == nil {
		s.mu.Unlock()
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	out := []domain.Summary{}
	for _, sum := range s.summaries {
		if sum.DocumentID == docID && (style == "" || sum.Style == style) {
			out = append(out, sum)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	s.respond(c, http.StatusOK, gin.H{"summaries": out})
}

// summaryLocked returns the summary when it belongs to a document of userID.
func (s *Server) summaryLocked(userID, id string) (domain.Summary, bool) {
	sum, ok := s.summaries[id]
	if !ok || s.ownedDocumentLocked(userID, sum.DocumentID) == nil {
		return domain.Summary{}, false
	}
	return sum, true
}

func (s *Server) getSummary(c *gin.Context) {
	s.mu.Lock()
	sum, ok := s.summaryLocked(c.GetString(userIDContextKey), c.Param("id"))
	s.mu.Unlock()
	if !ok {
		s.fail(c, http.StatusNotFound, "SUMMARY_NOT_FOUND", "summary not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"summary": sum})
}

func (s *Server) deleteSummary(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	_, ok := s.summaryLocked(c.GetString(userIDContextKey), id)
	if ok {
		delete(s.summaries, id)
	}
	s.mu.Unlock()
	if !ok {
		s.fail(c, http.StatusNotFound, "SUMMARY_NOT_FOUND", "summary not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"message": "summary deleted"})
}

type compareRequest struct {
	DocumentID1    string `json:"documentId1"`
	DocumentID2    string `json:"documentId2"`
	ComparisonType string `json:"comparisonType"`
}

func (s *Server) compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.DocumentID1 == "" || req.DocumentID2 == "" {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "two document ids are required")
		return
	}
	if req.DocumentID1 == req.DocumentID2 {
		s.fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot compare a document with itself")
		return
	}
	userID := c.GetString(userIDContextKey)
	s.mu.Lock()
	d1 := s.ownedDocumentLocked(userID, req.DocumentID1)
	d2 := s.ownedDocumentLocked(userID, req.DocumentID2)
	if d1 == nil || d2 == nil {
		s.mu.Unlock()
		s.fail(c, http.StatusNotFound, "DOCUMENT_NOT_FOUND", "document not found")
		return
	}
	summary := diffWords(string(s.files[d1.ID]), string(s.files[d2.ID]))
	now := time.Now().UTC().Truncate(time.Second)
	cmp := domain.Comparison{
		ID:             util.NewID(),
		DocumentID1:    d1.ID,
		DocumentID2:    d2.ID,
		Document1Name:  d1.Name,
		Document2Name:  d2.Name,
		ComparisonType: req.ComparisonType,
		Status:         "completed",
		CreatedAt:      now,
		CompletedAt:    &now,
		Summary:        &summary,
	}
	s.comparisons[cmp.ID] = cmp
	s.recordLocked("comparison_created", userID, "compared "+d1.Name+" with "+d2.Name)
	s.mu.Unlock()
	s.respond(c, http.StatusCreated, gin.H{"comparison": cmp})
}

// diffWords compares two texts as word sets.
func diffWords(a, b string) domain.ComparisonSummary {
	left := map[string]bool{}
	for _, w := range strings.Fields(a) {
		left[w] = true
	}
	right := map[string]bool{}
	for _, w := range strings.Fields(b) {
		right[w] = true
	}
	var out domain.ComparisonSummary
	shared := 0
	for w := range right {
		if left[w] {
			shared++
		} else {
			out.Additions++
		}
	}
	for w := range left {
		if !right[w] {
			out.Deletions++
		}
	}
	out.TotalChanges = out.Additions + out.Deletions
	union := shared + out.TotalChanges
	if union > 0 {
		out.SimilarityScore = float64(shared) / float64(union)
		out.ChangesPercentage = 100 * float64(out.TotalChanges) / float64(union)
	} else {
		out.SimilarityScore = 1
	}
	return out
}

func (s *Server) comparisonLocked(userID, id string) (domain.Comparison, bool) {
	cmp, ok := s.comparisons[id]
	if !ok || s.ownedDocumentLocked(userID, cmp.DocumentID1) == nil {
		return domain.Comparison{}, false
	}
	return cmp, true
}

func (s *Server) getComparison(c *gin.Context) {
	s.mu.Lock()
	cmp, ok := s.comparisonLocked(c.GetString(userIDContextKey), c.Param("id"))
	s.mu.Unlock()
	if !ok {
		s.fail(c, http.StatusNotFound, "COMPARISON_NOT_FOUND", "comparison not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"comparison": cmp})
}

func (s *Server) compareHistory(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	docID := c.Query("documentId")
	page, limit := pageParams(c)
	var out []domain.Comparison
	s.mu.Lock()
	for id := range s.comparisons {
		cmp, ok := s.comparisonLocked(userID, id)
		if !ok {
			continue
		}
		if docID != "" && cmp.DocumentID1 != docID && cmp.DocumentID2 != docID {
			continue
		}
		out = append(out, cmp)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	items, pagination := paginate(out, page, limit)
	s.respond(c, http.StatusOK, gin.H{"comparisons": items, "pagination": pagination})
}

func (s *Server) deleteComparison(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	_, ok := s.comparisonLocked(c.GetString(userIDContextKey), id)
	if ok {
		delete(s.comparisons, id)
	}
	s.mu.Unlock()
	if !ok {
		s.fail(c, http.StatusNotFound, "COMPARISON_NOT_FOUND", "comparison not found")
		return
	}
	s.respond(c, http.StatusOK, gin.H{"message": "comparison deleted"})
}
