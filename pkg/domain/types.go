package domain

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type MessageRole string

const (
	MessageUser      MessageRole = "user"
	MessageAssistant MessageRole = "assistant"
)

type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      UserRole   `json:"role"`
	Avatar    string     `json:"avatar,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
	Stats     *UserStats `json:"stats,omitempty"`
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

type UserStats struct {
	TotalDocuments int   `json:"totalDocuments"`
	TotalChats     int   `json:"totalChats"`
	StorageUsed    int64 `json:"storageUsed"`
}

// Tokens is the pair issued by login, register and refresh.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

type Document struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	OriginalName  string         `json:"originalName,omitempty"`
	Filename      string         `json:"filename,omitempty"`
	Size          int64          `json:"size"`
	MimeType      string         `json:"mimeType,omitempty"`
	URL           string         `json:"url,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	Status        DocumentStatus `json:"status"`
	PageCount     int            `json:"pageCount,omitempty"`
	WordCount     int            `json:"wordCount,omitempty"`
	UploadedAt    time.Time      `json:"uploadedAt"`
	ProcessedAt   *time.Time     `json:"processedAt,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ExtractedText string         `json:"extractedText,omitempty"`
	Summary       string         `json:"summary,omitempty"`
}

type Source struct {
	Document  string  `json:"document,omitempty"`
	Page      int     `json:"pageNumber"`
	Excerpt   string  `json:"excerpt"`
	Relevance float64 `json:"relevance"`
}

// ChatMessage is one entry of a document thread. TempID is set while the
// message is provisional and cleared once the server confirms it.
type ChatMessage struct {
	ID             string      `json:"id"`
	TempID         string      `json:"-"`
	ConversationID string      `json:"conversationId,omitempty"`
	DocumentID     string      `json:"documentId"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	Timestamp      time.Time   `json:"timestamp"`
	Confidence     *float64    `json:"confidence,omitempty"`
	Sources        []Source    `json:"sources,omitempty"`
}

// Provisional reports whether the message still awaits server confirmation.
func (m ChatMessage) Provisional() bool {
	return m.TempID != ""
}

type Summary struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"documentId"`
	DocumentName string    `json:"documentName,omitempty"`
	Style        string    `json:"style,omitempty"`
	Length       string    `json:"length,omitempty"`
	Content      string    `json:"content"`
	KeyPoints    []string  `json:"keyPoints,omitempty"`
	WordCount    int       `json:"wordCount,omitempty"`
	ReadingTime  string    `json:"readingTime,omitempty"`
	Confidence   float64   `json:"confidence,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type ComparisonSummary struct {
	TotalChanges      int     `json:"totalChanges"`
	Additions         int     `json:"additions"`
	Deletions         int     `json:"deletions"`
	Modifications     int     `json:"modifications"`
	SimilarityScore   float64 `json:"similarityScore"`
	ChangesPercentage float64 `json:"changesPercentage"`
}

type Comparison struct {
	ID             string             `json:"id"`
	DocumentID1    string             `json:"documentId1"`
	DocumentID2    string             `json:"documentId2"`
	Document1Name  string             `json:"document1Name,omitempty"`
	Document2Name  string             `json:"document2Name,omitempty"`
	ComparisonType string             `json:"comparisonType"`
	Status         string             `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	CompletedAt    *time.Time         `json:"completedAt,omitempty"`
	Summary        *ComparisonSummary `json:"summary,omitempty"`
	Changes        []map[string]any   `json:"changes,omitempty"`
	DiffURL        string             `json:"diffUrl,omitempty"`
	SideBySideURL  string             `json:"sideBySideUrl,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type CountStats struct {
	Total     int `json:"total"`
	ThisMonth int `json:"thisMonth"`
}

type Analytics struct {
	Period    string `json:"period"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Users     struct {
		Total  int     `json:"total"`
		Active int     `json:"active"`
		New    int     `json:"new"`
		Growth float64 `json:"growth"`
	} `json:"users"`
	Documents struct {
		Total        int   `json:"total"`
		Uploaded     int   `json:"uploaded"`
		TotalStorage int64 `json:"totalStorage"`
	} `json:"documents"`
	Chats       CountStats `json:"chats"`
	Comparisons CountStats `json:"comparisons"`
	Summaries   CountStats `json:"summaries"`
}

type Activity struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	UserID    string         `json:"userId,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}
