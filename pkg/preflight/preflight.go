// Package preflight validates files before they are uploaded so obviously
// bad uploads fail locally instead of after a full transfer.
package preflight

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrUnreadablePDF   = errors.New("unreadable PDF")
)

const (
	DefaultMaxFileSize = 10 << 20
)

// DefaultAllowedTypes are the extensions the backend accepts.
var DefaultAllowedTypes = []string{".pdf", ".doc", ".docx", ".txt", ".xlsx", ".xls"}

// Config sets the limits. Zero values fall back to the defaults.
type Config struct {
	MaxFileSize  int64
	AllowedTypes []string
}

// Report describes a file that passed the checks.
type Report struct {
	Filename  string
	Extension string
	MimeType  string
	Size      int64
	// Pages and HasText are only filled for PDFs.
	Pages   int
	HasText bool
}

// Checker applies a Config.
type Checker struct {
	maxSize int64
	allowed map[string]bool
}

func New(cfg Config) *Checker {
	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	types := cfg.AllowedTypes
	if len(types) == 0 {
		types = DefaultAllowedTypes
	}
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		allowed[t] = true
	}
	return &Checker{maxSize: maxSize, allowed: allowed}
}

// MaxFileSize returns the effective size limit.
func (c *Checker) MaxFileSize() int64 {
	return c.maxSize
}

// Check validates name and content. PDFs are opened to make sure the
// cross-reference table parses and at least one page exists.
func (c *Checker) Check(name string, content []byte) (Report, error) {
	ext := strings.ToLower(filepath.Ext(name))
	rep := Report{
		Filename:  name,
		Extension: ext,
		Size:      int64(len(content)),
		MimeType:  mime.TypeByExtension(ext),
	}
	if !c.allowed[ext] {
		return rep, fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if rep.Size == 0 {
		return rep, ErrEmptyFile
	}
	if rep.Size > c.maxSize {
		return rep, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, rep.Size, c.maxSize)
	}
	if ext == ".pdf" {
		pages, hasText, err := inspectPDF(content)
		if err != nil {
			return rep, err
		}
		rep.Pages, rep.HasText = pages, hasText
	}
	return rep, nil
}

func inspectPDF(content []byte) (pages int, hasText bool, err error) {
	// The parser panics on some malformed object streams.
	defer func() {
		if r := recover(); r != nil {
			pages, hasText, err = 0, false, fmt.Errorf("%w: %v", ErrUnreadablePDF, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnreadablePDF, err)
	}
	pages = reader.NumPage()
	if pages == 0 {
		return 0, false, fmt.Errorf("%w: no pages", ErrUnreadablePDF)
	}
	page := reader.Page(1)
	if !page.V.IsNull() {
		if text, err := page.GetPlainText(nil); err == nil {
			hasText = strings.TrimSpace(text) != ""
		}
	}
	return pages, hasText, nil
}
