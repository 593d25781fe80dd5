package preflight

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// minimalPDF assembles a one-page PDF with a correct xref table.
func minimalPDF() []byte {
	content := "BT /F1 12 Tf 72 712 Td (Hello docdesk) Tj ET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestCheckAcceptsAllowedTextFile(t *testing.T) {
	c := New(Config{})
	rep, err := c.Check("notes.TXT", []byte("hello world"))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if rep.Extension != ".txt" || rep.Size != 11 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if c.MaxFileSize() != DefaultMaxFileSize {
		t.Fatalf("expected default size limit, got %d", c.MaxFileSize())
	}
}

func TestCheckRejectsUnsupportedExtension(t *testing.T) {
	c := New(Config{})
	if _, err := c.Check("image.png", []byte("x")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := c.Check("noext", []byte("x")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for missing extension, got %v", err)
	}
}

func TestCheckHonoursConfiguredTypesAndSize(t *testing.T) {
	c := New(Config{MaxFileSize: 4, AllowedTypes: []string{"md", " .TXT "}})
	if _, err := c.Check("a.md", []byte("1234")); err != nil {
		t.Fatalf("expected .md accepted at the limit, got %v", err)
	}
	if _, err := c.Check("a.txt", []byte("12345")); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if _, err := c.Check("a.pdf", []byte("1")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected .pdf rejected by custom list, got %v", err)
	}
}

func TestCheckRejectsEmptyFile(t *testing.T) {
	if _, err := New(Config{}).Check("a.txt", nil); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestCheckRejectsCorruptPDF(t *testing.T) {
	_, err := New(Config{}).Check("broken.pdf", []byte("this is not a pdf at all"))
	if !errors.Is(err, ErrUnreadablePDF) {
		t.Fatalf("expected ErrUnreadablePDF, got %v", err)
	}
}

func TestCheckReadsPDFPageCount(t *testing.T) {
	rep, err := New(Config{}).Check("doc.pdf", minimalPDF())
	if err != nil {
		t.Fatalf("check pdf: %v", err)
	}
	if rep.Pages != 1 {
		t.Fatalf("expected 1 page, got %d", rep.Pages)
	}
}
