package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docdesk/internal/testbackend"
	"docdesk/pkg/domain"
	"docdesk/pkg/tokenstore"
)

type cliEnv struct {
	backend *testbackend.Server
	apiURL  string
	deps    Deps
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("DOCDESK_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	backend, apiURL := testbackend.Serve(t, testbackend.Options{Envelope: true})
	t.Setenv("DOCDESK_HEALTH_URL", strings.TrimSuffix(apiURL, "/api")+"/health")
	return &cliEnv{
		backend: backend,
		apiURL:  apiURL,
		deps:    Deps{Tokens: tokenstore.NewMemory(), In: strings.NewReader("")},
	}
}

func (e *cliEnv) run(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	args = append([]string{"--api-url", e.apiURL, "--log-level", "error"}, args...)
	err := Execute(context.Background(), args, &stdout, &stderr, e.deps)
	return stdout.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(args...)
	if err != nil {
		t.Fatalf("docdesk %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestVersionFlag(t *testing.T) {
	var stdout bytes.Buffer
	if err := Execute(context.Background(), []string{"--version"}, &stdout, &bytes.Buffer{}, Deps{}); err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.Contains(stdout.String(), "dev") {
		t.Fatalf("unexpected version output %q", stdout.String())
	}
}

func TestDocumentAndChatWorkflow(t *testing.T) {
	e := newCLIEnv(t)
	if _, err := e.backend.SeedUser("ada@example.com", "secret123", "Ada", domain.RoleUser); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if out := e.mustRun(t, "login", "--email", "ada@example.com", "--password", "secret123"); !strings.Contains(out, "ada@example.com") {
		t.Fatalf("unexpected login output %q", out)
	}
	if out := e.mustRun(t, "whoami"); !strings.Contains(out, "ada@example.com") {
		t.Fatalf("unexpected whoami output %q", out)
	}

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("alpha beta gamma"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	e.mustRun(t, "docs", "upload", path, "--tag", "work")

	var docs []domain.Document
	if err := json.Unmarshal([]byte(e.mustRun(t, "--json", "docs", "list")), &docs); err != nil {
		t.Fatalf("decode docs list: %v", err)
	}
	if len(docs) != 1 || docs[0].Name != "notes.txt" {
		t.Fatalf("unexpected documents %+v", docs)
	}
	docID := docs[0].ID

	if out := e.mustRun(t, "chat", "send", docID, "what", "is", "this?"); !strings.Contains(out, "what is this?") {
		t.Fatalf("unexpected chat output %q", out)
	}
	e.mustRun(t, "chat", "send", docID, "and more?")

	var msgs []domain.ChatMessage
	if err := json.Unmarshal([]byte(e.mustRun(t, "--json", "chat", "history", docID)), &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 4 || msgs[0].ConversationID == "" || msgs[0].ConversationID != msgs[3].ConversationID {
		t.Fatalf("expected one conversation of 4 messages, got %+v", msgs)
	}

	e.mustRun(t, "chat", "clear", docID)
	if err := json.Unmarshal([]byte(e.mustRun(t, "--json", "chat", "history", docID)), &msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty history after clear, got %d", len(msgs))
	}

	if out := e.mustRun(t, "docs", "summarize", docID); !strings.Contains(out, "notes.txt") {
		t.Fatalf("unexpected summary output %q", out)
	}

	target := filepath.Join(t.TempDir(), "copy.txt")
	e.mustRun(t, "docs", "download", docID, "-o", target)
	if got, err := os.ReadFile(target); err != nil || string(got) != "alpha beta gamma" {
		t.Fatalf("downloaded %q, %v", got, err)
	}

	e.mustRun(t, "docs", "delete", docID)
	if n := len(e.backend.Documents(docs[0].UserID)); n != 0 {
		t.Fatalf("expected document deleted on the server, %d left", n)
	}

	e.mustRun(t, "logout")
	if _, err := e.run("whoami"); !errors.Is(err, errSignedOut) {
		t.Fatalf("expected errSignedOut after logout, got %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	e := newCLIEnv(t)
	if _, err := e.backend.SeedUser("ada@example.com", "secret123", "Ada", domain.RoleUser); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := e.run("login", "--email", "ada@example.com", "--password", "wrong")
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestLoginReadsPasswordFromInput(t *testing.T) {
	e := newCLIEnv(t)
	if _, err := e.backend.SeedUser("ada@example.com", "secret123", "Ada", domain.RoleUser); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e.deps.In = strings.NewReader("secret123\n")
	e.mustRun(t, "login", "--email", "ada@example.com")
}

func TestAdminCommandsRequireAdminRole(t *testing.T) {
	e := newCLIEnv(t)
	if _, err := e.backend.SeedUser("ada@example.com", "secret123", "Ada", domain.RoleUser); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e.mustRun(t, "login", "--email", "ada@example.com", "--password", "secret123")
	if _, err := e.run("admin", "users"); !errors.Is(err, errNotAdmin) {
		t.Fatalf("expected errNotAdmin, got %v", err)
	}
}

func TestAdminDashboard(t *testing.T) {
	e := newCLIEnv(t)
	if _, err := e.backend.SeedUser("root@example.com", "secret123", "Root", domain.RoleAdmin); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e.mustRun(t, "login", "--email", "root@example.com", "--password", "secret123")

	var d dashboard
	if err := json.Unmarshal([]byte(e.mustRun(t, "--json", "admin", "dashboard")), &d); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if len(d.Users) != 1 || d.Users[0].Email != "root@example.com" {
		t.Fatalf("unexpected users %+v", d.Users)
	}
	if d.Analytics.Users.Total != 1 {
		t.Fatalf("unexpected analytics %+v", d.Analytics)
	}
	if len(d.Activity) == 0 {
		t.Fatalf("expected activity entries")
	}
}

func TestHealthCommand(t *testing.T) {
	e := newCLIEnv(t)
	if out := e.mustRun(t, "health"); !strings.Contains(out, "Backend is healthy") {
		t.Fatalf("unexpected health output %q", out)
	}
	t.Setenv("DOCDESK_HEALTH_URL", "http://127.0.0.1:1/health")
	if _, err := e.run("health"); err == nil {
		t.Fatalf("expected unreachable backend to fail")
	}
}
