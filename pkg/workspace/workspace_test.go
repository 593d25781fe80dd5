package workspace

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docdesk/internal/testbackend"
	"docdesk/pkg/apiclient"
	"docdesk/pkg/domain"
	"docdesk/pkg/preflight"
	"docdesk/pkg/session"
)

type testEnv struct {
	backend   *testbackend.Server
	client    *apiclient.Client
	session   *session.Session
	ws        *Workspace
	malformed atomic.Bool
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	e := &testEnv{backend: testbackend.New(testbackend.Options{Envelope: true})}
	inner := e.backend.Handler()
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.malformed.Load() && r.URL.Path == "/api/documents/list" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"success":true,"data":{"unexpected":"shape"}}`)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	t.Cleanup(hs.Close)

	client, err := apiclient.New(apiclient.Config{BaseURL: hs.URL + "/api"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Logger == nil {
		opts.Logger = logger
	}
	e.client = client
	e.session = session.New(client, logger)
	e.ws = New(client, e.session, opts)
	return e
}

func (e *testEnv) login(t *testing.T, email string) domain.User {
	t.Helper()
	u, err := e.backend.SeedUser(email, "secret123", email, domain.RoleUser)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if ok, err := e.session.Login(context.Background(), email, "secret123"); !ok || err != nil {
		t.Fatalf("login %s: ok=%v err=%v", email, ok, err)
	}
	return u
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRefreshLoadsAllPages(t *testing.T) {
	e := newTestEnv(t, Options{PageSize: 2})
	u := e.login(t, "a@example.com")
	for _, name := range []string{"1.txt", "2.txt", "3.txt", "4.txt", "5.txt"} {
		e.backend.SeedDocument(u.ID, name, []byte("content of "+name))
	}
	if err := e.ws.Documents.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	docs := e.ws.Documents.List()
	if len(docs) != 5 || docs[0].Name != "1.txt" || docs[4].Name != "5.txt" {
		t.Fatalf("unexpected documents %+v", docs)
	}
	if n := e.backend.Calls(http.MethodGet, "/api/documents/list"); n != 3 {
		t.Fatalf("expected 3 page fetches, got %d", n)
	}
}

func TestRefreshRequiresSession(t *testing.T) {
	e := newTestEnv(t, Options{})
	if err := e.ws.Documents.Refresh(context.Background()); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestRefreshMalformedResponseEmptiesStore(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	e.backend.SeedDocument(u.ID, "a.txt", []byte("a"))
	if err := e.ws.Documents.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	e.malformed.Store(true)
	err := e.ws.Documents.Refresh(context.Background())
	if !apiclient.IsCode(err, apiclient.CodeInvalidResponse) {
		t.Fatalf("expected INVALID_RESPONSE, got %v", err)
	}
	if e.ws.Documents.Len() != 0 {
		t.Fatalf("expected empty store after malformed list")
	}
}

func TestRefreshTransportFailureKeepsStore(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	e.backend.SeedDocument(u.ID, "a.txt", []byte("a"))
	if err := e.ws.Documents.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	e.backend.Fail(http.MethodGet, "/api/documents/list", 1, http.StatusServiceUnavailable, "UNAVAILABLE", "down")
	if err := e.ws.Documents.Refresh(context.Background()); apiclient.StatusOf(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %v", err)
	}
	if e.ws.Documents.Len() != 1 {
		t.Fatalf("expected store untouched by a server failure")
	}
}

func TestRefreshSurvivesExpiredAccessToken(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	e.backend.SeedDocument(u.ID, "a.txt", []byte("a"))
	e.backend.ExpireAccessTokens()
	if err := e.ws.Documents.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh after expiry: %v", err)
	}
	if e.ws.Documents.Len() != 1 {
		t.Fatalf("expected one document")
	}
	if n := e.backend.Calls(http.MethodPost, "/api/auth/refresh"); n != 1 {
		t.Fatalf("expected exactly one token refresh, got %d", n)
	}
}

func TestUploadGrowsStoreByOnePerSuccess(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.login(t, "a@example.com")
	ctx := context.Background()

	for i, name := range []string{"a.txt", "b.txt"} {
		doc, err := e.ws.Documents.Upload(ctx, UploadInput{Filename: name, Content: []byte("hello"), Tags: []string{"t"}})
		if err != nil {
			t.Fatalf("upload %s: %v", name, err)
		}
		if e.ws.Documents.Len() != i+1 {
			t.Fatalf("expected %d documents, got %d", i+1, e.ws.Documents.Len())
		}
		if got, ok := e.ws.Documents.Get(doc.ID); !ok || got.Name != name || len(got.Tags) != 1 {
			t.Fatalf("unexpected stored document %+v", got)
		}
	}

	e.backend.Fail(http.MethodPost, "/api/documents/upload", 1, http.StatusInternalServerError, "UPLOAD_FAILED", "disk full")
	_, err := e.ws.Documents.Upload(ctx, UploadInput{Filename: "c.txt", Content: []byte("x")})
	if !apiclient.IsCode(err, "UPLOAD_FAILED") {
		t.Fatalf("expected UPLOAD_FAILED, got %v", err)
	}
	if e.ws.Documents.Len() != 2 {
		t.Fatalf("failed upload must not change the store, got %d", e.ws.Documents.Len())
	}
}

func TestUploadPreflightRejectsLocally(t *testing.T) {
	e := newTestEnv(t, Options{Preflight: preflight.New(preflight.Config{MaxFileSize: 3})})
	e.login(t, "a@example.com")
	_, err := e.ws.Documents.Upload(context.Background(), UploadInput{Filename: "a.txt", Content: []byte("too long")})
	if !errors.Is(err, preflight.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if n := e.backend.Calls(http.MethodPost, "/api/documents/upload"); n != 0 {
		t.Fatalf("rejected file must not reach the server, got %d calls", n)
	}
}

func TestDeleteCascadesOnlyAfterServerConfirms(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	keep := e.backend.SeedDocument(u.ID, "keep.txt", []byte("keep"))
	drop := e.backend.SeedDocument(u.ID, "drop.txt", []byte("drop"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, id := range []string{keep.ID, drop.ID} {
		if _, err := e.ws.Chats.Send(ctx, id, "hello"); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	e.backend.Fail(http.MethodDelete, "/api/documents/:id", 1, http.StatusInternalServerError, "DELETE_FAILED", "try later")
	if err := e.ws.Documents.Delete(ctx, drop.ID); !apiclient.IsCode(err, "DELETE_FAILED") {
		t.Fatalf("expected DELETE_FAILED, got %v", err)
	}
	if _, ok := e.ws.Documents.Get(drop.ID); !ok || len(e.ws.Chats.Messages(drop.ID)) != 2 {
		t.Fatalf("failed delete must leave document and messages intact")
	}

	if err := e.ws.Documents.Delete(ctx, drop.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := e.ws.Documents.Get(drop.ID); ok {
		t.Fatalf("document still present after delete")
	}
	if msgs := e.ws.Chats.Messages(drop.ID); len(msgs) != 0 {
		t.Fatalf("expected messages of deleted document removed, got %d", len(msgs))
	}
	if e.ws.Chats.ConversationID(drop.ID) != "" {
		t.Fatalf("expected conversation of deleted document removed")
	}
	if len(e.ws.Chats.Messages(keep.ID)) != 2 {
		t.Fatalf("other threads must be untouched")
	}
}

func TestSendShowsOneProvisionalMessageWhilePending(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	doc := e.backend.SeedDocument(u.ID, "a.txt", []byte("alpha"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	release := e.backend.Hold(http.MethodPost, "/api/chat/query")
	t.Cleanup(release)
	done := make(chan error, 1)
	go func() {
		_, err := e.ws.Chats.Send(ctx, doc.ID, "hello")
		done <- err
	}()
	waitFor(t, func() bool { return e.ws.Chats.Pending(doc.ID) })

	msgs := e.ws.Chats.Messages(doc.ID)
	if len(msgs) != 1 || !msgs[0].Provisional() || msgs[0].Content != "hello" {
		t.Fatalf("expected exactly one provisional message, got %+v", msgs)
	}
	if _, err := e.ws.Chats.Send(ctx, doc.ID, "again"); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs = e.ws.Chats.Messages(doc.ID)
	if len(msgs) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Provisional() || strings.HasPrefix(m.ID, tempIDPrefix) {
			t.Fatalf("provisional id left behind: %+v", m)
		}
	}
	if msgs[0].Role != domain.MessageUser || msgs[1].Role != domain.MessageAssistant {
		t.Fatalf("unexpected roles %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].ID != msgs[1].ID+"-q" {
		t.Fatalf("expected derived user message id, got %q", msgs[0].ID)
	}
	if e.ws.Chats.ConversationID(doc.ID) == "" {
		t.Fatalf("expected conversation id captured from the reply")
	}
}

func TestSendReusesConversationID(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	doc := e.backend.SeedDocument(u.ID, "a.txt", []byte("alpha"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	first, err := e.ws.Chats.Send(ctx, doc.ID, "one")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	second, err := e.ws.Chats.Send(ctx, doc.ID, "two")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if first.ConversationID == "" || first.ConversationID != second.ConversationID {
		t.Fatalf("expected one conversation, got %q and %q", first.ConversationID, second.ConversationID)
	}
	msgs := e.ws.Chats.Messages(doc.ID)
	if len(msgs) != 4 || msgs[0].Content != "one" || msgs[2].Content != "two" {
		t.Fatalf("expected insertion order, got %+v", msgs)
	}
}

func TestSendFailureRestoresPriorMessages(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	doc := e.backend.SeedDocument(u.ID, "a.txt", []byte("alpha"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := e.ws.Chats.Send(ctx, doc.ID, "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	before := e.ws.Chats.Messages(doc.ID)

	e.backend.Fail(http.MethodPost, "/api/chat/query", 1, http.StatusBadGateway, "AI_UNAVAILABLE", "model offline")
	_, err := e.ws.Chats.Send(ctx, doc.ID, "second")
	if !apiclient.IsCode(err, "AI_UNAVAILABLE") {
		t.Fatalf("expected AI_UNAVAILABLE, got %v", err)
	}
	after := e.ws.Chats.Messages(doc.ID)
	if len(after) != len(before) {
		t.Fatalf("expected %d messages after failure, got %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Fatalf("message %d changed: %s -> %s", i, before[i].ID, after[i].ID)
		}
	}
	if e.ws.Chats.Pending(doc.ID) {
		t.Fatalf("pending flag must be cleared after failure")
	}
}

func TestSendValidation(t *testing.T) {
	e := newTestEnv(t, Options{})
	e.login(t, "a@example.com")
	ctx := context.Background()
	if _, err := e.ws.Chats.Send(ctx, "whatever", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := e.ws.Chats.Send(ctx, "missing", "hello"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestClearChat(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	doc := e.backend.SeedDocument(u.ID, "a.txt", []byte("alpha"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := e.ws.Chats.Send(ctx, doc.ID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	e.backend.Fail(http.MethodDelete, "/api/chat/history/:documentId", 1, http.StatusInternalServerError, "CLEAR_FAILED", "nope")
	if err := e.ws.Chats.Clear(ctx, doc.ID); !apiclient.IsCode(err, "CLEAR_FAILED") {
		t.Fatalf("expected CLEAR_FAILED, got %v", err)
	}
	if len(e.ws.Chats.Messages(doc.ID)) != 2 || e.ws.Chats.ConversationID(doc.ID) == "" {
		t.Fatalf("failed clear must keep messages and conversation")
	}

	if err := e.ws.Chats.Clear(ctx, doc.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(e.ws.Chats.Messages(doc.ID)) != 0 {
		t.Fatalf("expected no messages after clear")
	}
	if e.ws.Chats.ConversationID(doc.ID) != "" {
		t.Fatalf("expected conversation id dropped after clear")
	}
	msgs, err := e.ws.Chats.LoadHistory(ctx, doc.ID)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected server history cleared, got %d", len(msgs))
	}
}

func TestClearRefusesWhileSendPending(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	doc := e.backend.SeedDocument(u.ID, "a.txt", []byte("alpha"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	release := e.backend.Hold(http.MethodPost, "/api/chat/query")
	t.Cleanup(release)
	done := make(chan error, 1)
	go func() {
		_, err := e.ws.Chats.Send(ctx, doc.ID, "hello")
		done <- err
	}()
	waitFor(t, func() bool { return e.ws.Chats.Pending(doc.ID) })

	if err := e.ws.Chats.Clear(ctx, doc.ID); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("expected ErrSendInFlight, got %v", err)
	}
	if n := e.backend.Calls(http.MethodDelete, "/api/chat/history/:documentId"); n != 0 {
		t.Fatalf("expected no server clear while pending, got %d", n)
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if n := len(e.ws.Chats.Messages(doc.ID)); n != 2 {
		t.Fatalf("expected the reply kept, got %d messages", n)
	}
	if e.ws.Chats.ConversationID(doc.ID) == "" {
		t.Fatalf("expected conversation id kept")
	}
}

func TestLateReplyIsNotAppendedToReplacedThread(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	doc := e.backend.SeedDocument(u.ID, "a.txt", []byte("alpha"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	release := e.backend.Hold(http.MethodPost, "/api/chat/query")
	t.Cleanup(release)
	first := make(chan error, 1)
	go func() {
		_, err := e.ws.Chats.Send(ctx, doc.ID, "first")
		first <- err
	}()
	waitFor(t, func() bool { return e.ws.Chats.Pending(doc.ID) })

	e.ws.Chats.Forget(doc.ID)
	second := make(chan domain.ChatMessage, 1)
	go func() {
		reply, err := e.ws.Chats.Send(ctx, doc.ID, "second")
		if err != nil {
			t.Errorf("second send: %v", err)
		}
		second <- reply
	}()
	waitFor(t, func() bool { return e.backend.Calls(http.MethodPost, "/api/chat/query") == 2 })

	release()
	if err := <-first; err != nil {
		t.Fatalf("first send: %v", err)
	}
	reply := <-second
	msgs := e.ws.Chats.Messages(doc.ID)
	if len(msgs) != 2 || msgs[0].Content != "second" || msgs[1].ID != reply.ID {
		t.Fatalf("expected only the second exchange, got %+v", msgs)
	}
	if got := e.ws.Chats.ConversationID(doc.ID); got != reply.ConversationID {
		t.Fatalf("expected conversation %q, got %q", reply.ConversationID, got)
	}
}

func TestLoadHistoryReplacesThread(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	doc := e.backend.SeedDocument(u.ID, "a.txt", []byte("alpha"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := e.ws.Chats.Send(ctx, doc.ID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	conv := e.ws.Chats.ConversationID(doc.ID)
	e.ws.Chats.Reset()

	msgs, err := e.ws.Chats.LoadHistory(ctx, doc.ID)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != domain.MessageUser || msgs[1].Role != domain.MessageAssistant {
		t.Fatalf("unexpected history %+v", msgs)
	}
	if e.ws.Chats.ConversationID(doc.ID) != conv {
		t.Fatalf("expected conversation %q restored, got %q", conv, e.ws.Chats.ConversationID(doc.ID))
	}
}

func TestUserSwitchClearsStoresBeforeNewUserFetch(t *testing.T) {
	e := newTestEnv(t, Options{})
	a := e.login(t, "a@example.com")
	docA := e.backend.SeedDocument(a.ID, "a-secret.txt", []byte("alpha"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := e.ws.Chats.Send(ctx, docA.ID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Registered after the workspace, so it observes the stores right after
	// they were reset and before Login returns.
	var docsAtSwitch, msgsAtSwitch = -1, -1
	e.session.OnChange(func(prev, cur *domain.User) {
		docsAtSwitch = e.ws.Documents.Len()
		msgsAtSwitch = len(e.ws.Chats.Messages(docA.ID))
	})

	b, err := e.backend.SeedUser("b@example.com", "secret123", "B", domain.RoleUser)
	if err != nil {
		t.Fatalf("seed b: %v", err)
	}
	e.backend.SeedDocument(b.ID, "b.txt", []byte("beta"))
	listCalls := e.backend.Calls(http.MethodGet, "/api/documents/list")
	if ok, err := e.session.Login(ctx, "b@example.com", "secret123"); !ok || err != nil {
		t.Fatalf("login b: ok=%v err=%v", ok, err)
	}
	if docsAtSwitch != 0 || msgsAtSwitch != 0 {
		t.Fatalf("stores not cleared at switch: docs=%d msgs=%d", docsAtSwitch, msgsAtSwitch)
	}
	if e.backend.Calls(http.MethodGet, "/api/documents/list") != listCalls {
		t.Fatalf("no fetch for the new user may happen before the reset")
	}
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh b: %v", err)
	}
	for _, d := range e.ws.Documents.List() {
		if d.UserID != b.ID {
			t.Fatalf("document of another user leaked: %+v", d)
		}
	}
}

func TestStaleResponseAfterUserSwitchIsDiscarded(t *testing.T) {
	e := newTestEnv(t, Options{})
	a := e.login(t, "a@example.com")
	e.backend.SeedDocument(a.ID, "a-secret.txt", []byte("alpha"))
	if _, err := e.backend.SeedUser("b@example.com", "secret123", "B", domain.RoleUser); err != nil {
		t.Fatalf("seed b: %v", err)
	}
	ctx := context.Background()

	release := e.backend.Hold(http.MethodGet, "/api/documents/list")
	t.Cleanup(release)
	done := make(chan error, 1)
	go func() { done <- e.ws.Documents.Refresh(ctx) }()
	waitFor(t, func() bool { return e.backend.Calls(http.MethodGet, "/api/documents/list") == 1 })

	if ok, err := e.session.Login(ctx, "b@example.com", "secret123"); !ok || err != nil {
		t.Fatalf("login b: ok=%v err=%v", ok, err)
	}
	release()
	if err := <-done; !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession, got %v", err)
	}
	if e.ws.Documents.Len() != 0 {
		t.Fatalf("documents of the previous user leaked into the new session")
	}
}

func TestLogoutResetsWorkspace(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	e.backend.SeedDocument(u.ID, "a.txt", []byte("alpha"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	e.session.Logout(ctx)
	if e.ws.Documents.Len() != 0 {
		t.Fatalf("expected empty document store after logout")
	}
}

func TestSummarizePatchesOnlySummary(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	doc := e.backend.SeedDocument(u.ID, "a.txt", []byte("alpha beta gamma"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	before, _ := e.ws.Documents.Get(doc.ID)

	sum, err := e.ws.Documents.Summarize(ctx, doc.ID, apiclient.SummaryOptions{})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Style != "executive" || sum.Length != "medium" {
		t.Fatalf("expected default options applied, got %+v", sum)
	}
	after, _ := e.ws.Documents.Get(doc.ID)
	if after.Summary != sum.Content || after.Summary == "" {
		t.Fatalf("summary not stored: %q", after.Summary)
	}
	after.Summary = before.Summary
	if after.Name != before.Name || after.Size != before.Size || after.Status != before.Status || !after.UploadedAt.Equal(before.UploadedAt) {
		t.Fatalf("summarize changed more than the summary: %+v vs %+v", before, after)
	}

	e.backend.Fail(http.MethodPost, "/api/summarize", 1, http.StatusInternalServerError, "SUMMARY_FAILED", "nope")
	if _, err := e.ws.Documents.Summarize(ctx, doc.ID, apiclient.SummaryOptions{}); !apiclient.IsCode(err, "SUMMARY_FAILED") {
		t.Fatalf("expected SUMMARY_FAILED, got %v", err)
	}
}

func TestDownloadStreamsFile(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	doc := e.backend.SeedDocument(u.ID, "a.txt", []byte("file body"))
	var buf bytes.Buffer
	n, name, err := e.ws.Documents.Download(context.Background(), doc.ID, &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != int64(len("file body")) || buf.String() != "file body" || name != "a.txt" {
		t.Fatalf("unexpected download n=%d name=%q body=%q", n, name, buf.String())
	}
}

func TestRenameReplacesDocumentInPlace(t *testing.T) {
	e := newTestEnv(t, Options{})
	u := e.login(t, "a@example.com")
	first := e.backend.SeedDocument(u.ID, "a.txt", []byte("a"))
	e.backend.SeedDocument(u.ID, "b.txt", []byte("b"))
	ctx := context.Background()
	if err := e.ws.Documents.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := e.ws.Documents.Rename(ctx, first.ID, "renamed.txt"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	docs := e.ws.Documents.List()
	if docs[0].ID != first.ID || docs[0].Name != "renamed.txt" || len(docs) != 2 {
		t.Fatalf("unexpected documents after rename %+v", docs)
	}
}

func TestOwnedDropsForeignAndDuplicateDocuments(t *testing.T) {
	d := &Documents{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	got := d.owned("me", []domain.Document{
		{ID: "1", UserID: "me"},
		{ID: "2", UserID: "someone-else"},
		{ID: "1", UserID: "me"},
		{ID: "3"},
	})
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("unexpected filtered documents %+v", got)
	}
}
