// ABOUTME: Tests for the interactive prompt against the in-memory backend
// ABOUTME: Scripts stdin and checks the printed transcript, exported files and background redraws

package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/compliai/internal/app"
	"github.com/2389/compliai/internal/auth"
	"github.com/2389/compliai/internal/backend"
	"github.com/2389/compliai/internal/client"
	"github.com/2389/compliai/internal/config"
	"github.com/2389/compliai/internal/store"
)

type replFixture struct {
	backend *backend.Server
	app     *app.App
}

func newReplFixture(t *testing.T) *replFixture {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	issuer, err := auth.NewJWTIssuer([]byte("repl-test-secret-at-least-32-bytes!!"), time.Hour)
	require.NoError(t, err)
	srv := backend.New(issuer, backend.NewUserStore(bcrypt.MinCost), nil)
	_, err = srv.Users().Create(backend.NewUser{
		Email: "admin@compliai.com", Password: "admin123", FullName: "Admin User", Role: backend.RoleAdmin,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cfg := config.Default()
	cfg.Server.URL = ts.URL
	cfg.Session.ValidationInterval = time.Hour
	a := app.NewWithCache(cfg, store.NewMemoryCache(), nil)
	t.Cleanup(func() { _ = a.Close() })
	a.Start(context.Background())

	return &replFixture{backend: srv, app: a}
}

// run feeds script to a fresh prompt and returns everything it printed.
func (f *replFixture) run(t *testing.T, script ...string) string {
	t.Helper()
	var out bytes.Buffer
	r := newREPL(f.app, strings.NewReader(strings.Join(script, "\n")+"\n"), &out)
	f.app.Sessions().SetNavigator(r)
	require.NoError(t, r.Run(context.Background()))
	return out.String()
}

func TestReplLoginChatAndWhoami(t *testing.T) {
	f := newReplFixture(t)

	out := f.run(t,
		"/login admin@compliai.com",
		"admin123",
		"/framework iso27001",
		"How should we write our security policy?",
		"/whoami",
		"/quit",
	)

	assert.Contains(t, out, "Welcome, Admin User.")
	assert.Contains(t, out, "[ISO 27001] > ")
	assert.Contains(t, out, "CompliAI: Guidance for ISO 27001 on: How should we write our security policy?")
	assert.Contains(t, out, "controls A.5.1.1, A.9.1.1, A.12.1.1")
	assert.Contains(t, out, "role: admin")
	assert.True(t, f.app.Sessions().IsAuthenticated())
}

func TestReplBadLoginShowsError(t *testing.T) {
	f := newReplFixture(t)

	out := f.run(t, "/login", "admin@compliai.com", "wrong")

	assert.Contains(t, out, "Invalid email or password")
	assert.False(t, f.app.Sessions().IsAuthenticated())
	assert.NoError(t, f.app.Sessions().LastError(), "error is cleared once shown")
}

func TestReplRequiresLoginToChat(t *testing.T) {
	f := newReplFixture(t)

	out := f.run(t, "hello")

	assert.Contains(t, out, "Not signed in. Use /login first.")
}

func TestReplRegisterValidatesLocally(t *testing.T) {
	f := newReplFixture(t)

	out := f.run(t, "/register", "new@example.com", "New Person", "", "password1", "password2", "y")

	assert.Contains(t, out, "passwords do not match")
	assert.Equal(t, 1, f.backend.Users().Len(), "no account created")
}

func TestReplRegisterSignsIn(t *testing.T) {
	f := newReplFixture(t)

	out := f.run(t, "/register", "new@example.com", "New Person", "Risk", "password1", "password1", "yes")

	assert.Contains(t, out, "Welcome, New Person.")
	assert.Equal(t, "viewer", f.app.Sessions().Session().Role)
}

func TestReplListOpenDeleteAndExport(t *testing.T) {
	f := newReplFixture(t)
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "chat.md")
	htmlPath := filepath.Join(dir, "chat.html")

	out := f.run(t,
		"/login admin@compliai.com", "admin123",
		"What does NIST CSF say about asset inventory?",
		"/new",
		"/list",
		"/open 1",
		"/export "+mdPath,
		"/export "+htmlPath,
		"/delete 1",
		"/list",
	)

	assert.Contains(t, out, " 1. What does NIST CSF say about asset inventory?")
	assert.Contains(t, out, "You: What does NIST CSF say about asset inventory?")
	assert.Contains(t, out, "Deleted.")
	assert.Contains(t, out, "No conversations yet.")

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "ID.AM-1")

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<html")
}

func TestReplSessionExpiryNotice(t *testing.T) {
	f := newReplFixture(t)
	var out bytes.Buffer
	r := newREPL(f.app, strings.NewReader("/login admin@compliai.com\nadmin123\n"), &out)
	f.app.Sessions().SetNavigator(r)
	require.NoError(t, r.Run(context.Background()))
	require.True(t, f.app.Sessions().IsAuthenticated())

	userID := f.app.Sessions().Session().UserID
	require.NoError(t, f.backend.Users().SetActive(userID, false))

	r.handle(context.Background(), "are you there?")
	r.settle()

	assert.Contains(t, out.String(), "Your session has expired. Please sign in again.")
	assert.Contains(t, out.String(), "Signed out. Use /login or /register.")
	assert.False(t, f.app.Sessions().IsAuthenticated())
}

func TestReplSettings(t *testing.T) {
	f := newReplFixture(t)
	r := newREPL(f.app, strings.NewReader(""), &bytes.Buffer{})

	r.handle(context.Background(), "/framework soc 2")
	assert.Equal(t, client.FrameworkSOC2, r.framework)
	r.handle(context.Background(), "/framework off")
	assert.Empty(t, r.framework)

	r.handle(context.Background(), "/mode document")
	assert.Equal(t, client.ModeDocument, r.mode)
	r.handle(context.Background(), "/mode turbo")
	assert.Equal(t, client.ModeDocument, r.mode)

	r.handle(context.Background(), "/document doc-7")
	assert.Equal(t, "doc-7", r.documentID)
	assert.Equal(t, "[doc:doc-7] > ", r.prompt())

	assert.True(t, r.handle(context.Background(), "/quit"))
}

func TestReplSwitchingUsersDropsListing(t *testing.T) {
	f := newReplFixture(t)
	_, err := f.backend.Users().Create(backend.NewUser{
		Email: "bob@example.com", Password: "bob-password", FullName: "Bob Builder",
	})
	require.NoError(t, err)

	out := f.run(t,
		"/login admin@compliai.com", "admin123",
		"What does GDPR require for breach notification?",
		"/list",
		"/login bob@example.com", "bob-password",
		"/open 1",
		"/list",
	)

	assert.Contains(t, out, " 1. What does GDPR require for breach notification?")
	assert.Contains(t, out, "Welcome, Bob Builder.")
	assert.Contains(t, out, "No conversation 1; run /list.")
	assert.Contains(t, out, "No conversations yet.")
	assert.NotContains(t, out, "Signed out.", "switching accounts is not a sign-out")
	assert.Empty(t, f.app.Conversations().Messages())
}

// syncBuffer lets the test read output while the prompt goroutine writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReplRedrawsPromptAfterBackgroundSignOut(t *testing.T) {
	f := newReplFixture(t)
	in, feed := io.Pipe()
	out := &syncBuffer{}
	r := newREPL(f.app, in, out)
	f.app.Sessions().SetNavigator(r)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	_, err := io.WriteString(feed, "/login admin@compliai.com\nadmin123\n/document doc-7\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.HasSuffix(out.String(), "[doc:doc-7] > ")
	}, 5*time.Second, 10*time.Millisecond)

	f.app.Sessions().Logout()

	require.Eventually(t, func() bool {
		return strings.HasSuffix(out.String(), "[doc:doc-7] > \nSigned out. Use /login or /register.\n> ")
	}, 5*time.Second, 10*time.Millisecond, "prompt is redrawn without the previous user's document")

	require.NoError(t, feed.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("prompt did not exit on EOF")
	}
}

func TestReplDocuments(t *testing.T) {
	f := newReplFixture(t)
	path := filepath.Join(t.TempDir(), "access-policy.md")
	require.NoError(t, os.WriteFile(path, []byte(
		"# Access control\n\nPrivileged accounts must use hardware keys issued by the security team.\n"), 0o600))

	out := f.run(t,
		"/login admin@compliai.com", "admin123",
		"/upload "+path+" Access Policy",
		"/documents",
		"/mode document",
		"How are hardware keys issued?",
		"/rmdoc 1",
		"/documents",
		"/document 1",
	)

	assert.Contains(t, out, "Document Access Policy processed successfully")
	assert.Contains(t, out, "*  1. Access Policy")
	assert.Contains(t, out, "CompliAI: From your document Access Policy:")
	assert.Contains(t, out, "hardware keys issued by the security team")
	assert.Contains(t, out, "source: Access Policy")
	assert.Contains(t, out, "Deleted.")
	assert.Contains(t, out, "No documents uploaded.")
	assert.Contains(t, out, "No document 1; run /documents.")
	assert.True(t, strings.HasSuffix(out, "> \n"), "prompt drops the deleted document tag")
	assert.Empty(t, f.backend.Documents().List(f.app.Sessions().Session().UserID))
}

func TestReplDocumentCommandsNeedUploadableFile(t *testing.T) {
	f := newReplFixture(t)
	dir := t.TempDir()
	pdf := filepath.Join(dir, "policy.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o600))

	out := f.run(t,
		"/documents",
		"/login admin@compliai.com", "admin123",
		"/upload",
		"/upload "+filepath.Join(dir, "missing.md"),
		"/upload "+pdf,
		"/rmdoc",
	)

	assert.Contains(t, out, "Not signed in. Use /login first.")
	assert.Contains(t, out, "Usage: /upload <file.md|file.txt> [name]")
	assert.Contains(t, out, "Upload failed:")
	assert.Contains(t, out, `File type ".pdf" not supported. Allowed: .md, .txt`)
	assert.Contains(t, out, "Which document? Give a number from /documents or an id.")
}
