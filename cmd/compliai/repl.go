// ABOUTME: Interactive prompt driving the session manager and conversation store
// ABOUTME: Slash commands for auth, conversations and documents; plain lines are sent as messages

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/2389/compliai/internal/app"
	"github.com/2389/compliai/internal/client"
	"github.com/2389/compliai/internal/conversation"
	"github.com/2389/compliai/internal/events"
	"github.com/2389/compliai/internal/export"
	"github.com/2389/compliai/internal/session"
)

const helpText = `Commands:
  /login [email]          Sign in
  /register               Create an account
  /logout                 Sign out and clear local data
  /whoami                 Show the signed-in user
  /new                    Start a new conversation
  /list                   List conversations
  /open <n|id>            Load a conversation
  /delete <n|id>          Delete a conversation
  /framework [name|off]   Focus answers on ISO 27001, SOC 2, NIST CSF, PCI DSS, GDPR or HIPAA
  /mode [general|document|auto]
  /documents              List uploaded documents
  /upload <file> [name]   Upload a .md or .txt document and select it
  /document [n|id|off]    Ask about an uploaded document
  /rmdoc <n|id>           Delete an uploaded document
  /export <file>          Save the conversation (.md or .html)
  /help                   Show this help
  /quit                   Exit
Anything else is sent as a message.`

var (
	errorColor  = color.New(color.FgRed)
	noticeColor = color.New(color.FgYellow)
	dimColor    = color.New(color.FgHiBlack)
	userColor   = color.New(color.FgGreen, color.Bold)
	aiColor     = color.New(color.FgCyan, color.Bold)
)

type lineResult struct {
	line string
	err  error
}

type repl struct {
	app  *app.App
	out  io.Writer
	outM sync.Mutex

	// lines are read one at a time on request so a password prompt can take
	// over the terminal between reads.
	req     chan struct{}
	resp    chan lineResult
	pending bool

	readPassword func() (string, error)
	now          func() time.Time

	// changes and signOuts are only read on the prompt goroutine. atPrompt
	// is set while it waits for a command line.
	changes  <-chan conversation.Change
	signOuts chan string
	atPrompt bool

	framework  client.Framework
	mode       string
	documentID string
	listed     []conversation.Conversation
	docs       []client.Document
}

func newREPL(a *app.App, in io.Reader, out io.Writer) *repl {
	r := &repl{
		app:      a,
		out:      out,
		req:      make(chan struct{}),
		resp:     make(chan lineResult),
		signOuts: make(chan string, 4),
		now:      time.Now,
	}
	go func() {
		sc := bufio.NewScanner(in)
		for range r.req {
			if sc.Scan() {
				r.resp <- lineResult{line: sc.Text()}
				continue
			}
			err := sc.Err()
			if err == nil {
				err = io.EOF
			}
			r.resp <- lineResult{err: err}
		}
	}()
	r.readPassword = func() (string, error) { return r.readLine(context.Background()) }
	return r
}

func (r *repl) readLine(ctx context.Context) (string, error) {
	if !r.pending {
		r.req <- struct{}{}
		r.pending = true
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res := <-r.resp:
			r.pending = false
			return res.line, res.err
		case change, ok := <-r.changes:
			if !ok {
				r.changes = nil
				continue
			}
			r.applyChange(change)
		case notice := <-r.signOuts:
			// The session ended in the background while we waited for input.
			r.printf(nil, "\n")
			r.signedOut(notice)
			if r.atPrompt {
				r.printf(nil, "%s", r.prompt())
			}
		}
	}
}

func (r *repl) printf(c *color.Color, format string, args ...any) {
	r.outM.Lock()
	defer r.outM.Unlock()
	if c == nil {
		fmt.Fprintf(r.out, format, args...)
		return
	}
	c.Fprintf(r.out, format, args...)
}

// ToSignIn is called by the session manager when the session ends. It may
// run on the validator goroutine, so the prompt loop does the printing.
func (r *repl) ToSignIn(notice string) {
	select {
	case r.signOuts <- notice:
	default:
	}
}

func (r *repl) signedOut(notice string) {
	r.applyPendingChanges()
	if notice != "" {
		r.printf(noticeColor, "%s\n", notice)
	}
	r.printf(dimColor, "Signed out. Use /login or /register.\n")
}

// applyChange keeps listings that index into store state in step with it.
func (r *repl) applyChange(change conversation.Change) {
	switch change.Kind {
	case conversation.ChangeCleared:
		r.listed = nil
		r.docs = nil
		r.documentID = ""
	case conversation.ChangeConversations:
		if change.ConversationID != "" {
			r.listed = nil
		}
	}
}

func (r *repl) applyPendingChanges() {
	for r.changes != nil {
		select {
		case change, ok := <-r.changes:
			if !ok {
				r.changes = nil
				return
			}
			r.applyChange(change)
		default:
			return
		}
	}
}

// settle handles whatever the last command left queued.
func (r *repl) settle() {
	r.applyPendingChanges()
	for {
		select {
		case notice := <-r.signOuts:
			r.signedOut(notice)
		default:
			return
		}
	}
}

// Run reads commands until /quit, EOF or ctx is cancelled.
func (r *repl) Run(ctx context.Context) error {
	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	r.changes = r.app.Conversations().Watch(watchCtx)

	if s := r.app.Sessions().Session(); s.IsAuthenticated {
		r.printf(dimColor, "Signed in as %s. Type /help for commands.\n", s.Email)
	} else {
		r.printf(dimColor, "Not signed in. Use /login or /register; /help lists commands.\n")
	}

	for {
		r.settle()
		r.printf(nil, "%s", r.prompt())
		r.atPrompt = true
		line, err := r.readLine(ctx)
		r.atPrompt = false
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				r.printf(nil, "\n")
				return nil
			}
			return err
		}
		if quit := r.handle(ctx, strings.TrimSpace(line)); quit {
			return nil
		}
	}
}

func (r *repl) prompt() string {
	var tags []string
	if r.framework != "" {
		tags = append(tags, string(r.framework))
	}
	if r.documentID != "" {
		tags = append(tags, "doc:"+r.documentID)
	}
	if len(tags) == 0 {
		return "> "
	}
	return "[" + strings.Join(tags, " ") + "] > "
}

// handle runs one input line and reports whether the user asked to quit.
func (r *repl) handle(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		r.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		r.printf(nil, "%s\n", helpText)
	case "/login":
		r.login(ctx, arg)
	case "/register":
		r.register(ctx)
	case "/logout":
		r.app.Sessions().Logout()
	case "/whoami":
		r.whoami()
	case "/new":
		r.app.Conversations().CreateNewConversation()
		r.printf(dimColor, "Started a new conversation.\n")
	case "/list":
		r.list(ctx)
	case "/open":
		r.open(ctx, arg)
	case "/delete":
		r.delete(ctx, arg)
	case "/framework":
		r.setFramework(arg)
	case "/mode":
		r.setMode(arg)
	case "/documents":
		r.listDocuments(ctx)
	case "/upload":
		r.upload(ctx, arg)
	case "/document":
		r.setDocument(arg)
	case "/rmdoc":
		r.deleteDocument(ctx, arg)
	case "/export":
		r.export(arg)
	default:
		r.printf(errorColor, "Unknown command %s. Type /help.\n", cmd)
	}
	return false
}

func (r *repl) ask(ctx context.Context, label string) (string, error) {
	r.printf(nil, "%s: ", label)
	line, err := r.readLine(ctx)
	return strings.TrimSpace(line), err
}

func (r *repl) askPassword(label string) (string, error) {
	r.printf(nil, "%s: ", label)
	return r.readPassword()
}

func (r *repl) login(ctx context.Context, email string) {
	var err error
	if email == "" {
		if email, err = r.ask(ctx, "Email"); err != nil {
			return
		}
	}
	password, err := r.askPassword("Password")
	if err != nil {
		return
	}

	sessions := r.app.Sessions()
	if !sessions.Login(ctx, email, password) {
		r.reportSessionError()
		return
	}
	s := sessions.Session()
	r.printf(noticeColor, "Welcome, %s.\n", s.DisplayName)
	if !r.app.Conversations().LoadConversations(ctx) {
		r.reportChatError()
	}
}

func (r *repl) register(ctx context.Context) {
	var req session.RegisterRequest
	var err error
	if req.Email, err = r.ask(ctx, "Email"); err != nil {
		return
	}
	if req.FullName, err = r.ask(ctx, "Full name"); err != nil {
		return
	}
	if req.Department, err = r.ask(ctx, "Department (optional)"); err != nil {
		return
	}
	if req.Password, err = r.askPassword("Password"); err != nil {
		return
	}
	if req.ConfirmPassword, err = r.askPassword("Confirm password"); err != nil {
		return
	}
	accept, err := r.ask(ctx, "Accept the terms and conditions? [y/N]")
	if err != nil {
		return
	}
	req.AcceptTerms = strings.EqualFold(accept, "y") || strings.EqualFold(accept, "yes")

	sessions := r.app.Sessions()
	if !sessions.Register(ctx, req) {
		r.reportSessionError()
		return
	}
	if notice := sessions.Notice(); notice != "" {
		r.printf(noticeColor, "%s\n", notice)
		sessions.ClearError()
		return
	}
	r.printf(noticeColor, "Welcome, %s.\n", sessions.Session().DisplayName)
}

func (r *repl) whoami() {
	s := r.app.Sessions().Session()
	if !s.IsAuthenticated {
		r.printf(dimColor, "Not signed in.\n")
		return
	}
	r.printf(nil, "%s <%s>\n", s.DisplayName, s.Email)
	r.printf(dimColor, "  role: %s\n", s.Role)
	if s.Department != "" {
		r.printf(dimColor, "  department: %s\n", s.Department)
	}
	r.printf(dimColor, "  permissions: %s\n", strings.Join(s.Permissions.List(), ", "))
}

func (r *repl) requireSession() bool {
	if r.app.Sessions().IsAuthenticated() {
		return true
	}
	r.printf(errorColor, "Not signed in. Use /login first.\n")
	return false
}

func (r *repl) send(ctx context.Context, text string) {
	if !r.requireSession() {
		return
	}
	store := r.app.Conversations()
	ok := store.SendMessage(ctx, text, conversation.SendOptions{
		Framework:  r.framework,
		DocumentID: r.documentID,
		Mode:       r.mode,
	})
	if !ok {
		r.reportChatError()
		return
	}

	msgs := store.Messages()
	if len(msgs) == 0 {
		return
	}
	if last := msgs[len(msgs)-1]; last.Sender == conversation.SenderAssistant {
		r.printMessage(last)
	}
}

func (r *repl) printMessage(m conversation.Message) {
	if m.Sender == conversation.SenderUser {
		r.printf(userColor, "You: ")
	} else {
		r.printf(aiColor, "CompliAI: ")
	}
	r.printf(nil, "%s\n", strings.TrimRight(m.Content, "\n"))

	var meta []string
	if m.ConfidenceScore != nil {
		meta = append(meta, fmt.Sprintf("confidence %.2f", *m.ConfidenceScore))
	}
	if len(m.ControlIDs) > 0 {
		meta = append(meta, "controls "+strings.Join(m.ControlIDs, ", "))
	}
	if len(meta) > 0 {
		r.printf(dimColor, "  %s\n", strings.Join(meta, " | "))
	}
	for _, src := range m.Sources {
		r.printf(dimColor, "  source: %s\n", src.Document)
	}
}

func (r *repl) list(ctx context.Context) {
	if !r.requireSession() {
		return
	}
	store := r.app.Conversations()
	if !store.LoadConversations(ctx) {
		r.reportChatError()
		return
	}
	r.listed = store.Conversations()
	if len(r.listed) == 0 {
		r.printf(dimColor, "No conversations yet.\n")
		return
	}
	active := store.ActiveConversationID()
	for i, c := range r.listed {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		r.printf(nil, "%s %2d. %s", marker, i+1, c.Title)
		r.printf(dimColor, "  (%d messages, %s)\n", c.MessageCount, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
}

// resolve turns "/open 2" into the id of the second listed conversation.
func (r *repl) resolve(arg string) (string, bool) {
	if arg == "" {
		r.printf(errorColor, "Which conversation? Give a number from /list or an id.\n")
		return "", false
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(r.listed) {
			r.printf(errorColor, "No conversation %d; run /list.\n", n)
			return "", false
		}
		return r.listed[n-1].ID, true
	}
	return arg, true
}

func (r *repl) open(ctx context.Context, arg string) {
	if !r.requireSession() {
		return
	}
	id, ok := r.resolve(arg)
	if !ok {
		return
	}
	store := r.app.Conversations()
	if !store.LoadConversationHistory(ctx, id) {
		r.reportChatError()
		return
	}
	for _, m := range store.Messages() {
		r.printMessage(m)
	}
}

func (r *repl) delete(ctx context.Context, arg string) {
	if !r.requireSession() {
		return
	}
	id, ok := r.resolve(arg)
	if !ok {
		return
	}
	if !r.app.Conversations().DeleteConversation(ctx, id) {
		r.reportChatError()
		return
	}
	r.printf(dimColor, "Deleted.\n")
}

func (r *repl) setFramework(arg string) {
	switch arg {
	case "":
		if r.framework == "" {
			r.printf(dimColor, "No framework focus.\n")
		} else {
			r.printf(dimColor, "Framework: %s\n", r.framework)
		}
	case "off", "none":
		r.framework = ""
	default:
		f, ok := client.ParseFramework(arg)
		if !ok {
			r.printf(errorColor, "Unknown framework %q.\n", arg)
			return
		}
		r.framework = f
	}
}

func (r *repl) setMode(arg string) {
	switch arg {
	case "":
		mode := r.mode
		if mode == "" {
			mode = client.ModeAuto
		}
		r.printf(dimColor, "Mode: %s\n", mode)
	case client.ModeGeneral, client.ModeDocument, client.ModeAuto:
		r.mode = arg
	default:
		r.printf(errorColor, "Mode must be general, document or auto.\n")
	}
}

func (r *repl) setDocument(arg string) {
	switch arg {
	case "":
		if r.documentID == "" {
			r.printf(dimColor, "No document selected.\n")
		} else {
			r.printf(dimColor, "Document: %s\n", r.documentID)
		}
	case "off", "none":
		r.documentID = ""
	default:
		if id, ok := r.resolveDocument(arg); ok {
			r.documentID = id
		}
	}
}

func (r *repl) listDocuments(ctx context.Context) {
	if !r.requireSession() {
		return
	}
	docs, err := r.app.Client().ListDocuments(ctx)
	if err != nil {
		r.reportDocumentError(err)
		return
	}
	r.docs = docs
	if len(docs) == 0 {
		r.printf(dimColor, "No documents uploaded.\n")
		return
	}
	for i, d := range docs {
		marker := " "
		if d.ID == r.documentID {
			marker = "*"
		}
		uploaded := d.UploadedAt
		if ts, err := conversation.ParseTimestamp(d.UploadedAt); err == nil {
			uploaded = ts.Local().Format("2006-01-02 15:04")
		}
		r.printf(nil, "%s %2d. %s", marker, i+1, d.Name)
		r.printf(dimColor, "  (%d sections, %s)\n", d.ChunksCount, uploaded)
	}
}

func (r *repl) upload(ctx context.Context, arg string) {
	if !r.requireSession() {
		return
	}
	path, name, _ := strings.Cut(arg, " ")
	if path == "" {
		r.printf(errorColor, "Usage: /upload <file.md|file.txt> [name]\n")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		r.printf(errorColor, "Upload failed: %v\n", err)
		return
	}
	defer f.Close()

	res, err := r.app.Client().UploadDocument(ctx, filepath.Base(path), f, strings.TrimSpace(name))
	if err != nil {
		r.reportDocumentError(err)
		return
	}
	r.docs = nil
	r.documentID = res.DocumentID
	r.printf(noticeColor, "%s\n", res.Message)
	r.printf(dimColor, "  %d sections, %d controls found. Questions now consult this document.\n",
		res.ChunksCreated, res.ControlsIdentified)
}

func (r *repl) deleteDocument(ctx context.Context, arg string) {
	if !r.requireSession() {
		return
	}
	if arg == "" {
		r.printf(errorColor, "Which document? Give a number from /documents or an id.\n")
		return
	}
	id, ok := r.resolveDocument(arg)
	if !ok {
		return
	}
	if err := r.app.Client().DeleteDocument(ctx, id); err != nil {
		r.reportDocumentError(err)
		return
	}
	r.docs = nil
	if r.documentID == id {
		r.documentID = ""
	}
	r.printf(dimColor, "Deleted.\n")
}

// resolveDocument turns "/document 2" into the id of the second listed document.
func (r *repl) resolveDocument(arg string) (string, bool) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg, true
	}
	if n < 1 || n > len(r.docs) {
		r.printf(errorColor, "No document %d; run /documents.\n", n)
		return "", false
	}
	return r.docs[n-1].ID, true
}

// reportDocumentError prints err. A rejected credential is handed to the
// session manager like any other unauthorized response.
func (r *repl) reportDocumentError(err error) {
	if errors.Is(err, client.ErrUnauthorized) {
		r.app.Bus().Emit(events.KindUnauthorized, nil)
		return
	}
	r.printf(errorColor, "%v\n", err)
}

func (r *repl) export(path string) {
	if path == "" {
		r.printf(errorColor, "Usage: /export <file.md|file.html>\n")
		return
	}
	store := r.app.Conversations()
	msgs := store.Messages()
	if len(msgs) == 0 {
		r.printf(errorColor, "Nothing to export.\n")
		return
	}

	t := export.Transcript{
		Title:          r.titleFor(store.ActiveConversationID(), msgs),
		ConversationID: store.ActiveConversationID(),
		ExportedAt:     r.now(),
		Messages:       msgs,
	}

	f, err := os.Create(path)
	if err != nil {
		r.printf(errorColor, "Export failed: %v\n", err)
		return
	}
	werr := export.Write(f, export.FormatFor(path), t)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		r.printf(errorColor, "Export failed: %v\n", werr)
		return
	}
	r.printf(dimColor, "Wrote %s\n", path)
}

func (r *repl) titleFor(id string, msgs []conversation.Message) string {
	for _, c := range r.app.Conversations().Conversations() {
		if c.ID == id && c.Title != "" {
			return c.Title
		}
	}
	return conversation.TitleFromContent(msgs[0].Content)
}

func (r *repl) reportSessionError() {
	sessions := r.app.Sessions()
	if err := sessions.LastError(); err != nil {
		r.printf(errorColor, "%v\n", err)
	}
	sessions.ClearError()
}

func (r *repl) reportChatError() {
	store := r.app.Conversations()
	if err := store.LastError(); err != nil {
		r.printf(errorColor, "%v\n", err)
	}
	store.ClearError()
}
