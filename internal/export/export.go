// ABOUTME: Transcript export of the active conversation to Markdown and HTML
// ABOUTME: HTML is produced by converting the Markdown with goldmark

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/compliai/internal/conversation"
)

// Format is an export file format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// FormatFor picks a format from a file name. Unknown extensions get Markdown.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatMarkdown
	}
}

// Transcript is what gets exported.
type Transcript struct {
	Title          string
	ConversationID string
	ExportedAt     time.Time
	Messages       []conversation.Message
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/transcript.html"))

// Write renders t in the given format.
func Write(w io.Writer, format Format, t Transcript) error {
	switch format {
	case FormatMarkdown:
		return Markdown(w, t)
	case FormatHTML:
		return HTML(w, t)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// Markdown writes the transcript as a Markdown document.
func Markdown(w io.Writer, t Transcript) error {
	var b strings.Builder

	title := t.Title
	if title == "" {
		title = "CompliAI conversation"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if t.ConversationID != "" {
		fmt.Fprintf(&b, "Conversation `%s`\n\n", t.ConversationID)
	}

	for _, m := range t.Messages {
		who := "You"
		if m.Sender == conversation.SenderAssistant {
			who = "CompliAI"
		}
		if m.Timestamp.IsZero() {
			fmt.Fprintf(&b, "### %s\n\n", who)
		} else {
			fmt.Fprintf(&b, "### %s (%s)\n\n", who, m.Timestamp.UTC().Format("2006-01-02 15:04 UTC"))
		}
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("\n\n")
		writeReferences(&b, m)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeReferences(b *strings.Builder, m conversation.Message) {
	if m.ConfidenceScore != nil {
		fmt.Fprintf(b, "*Confidence: %.0f%%*\n\n", *m.ConfidenceScore*100)
	}
	if len(m.ClauseReferences) > 0 {
		fmt.Fprintf(b, "**Clauses:** %s\n\n", strings.Join(m.ClauseReferences, ", "))
	}
	if len(m.ControlIDs) > 0 {
		fmt.Fprintf(b, "**Controls:** %s\n\n", strings.Join(m.ControlIDs, ", "))
	}
	if len(m.Sources) > 0 {
		b.WriteString("**Sources:**\n\n")
		for _, s := range m.Sources {
			if s.Page > 0 {
				fmt.Fprintf(b, "- %s, p. %d\n", s.Document, s.Page)
			} else {
				fmt.Fprintf(b, "- %s\n", s.Document)
			}
		}
		b.WriteString("\n")
	}
}

// HTML writes the transcript as a standalone HTML page.
func HTML(w io.Writer, t Transcript) error {
	var md bytes.Buffer
	if err := Markdown(&md, t); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := markdown.Convert(md.Bytes(), &body); err != nil {
		return fmt.Errorf("converting markdown: %w", err)
	}

	exported := t.ExportedAt
	if exported.IsZero() {
		exported = time.Now()
	}
	title := t.Title
	if title == "" {
		title = "CompliAI conversation"
	}

	data := struct {
		Title      string
		Body       template.HTML
		ExportedAt string
	}{
		Title: title,
		// goldmark escapes raw HTML in the source unless WithUnsafe is set.
		Body:       template.HTML(body.String()),
		ExportedAt: exported.UTC().Format(time.RFC3339),
	}
	return pageTemplate.Execute(w, data)
}
