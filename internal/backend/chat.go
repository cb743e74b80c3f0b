// ABOUTME: Conversation storage and canned compliance answers for the reference backend
// ABOUTME: Builds replies from a built-in control catalogue and scores them heuristically

package backend

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConversationNotFound is returned for unknown conversations and for
// conversations owned by another user.
var ErrConversationNotFound = errors.New("conversation not found")

// previewLength bounds last_message and last_response in conversation lists.
const previewLength = 100

// documentPassages is how many chunks a document answer quotes.
const documentPassages = 2

// Chat modes.
const (
	ModeGeneral  = "general"
	ModeDocument = "document"
	ModeAuto     = "auto"
)

// knowledge is the control catalogue answers are built from.
var knowledge = map[string][]control{
	"ISO 27001": {
		{"A.5.1.1", "Information security policies shall be defined and approved by management"},
		{"A.9.1.1", "An access control policy shall be established and reviewed"},
		{"A.12.1.1", "Documented operating procedures shall be prepared for all IT systems"},
	},
	"SOC 2": {
		{"CC1.1", "The entity demonstrates a commitment to integrity and ethical values"},
		{"CC2.1", "Management communicates information internally to support control environment"},
		{"CC3.1", "The entity specifies objectives clearly to enable risk identification"},
	},
	"NIST CSF": {
		{"ID.AM-1", "Physical devices and systems within the organization are inventoried"},
		{"PR.AC-1", "Identities and credentials are issued, managed, and revoked"},
		{"DE.AE-1", "A baseline of network operations and expected data flows is established"},
	},
}

// catalogueOrder fixes the order frameworks appear in a general answer.
var catalogueOrder = []string{"ISO 27001", "SOC 2", "NIST CSF"}

type control struct {
	ID          string
	Requirement string
}

// ChatRequest is the POST /chat/ body.
type ChatRequest struct {
	Message          string `json:"message"`
	ConversationID   string `json:"conversation_id,omitempty"`
	FrameworkContext string `json:"framework_context,omitempty"`
	DocumentID       string `json:"document_id,omitempty"`
	Mode             string `json:"mode,omitempty"`
}

// Source is a cited reference.
type Source struct {
	Document       string  `json:"document"`
	Page           int     `json:"page"`
	RelevanceScore float64 `json:"relevance_score"`
	Excerpt        string  `json:"excerpt"`
}

// ChatResponse is the reply to POST /chat/.
type ChatResponse struct {
	Response         string   `json:"response"`
	ConversationID   string   `json:"conversation_id"`
	ClauseReferences []string `json:"clause_references"`
	ControlIDs       []string `json:"control_ids"`
	ConfidenceScore  float64  `json:"confidence_score"`
	Sources          []Source `json:"sources"`
	FrameworkContext string   `json:"framework_context,omitempty"`
}

// Exchange is one stored question and answer.
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
	Timestamp string `json:"timestamp"`
}

// Summary is one row of GET /chat/conversations.
type Summary struct {
	ConversationID string `json:"conversation_id"`
	LastMessage    string `json:"last_message"`
	LastResponse   string `json:"last_response"`
	Timestamp      string `json:"timestamp"`
	MessageCount   int    `json:"message_count"`
}

type exchange struct {
	user      string
	assistant string
	at        time.Time
}

type thread struct {
	userID    string
	exchanges []exchange
}

// ChatService stores conversations per user and produces answers,
// quoting the user's documents in document mode.
type ChatService struct {
	docs    *DocumentStore
	mu      sync.Mutex
	threads map[string]*thread
	now     func() time.Time
}

// NewChatService creates an empty service reading documents from docs.
func NewChatService(docs *DocumentStore) *ChatService {
	return &ChatService{
		docs:    docs,
		threads: make(map[string]*thread),
		now:     time.Now,
	}
}

// Process answers a message and appends the exchange to its conversation,
// creating the conversation when ConversationID is empty or unknown.
// A conversation owned by another user is reported as not found. A document
// id is consulted unless the mode is general; a document the user does not
// own yields ErrDocumentNotFound.
func (c *ChatService) Process(userID string, req ChatRequest) (ChatResponse, error) {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	answer := composeAnswer(req.Message, req.FrameworkContext)
	cited := []Source{}
	if req.DocumentID != "" && req.Mode != ModeGeneral {
		name, passages, err := c.docs.Search(req.DocumentID, userID, req.Message, documentPassages)
		if err != nil {
			return ChatResponse{}, err
		}
		answer = quoteDocument(name, passages) + answer
		for _, p := range passages {
			cited = append(cited, Source{
				Document:       name,
				Page:           p.index + 1,
				RelevanceScore: p.score,
				Excerpt:        excerpt(p.text),
			})
		}
	}
	clauses, controls := extractReferences(answer)

	c.mu.Lock()
	t, ok := c.threads[conversationID]
	if ok && t.userID != userID {
		c.mu.Unlock()
		return ChatResponse{}, ErrConversationNotFound
	}
	if !ok {
		t = &thread{userID: userID}
		c.threads[conversationID] = t
	}
	t.exchanges = append(t.exchanges, exchange{user: req.Message, assistant: answer, at: c.now()})
	c.mu.Unlock()

	return ChatResponse{
		Response:         answer,
		ConversationID:   conversationID,
		ClauseReferences: clauses,
		ControlIDs:       controls,
		ConfidenceScore:  confidenceScore(answer),
		Sources:          append(cited, sourcesFor(clauses, controls)...),
		FrameworkContext: req.FrameworkContext,
	}, nil
}

// List returns the user's conversations, most recently active first.
func (c *ChatService) List(userID string) []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	type row struct {
		s  Summary
		at time.Time
	}
	rows := make([]row, 0)
	for id, t := range c.threads {
		if t.userID != userID || len(t.exchanges) == 0 {
			continue
		}
		last := t.exchanges[len(t.exchanges)-1]
		rows = append(rows, row{
			s: Summary{
				ConversationID: id,
				LastMessage:    truncate(last.user, previewLength),
				LastResponse:   truncate(last.assistant, previewLength),
				Timestamp:      last.at.UTC().Format(naiveISO),
				MessageCount:   len(t.exchanges),
			},
			at: last.at,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].at.Equal(rows[j].at) {
			return rows[i].s.ConversationID < rows[j].s.ConversationID
		}
		return rows[i].at.After(rows[j].at)
	})

	out := make([]Summary, len(rows))
	for i, r := range rows {
		out[i] = r.s
	}
	return out
}

// History returns the exchanges of one of the user's conversations.
func (c *ChatService) History(conversationID, userID string) ([]Exchange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.threads[conversationID]
	if !ok || t.userID != userID {
		return nil, ErrConversationNotFound
	}
	out := make([]Exchange, len(t.exchanges))
	for i, e := range t.exchanges {
		out[i] = Exchange{User: e.user, Assistant: e.assistant, Timestamp: e.at.UTC().Format(naiveISO)}
	}
	return out, nil
}

// Delete removes one of the user's conversations.
func (c *ChatService) Delete(conversationID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.threads[conversationID]
	if !ok || t.userID != userID {
		return ErrConversationNotFound
	}
	delete(c.threads, conversationID)
	return nil
}

// composeAnswer builds a markdown answer from the catalogue. A known
// framework focuses the answer; otherwise frameworks named in the question
// are used, falling back to the whole catalogue.
func composeAnswer(question, framework string) string {
	frameworks := selectFrameworks(question, framework)

	var b strings.Builder
	topic := strings.TrimSpace(question)
	if framework != "" {
		fmt.Fprintf(&b, "Guidance for %s on: %s\n\n", framework, topic)
	} else {
		fmt.Fprintf(&b, "Compliance guidance on: %s\n\n", topic)
	}

	if len(frameworks) == 0 {
		fmt.Fprintf(&b, "The built-in catalogue has no %s controls. General practice:\n\n", framework)
	} else {
		b.WriteString("Relevant requirements:\n\n")
		for _, name := range frameworks {
			for _, ctl := range knowledge[name] {
				fmt.Fprintf(&b, "- %s %s: %s\n", name, ctl.ID, ctl.Requirement)
			}
		}
		b.WriteString("\nImplementation steps:\n\n")
	}

	b.WriteString("1. Establish a documented policy and assign an owner.\n")
	b.WriteString("2. Implement the supporting procedures and technical safeguards.\n")
	b.WriteString("3. Maintain evidence and review effectiveness at least annually.\n")
	return b.String()
}

// quoteDocument introduces an answer with the matching document passages.
func quoteDocument(name string, passages []passage) string {
	var b strings.Builder
	if len(passages) == 0 {
		fmt.Fprintf(&b, "No passage in %s matches this question.\n\n", name)
		return b.String()
	}
	fmt.Fprintf(&b, "From your document %s:\n\n", name)
	for _, p := range passages {
		fmt.Fprintf(&b, "> %s (section %d)\n\n", excerpt(p.text), p.index+1)
	}
	return b.String()
}

func selectFrameworks(question, framework string) []string {
	if framework != "" {
		for _, name := range catalogueOrder {
			if strings.EqualFold(name, framework) {
				return []string{name}
			}
		}
		return nil
	}

	q := strings.ToLower(question)
	var picked []string
	for _, name := range catalogueOrder {
		key := strings.ToLower(strings.Fields(name)[0])
		if strings.Contains(q, key) {
			picked = append(picked, name)
		}
	}
	if len(picked) == 0 {
		return catalogueOrder
	}
	return picked
}

var (
	clausePattern  = regexp.MustCompile(`(?:ISO 27001 A\.\d+(?:\.\d+)*|SOC 2 CC\d+(?:\.\d+)?|NIST CSF [A-Z]{2}\.[A-Z]{2}-\d+)`)
	controlPattern = regexp.MustCompile(`\b(?:A\.\d+(?:\.\d+)+|CC\d+\.\d+|[A-Z]{2}\.[A-Z]{2}-\d+)\b`)
)

// extractReferences finds framework clause references and bare control ids,
// deduplicated in order of appearance.
func extractReferences(text string) (clauses, controls []string) {
	return uniqueMatches(clausePattern, text), uniqueMatches(controlPattern, text)
}

func uniqueMatches(re *regexp.Regexp, text string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, m := range re.FindAllString(text, -1) {
		m = strings.TrimSpace(m)
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// confidenceScore rates an answer: 0.5 base, +0.2 for framework vocabulary,
// +0.1 each for length over 200, list structure and implementation verbs.
func confidenceScore(answer string) float64 {
	lower := strings.ToLower(answer)
	score := 0.5
	if containsAny(lower, "iso", "soc", "nist", "control", "clause") {
		score += 0.2
	}
	if len(answer) > 200 {
		score += 0.1
	}
	if containsAny(answer, "1.", "2.", "•", "-") {
		score += 0.1
	}
	if containsAny(lower, "implement", "ensure", "establish", "maintain") {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// sourcesFor cites up to three clauses and two controls.
func sourcesFor(clauses, controls []string) []Source {
	out := []Source{}
	for _, ref := range clauses[:min(3, len(clauses))] {
		out = append(out, Source{
			Document:       "ISO 27001 Standard - " + ref,
			Page:           1,
			RelevanceScore: 0.9,
			Excerpt:        fmt.Sprintf("This clause %s covers the requirements for...", ref),
		})
	}
	for _, ctl := range controls[:min(2, len(controls))] {
		out = append(out, Source{
			Document:       "Control Framework - " + ctl,
			Page:           1,
			RelevanceScore: 0.85,
			Excerpt:        fmt.Sprintf("Control %s requires implementation of...", ctl),
		})
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
