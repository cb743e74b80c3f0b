// ABOUTME: Conversation and message model plus wire-to-model normalization
// ABOUTME: Parses backend timestamps and expands exchange-shaped history

package conversation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/2389/compliai/internal/client"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// titleLength is how much of the last message becomes a fallback title.
const titleLength = 50

// Conversation is one row of the conversation list.
type Conversation struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	LastMessagePreview string    `json:"last_message_preview"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	MessageCount       int       `json:"message_count"`
}

// Message is one chat message. Assistant messages carry the references
// the backend attached to the reply.
type Message struct {
	ID               string          `json:"id"`
	Content          string          `json:"content"`
	Sender           Sender          `json:"sender"`
	Timestamp        time.Time       `json:"timestamp"`
	ConversationID   string          `json:"conversation_id,omitempty"`
	ConfidenceScore  *float64        `json:"confidence_score,omitempty"`
	Sources          []client.Source `json:"sources,omitempty"`
	ClauseReferences []string        `json:"clause_references,omitempty"`
	ControlIDs       []string        `json:"control_ids,omitempty"`
}

// timestampLayouts are tried in order. Zone-less layouts are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads an RFC 3339 or naive ISO-8601 timestamp. Naive
// values are taken as UTC. The result is always in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// firstTimestamp returns the first parseable value, or the zero time.
func firstTimestamp(values ...string) time.Time {
	for _, v := range values {
		if t, err := ParseTimestamp(v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// TitleFromContent derives a conversation title from message text.
func TitleFromContent(content string) string {
	return truncateRunes(strings.TrimSpace(content), titleLength)
}

func conversationFromSummary(s client.ConversationSummary) Conversation {
	title := strings.TrimSpace(s.Title)
	if title == "" {
		title = TitleFromContent(s.LastMessage)
	}
	updated := firstTimestamp(s.UpdatedAt, s.Timestamp, s.CreatedAt)
	created := firstTimestamp(s.CreatedAt)
	if created.IsZero() {
		created = updated
	}
	return Conversation{
		ID:                 s.ConversationID,
		Title:              title,
		LastMessagePreview: s.LastMessage,
		CreatedAt:          created,
		UpdatedAt:          updated,
		MessageCount:       s.MessageCount,
	}
}

// conversationsFromSummaries converts and orders the list newest first.
func conversationsFromSummaries(list []client.ConversationSummary) []Conversation {
	out := make([]Conversation, 0, len(list))
	for _, s := range list {
		if s.ConversationID == "" {
			continue
		}
		out = append(out, conversationFromSummary(s))
	}
	slices.SortStableFunc(out, func(a, b Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out
}

// messagesFromHistory flattens a history into messages. An exchange entry
// becomes a user message followed by an assistant message.
func messagesFromHistory(conversationID string, entries []client.HistoryEntry) []Message {
	out := make([]Message, 0, len(entries)*2)
	for i, e := range entries {
		ts := firstTimestamp(e.Timestamp)

		if e.IsExchange() {
			if e.User != nil {
				out = append(out, Message{
					ID:             fmt.Sprintf("%s-%d-user", conversationID, i),
					Content:        *e.User,
					Sender:         SenderUser,
					Timestamp:      ts,
					ConversationID: conversationID,
				})
			}
			if e.Assistant != nil {
				out = append(out, Message{
					ID:               fmt.Sprintf("%s-%d-assistant", conversationID, i),
					Content:          *e.Assistant,
					Sender:           SenderAssistant,
					Timestamp:        ts,
					ConversationID:   conversationID,
					ConfidenceScore:  e.ConfidenceScore,
					Sources:          e.Sources,
					ClauseReferences: e.ClauseReferences,
					ControlIDs:       e.ControlIDs,
				})
			}
			continue
		}

		id := e.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", conversationID, i)
		}
		convID := e.ConversationID
		if convID == "" {
			convID = conversationID
		}
		out = append(out, Message{
			ID:               id,
			Content:          e.Content,
			Sender:           parseSender(e.Sender),
			Timestamp:        ts,
			ConversationID:   convID,
			ConfidenceScore:  e.ConfidenceScore,
			Sources:          e.Sources,
			ClauseReferences: e.ClauseReferences,
			ControlIDs:       e.ControlIDs,
		})
	}
	return out
}

func parseSender(s string) Sender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "assistant", "ai", "bot":
		return SenderAssistant
	default:
		return SenderUser
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
