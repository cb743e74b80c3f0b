// ABOUTME: Wire types for the CompliAI backend JSON contract
// ABOUTME: Users, token responses, chat requests/responses and conversation history entries

package client

import (
	"encoding/json"
)

// User is the backend's user record. The id arrives as "_id" or "id".
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	Role        string   `json:"role"`
	IsActive    bool     `json:"is_active"`
	Department  string   `json:"department,omitempty"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
	LastLogin   string   `json:"last_login,omitempty"`
}

// UnmarshalJSON accepts both "_id" and "id".
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.MongoID
	}
	return nil
}

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register request body.
type Registration struct {
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Password   string `json:"password"`
	Department string `json:"department,omitempty"`
}

// AuthResult is the outcome of login or register. AccessToken is empty when
// the backend registered the user without issuing a credential.
type AuthResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
	User        User
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        *User  `json:"user"`
}

// Framework is a compliance framework the assistant can focus on.
type Framework string

const (
	FrameworkISO27001 Framework = "ISO 27001"
	FrameworkSOC2     Framework = "SOC 2"
	FrameworkNISTCSF  Framework = "NIST CSF"
	FrameworkPCIDSS   Framework = "PCI DSS"
	FrameworkGDPR     Framework = "GDPR"
	FrameworkHIPAA    Framework = "HIPAA"
)

// Frameworks lists every supported framework.
var Frameworks = []Framework{
	FrameworkISO27001, FrameworkSOC2, FrameworkNISTCSF,
	FrameworkPCIDSS, FrameworkGDPR, FrameworkHIPAA,
}

// ParseFramework matches a framework name case-insensitively, ignoring spaces.
func ParseFramework(s string) (Framework, bool) {
	want := normalizeFramework(s)
	for _, f := range Frameworks {
		if normalizeFramework(string(f)) == want {
			return f, true
		}
	}
	return "", false
}

func normalizeFramework(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '_':
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// Chat modes.
const (
	ModeGeneral  = "general"
	ModeDocument = "document"
	ModeAuto     = "auto"
)

// ChatRequest is the POST /chat/ body.
type ChatRequest struct {
	Message          string    `json:"message"`
	ConversationID   string    `json:"conversation_id,omitempty"`
	FrameworkContext Framework `json:"framework_context,omitempty"`
	DocumentID       string    `json:"document_id,omitempty"`
	Mode             string    `json:"mode,omitempty"`
}

// Source is a reference the assistant cited.
type Source struct {
	Document       string  `json:"document"`
	Page           int     `json:"page,omitempty"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
	Excerpt        string  `json:"excerpt,omitempty"`
}

// ChatResponse is the assistant's reply to a chat request.
type ChatResponse struct {
	Response         string    `json:"response"`
	ConversationID   string    `json:"conversation_id"`
	ConfidenceScore  *float64  `json:"confidence_score,omitempty"`
	Sources          []Source  `json:"sources,omitempty"`
	ClauseReferences []string  `json:"clause_references,omitempty"`
	ControlIDs       []string  `json:"control_ids,omitempty"`
	FrameworkContext Framework `json:"framework_context,omitempty"`
}

// ConversationSummary is one row of GET /chat/conversations.
type ConversationSummary struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title,omitempty"`
	LastMessage    string `json:"last_message"`
	LastResponse   string `json:"last_response,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
	MessageCount   int    `json:"message_count"`
}

// HistoryEntry is one element of a conversation history. The backend returns
// either exchanges (User/Assistant set) or individual messages (Content and
// Sender set); IsExchange tells them apart.
type HistoryEntry struct {
	// exchange shape
	User      *string `json:"user,omitempty"`
	Assistant *string `json:"assistant,omitempty"`

	// message shape
	ID               string   `json:"id,omitempty"`
	Content          string   `json:"content,omitempty"`
	Sender           string   `json:"sender,omitempty"`
	ConversationID   string   `json:"conversation_id,omitempty"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
	Sources          []Source `json:"sources,omitempty"`
	ClauseReferences []string `json:"clause_references,omitempty"`
	ControlIDs       []string `json:"control_ids,omitempty"`

	Timestamp string `json:"timestamp,omitempty"`
}

// IsExchange reports whether the entry is a user/assistant pair.
func (h HistoryEntry) IsExchange() bool {
	return h.User != nil || h.Assistant != nil
}
