// ABOUTME: Conversation list, history retrieval and deletion under /chat/conversations
// ABOUTME: Returns wire-level summaries and history entries for the conversation store to normalize

package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// ListConversations returns the caller's conversation summaries.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var list []ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/chat/conversations", nil, &list, true); err != nil {
		return nil, err
	}
	return list, nil
}

// GetConversationHistory returns the stored history of one conversation.
func (c *Client) GetConversationHistory(ctx context.Context, conversationID string) ([]HistoryEntry, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id required")
	}
	var entries []HistoryEntry
	path := "/chat/conversations/" + url.PathEscape(conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &entries, true); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteConversation removes a conversation on the backend.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return errors.New("conversation id required")
	}
	path := "/chat/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, true)
}
