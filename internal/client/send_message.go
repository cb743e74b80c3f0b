// ABOUTME: POST /chat/ for sending a message to the compliance assistant
// ABOUTME: Returns the assistant reply with references and the conversation id

package client

import (
	"context"
	"fmt"
	"net/http"
)

// SendMessage sends one user message. An empty ConversationID asks the
// backend to start a new conversation; the reply carries the id it chose.
func (c *Client) SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/", req, &resp, true); err != nil {
		return nil, err
	}
	if resp.ConversationID == "" {
		return nil, fmt.Errorf("%w: chat response missing conversation_id", ErrMalformedResponse)
	}
	return &resp, nil
}
