// ABOUTME: Document upload, listing, lookup and deletion under /chat/documents
// ABOUTME: Uploads are sent as multipart forms; uploaded ids feed document-mode chat requests

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
)

// Document is an uploaded document.
type Document struct {
	ID               string   `json:"document_id"`
	Name             string   `json:"name"`
	UploadedAt       string   `json:"uploaded_at"`
	ChunksCount      int      `json:"chunks_count"`
	Status           string   `json:"status"`
	ClauseReferences []string `json:"clause_references,omitempty"`
	ControlIDs       []string `json:"control_ids,omitempty"`
}

// UploadResult is the backend's report on a processed upload.
type UploadResult struct {
	DocumentID         string `json:"document_id"`
	Status             string `json:"status"`
	ChunksCreated      int    `json:"chunks_created"`
	ControlsIdentified int    `json:"controls_identified"`
	Message            string `json:"message"`
}

// UploadDocument sends content as filename. name overrides the display name
// when non-empty.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader, name string) (*UploadResult, error) {
	if filename == "" {
		return nil, errors.New("filename required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		if err := mw.WriteField("document_name", name); err != nil {
			return nil, fmt.Errorf("encoding upload: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}

	var res UploadResult
	if err := c.send(ctx, http.MethodPost, "/chat/documents/upload", &body, mw.FormDataContentType(), &res, true); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListDocuments returns the caller's documents.
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := c.do(ctx, http.MethodGet, "/chat/documents", nil, &docs, true); err != nil {
		return nil, err
	}
	return docs, nil
}

// GetDocument returns one document's details.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	if documentID == "" {
		return nil, errors.New("document id required")
	}
	var doc Document
	if err := c.do(ctx, http.MethodGet, "/chat/documents/"+url.PathEscape(documentID), nil, &doc, true); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes a document on the backend.
func (c *Client) DeleteDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.New("document id required")
	}
	return c.do(ctx, http.MethodDelete, "/chat/documents/"+url.PathEscape(documentID), nil, nil, true)
}
