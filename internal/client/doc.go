// Package client is the HTTP client for the CompliAI backend.
//
// # Overview
//
// Client speaks the backend's JSON contract: authentication under /auth and
// chat and documents under /chat. Every method takes a context and returns typed results
// or an error; nothing here retries or caches.
//
// # Authentication
//
// Authenticated calls read the bearer credential from a TokenSource at
// request time, so the session layer can swap or clear the credential without
// rebuilding the client:
//
//	c := client.New("http://localhost:8000")
//	c.SetTokenSource(manager)
//
// # Errors
//
// Non-2xx responses are returned as *APIError carrying the status code and
// the backend's "detail" message. 401, 403 and 404 unwrap to ErrUnauthorized,
// ErrForbidden and ErrNotFound so callers can branch with errors.Is.
// A 2xx body that does not match the expected shape yields ErrMalformedResponse.
package client
