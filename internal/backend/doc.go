// Package backend serves the CompliAI HTTP contract from memory.
//
// It is not a compliance engine. Users live in a map with bcrypt password
// hashes, tokens are HS256 JWTs from internal/auth, and chat answers are
// assembled from a small built-in knowledge base of ISO 27001, SOC 2 and
// NIST CSF controls. Everything is lost on restart.
//
// Routes:
//
//	POST   /auth/login
//	POST   /auth/register
//	GET    /auth/me
//	POST   /chat/
//	GET    /chat/conversations
//	GET    /chat/conversations/{id}
//	DELETE /chat/conversations/{id}
//	POST   /chat/documents/upload
//	GET    /chat/documents
//	GET    /chat/documents/{id}
//	DELETE /chat/documents/{id}
//
// Uploaded .txt and .md documents are split into overlapping chunks. A chat
// request naming a document_id (outside general mode) quotes the chunks that
// share the most words with the question.
//
// Failures are JSON {"detail": "..."} bodies. Chat routes require the admin
// role or the chat_access permission.
package backend
