// ABOUTME: Per-user document store backing document-mode chat in the reference backend
// ABOUTME: Splits uploads into overlapping chunks and ranks them by keyword overlap with a question

package backend

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Document errors
var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrDocumentTooLarge  = errors.New("document too large")
	ErrDocumentLimit     = errors.New("document limit reached")
	ErrUnreadableContent = errors.New("document is not valid UTF-8 text")
)

// Upload limits.
const (
	MaxDocumentSize     = 10 << 20
	MaxDocumentsPerUser = 50
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
	excerptRunes = 300
)

// allowedExtensions are the text formats the store can read.
var allowedExtensions = []string{".md", ".txt"}

// DocumentInfo describes an uploaded document.
type DocumentInfo struct {
	DocumentID       string   `json:"document_id"`
	Name             string   `json:"name"`
	UploadedAt       string   `json:"uploaded_at"`
	ChunksCount      int      `json:"chunks_count"`
	Status           string   `json:"status"`
	ClauseReferences []string `json:"clause_references"`
	ControlIDs       []string `json:"control_ids"`
}

// UploadResult is the reply to POST /chat/documents/upload.
type UploadResult struct {
	DocumentID         string `json:"document_id"`
	Status             string `json:"status"`
	ChunksCreated      int    `json:"chunks_created"`
	ControlsIdentified int    `json:"controls_identified"`
	Message            string `json:"message"`
}

type document struct {
	id         string
	name       string
	userID     string
	uploadedAt time.Time
	chunks     []string
	clauses    []string
	controls   []string
}

func (d *document) info() DocumentInfo {
	return DocumentInfo{
		DocumentID:       d.id,
		Name:             d.name,
		UploadedAt:       d.uploadedAt.UTC().Format(naiveISO),
		ChunksCount:      len(d.chunks),
		Status:           "processed",
		ClauseReferences: d.clauses,
		ControlIDs:       d.controls,
	}
}

// passage is a chunk matched against a question.
type passage struct {
	index int
	text  string
	score float64
}

// DocumentStore keeps uploaded documents in memory, per user.
type DocumentStore struct {
	mu   sync.Mutex
	docs map[string]*document
	now  func() time.Time
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]*document),
		now:  time.Now,
	}
}

// SupportedExtension reports whether filename has a readable extension.
func SupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Add stores content for userID. filename decides the format; name is the
// display name and defaults to filename.
func (s *DocumentStore) Add(userID, filename, name string, content []byte) (UploadResult, error) {
	if !SupportedExtension(filename) {
		return UploadResult{}, fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
	}
	if len(content) > MaxDocumentSize {
		return UploadResult{}, ErrDocumentTooLarge
	}
	if !utf8.Valid(content) {
		return UploadResult{}, ErrUnreadableContent
	}
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(filename)
	}

	text := string(content)
	clauses, controls := extractReferences(text)
	doc := &document{
		id:       uuid.New().String(),
		name:     name,
		userID:   userID,
		chunks:   chunkText(text, chunkSize, chunkOverlap),
		clauses:  clauses,
		controls: controls,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	owned := 0
	for _, d := range s.docs {
		if d.userID == userID {
			owned++
		}
	}
	if owned >= MaxDocumentsPerUser {
		return UploadResult{}, ErrDocumentLimit
	}
	doc.uploadedAt = s.now()
	s.docs[doc.id] = doc

	return UploadResult{
		DocumentID:         doc.id,
		Status:             "success",
		ChunksCreated:      len(doc.chunks),
		ControlsIdentified: len(controls),
		Message:            fmt.Sprintf("Document %s processed successfully", name),
	}, nil
}

// List returns the user's documents, newest first.
func (s *DocumentStore) List(userID string) []DocumentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]*document, 0)
	for _, d := range s.docs {
		if d.userID == userID {
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].uploadedAt.Equal(docs[j].uploadedAt) {
			return docs[i].id < docs[j].id
		}
		return docs[i].uploadedAt.After(docs[j].uploadedAt)
	})

	out := make([]DocumentInfo, len(docs))
	for i, d := range docs {
		out[i] = d.info()
	}
	return out
}

// Get returns one of the user's documents.
func (s *DocumentStore) Get(documentID, userID string) (DocumentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[documentID]
	if !ok || d.userID != userID {
		return DocumentInfo{}, ErrDocumentNotFound
	}
	return d.info(), nil
}

// Delete removes one of the user's documents.
func (s *DocumentStore) Delete(documentID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[documentID]
	if !ok || d.userID != userID {
		return ErrDocumentNotFound
	}
	delete(s.docs, documentID)
	return nil
}

// Search returns the document name and up to limit chunks sharing words with
// question, best match first.
func (s *DocumentStore) Search(documentID, userID, question string, limit int) (string, []passage, error) {
	s.mu.Lock()
	d, ok := s.docs[documentID]
	if !ok || d.userID != userID {
		s.mu.Unlock()
		return "", nil, ErrDocumentNotFound
	}
	name, chunks := d.name, d.chunks
	s.mu.Unlock()

	terms := queryTerms(question)
	if len(terms) == 0 {
		return name, nil, nil
	}

	var hits []passage
	for i, chunk := range chunks {
		words := make(map[string]bool)
		for _, w := range splitWords(chunk) {
			words[w] = true
		}
		matched := 0
		for _, t := range terms {
			if words[t] {
				matched++
			}
		}
		if matched > 0 {
			hits = append(hits, passage{index: i, text: chunk, score: float64(matched) / float64(len(terms))})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	return name, hits[:min(limit, len(hits))], nil
}

// chunkText splits text into rune windows of size, each starting
// size-overlap runes after the previous one. Blank windows are skipped.
func chunkText(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap
	chunks := []string{}
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// queryTerms keeps distinct question words of four or more characters.
func queryTerms(question string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range splitWords(question) {
		if utf8.RuneCountInString(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return terms
}

// excerpt collapses whitespace and bounds a chunk for quoting.
func excerpt(chunk string) string {
	return truncate(strings.Join(strings.Fields(chunk), " "), excerptRunes)
}
