// ABOUTME: HTTP server exposing the CompliAI auth and chat routes via chi
// ABOUTME: Handles bearer auth, chat permission checks, JSON bodies and graceful shutdown

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/compliai/internal/auth"
	"github.com/2389/compliai/internal/config"
)

// minPasswordLength is enforced on registration.
const minPasswordLength = 8

// Server is the reference backend.
type Server struct {
	issuer *auth.JWTIssuer
	users  *UserStore
	chat   *ChatService
	docs   *DocumentStore
	logger *slog.Logger
	router chi.Router

	httpServer *http.Server
}

// New builds a server around the given issuer and user store.
func New(issuer *auth.JWTIssuer, users *UserStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	docs := NewDocumentStore()
	s := &Server{
		issuer: issuer,
		users:  users,
		chat:   NewChatService(docs),
		docs:   docs,
		logger: logger.With("component", "backend"),
	}
	s.router = s.routes()
	return s
}

// NewFromConfig builds a server from backend configuration and seeds the
// configured demo account.
func NewFromConfig(cfg *config.BackendConfig, logger *slog.Logger) (*Server, error) {
	issuer, err := auth.NewJWTIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}

	s := New(issuer, NewUserStore(0), logger)
	if cfg.DemoUser.Email != "" {
		u, err := s.users.Create(NewUser{
			Email:       cfg.DemoUser.Email,
			Password:    cfg.DemoUser.Password,
			FullName:    cfg.DemoUser.FullName,
			Role:        cfg.DemoUser.Role,
			Department:  cfg.DemoUser.Department,
			Permissions: cfg.DemoUser.Permissions,
		})
		if err != nil {
			return nil, fmt.Errorf("seeding demo user: %w", err)
		}
		s.logger.Info("seeded demo user", "email", u.Email, "role", u.Role)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Users exposes the account store.
func (s *Server) Users() *UserStore {
	return s.users
}

// Documents returns the uploaded document store.
func (s *Server) Documents() *DocumentStore {
	return s.docs
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.With(auth.BearerMiddleware(s.issuer), s.requireUser).Get("/me", s.handleMe)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Use(auth.BearerMiddleware(s.issuer), s.requireUser, requireChatAccess)
		r.Post("/", s.handleChat)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{conversationID}", s.handleConversationHistory)
		r.Delete("/conversations/{conversationID}", s.handleDeleteConversation)
		r.Post("/documents/upload", s.handleUploadDocument)
		r.Get("/documents", s.handleListDocuments)
		r.Get("/documents/{documentID}", s.handleDocumentInfo)
		r.Delete("/documents/{documentID}", s.handleDeleteDocument)
	})

	return r
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.httpServer == nil {
		return errors.New("server has no listen address; use NewFromConfig")
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serveErr = <-errCh:
		s.logger.Error("server error", "error", serveErr)
	}

	// ctx is already done here
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return serveErr
}

type userKey struct{}

// requireUser resolves the token's user and rejects missing or inactive accounts.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.MustFromContext(r.Context())
		u, ok := s.users.Get(claims.UserID)
		if !ok {
			auth.WriteDetail(w, http.StatusUnauthorized, "User not found")
			return
		}
		if !u.IsActive {
			auth.WriteDetail(w, http.StatusUnauthorized, "User account is inactive")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

func requireChatAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !currentUser(r).CanChat() {
			auth.WriteDetail(w, http.StatusForbidden, "Chat access permission required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) User {
	u, _ := r.Context().Value(userKey{}).(User)
	return u
}

// requestLogger logs one line per request with the chi request id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}

func (s *Server) issue(w http.ResponseWriter, status int, u User) {
	token, err := s.issuer.Generate(u.ID, u.Email, u.Role)
	if err != nil {
		s.logger.Error("issuing token", "user_id", u.ID, "error", err)
		auth.WriteDetail(w, http.StatusInternalServerError, "Could not issue token")
		return
	}
	respondJSON(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(s.issuer.Lifetime().Seconds()),
		User:        u,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		auth.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := s.users.Authenticate(payload.Email, payload.Password)
	if err != nil {
		s.logger.Info("login rejected", "email", payload.Email)
		auth.WriteDetail(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	s.logger.Info("login", "user_id", u.ID)
	s.issue(w, http.StatusOK, u)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email      string `json:"email"`
		FullName   string `json:"full_name"`
		Password   string `json:"password"`
		Department string `json:"department"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		auth.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if msg := validateRegistration(payload.Email, payload.FullName, payload.Password); msg != "" {
		auth.WriteDetail(w, http.StatusUnprocessableEntity, msg)
		return
	}

	// Public registration never grants a role or permissions beyond the defaults.
	u, err := s.users.Create(NewUser{
		Email:      payload.Email,
		Password:   payload.Password,
		FullName:   payload.FullName,
		Department: payload.Department,
	})
	if errors.Is(err, ErrEmailTaken) {
		auth.WriteDetail(w, http.StatusBadRequest, "User with this email already exists")
		return
	}
	if err != nil {
		s.logger.Error("registration failed", "error", err)
		auth.WriteDetail(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	s.logger.Info("registered user", "user_id", u.ID)
	s.issue(w, http.StatusOK, u)
}

func validateRegistration(email, fullName, password string) string {
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return "A valid email address is required"
	}
	if strings.TrimSpace(fullName) == "" {
		return "Full name is required"
	}
	if len(password) < minPasswordLength {
		return fmt.Sprintf("Password must be at least %d characters", minPasswordLength)
	}
	return ""
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		auth.WriteDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		auth.WriteDetail(w, http.StatusUnprocessableEntity, "Message is required")
		return
	}
	switch req.Mode {
	case "", ModeGeneral, ModeAuto:
	case ModeDocument:
		if req.DocumentID == "" {
			auth.WriteDetail(w, http.StatusUnprocessableEntity, "document_id is required in document mode")
			return
		}
	default:
		auth.WriteDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("Unknown mode %q", req.Mode))
		return
	}

	u := currentUser(r)
	resp, err := s.chat.Process(u.ID, req)
	if errors.Is(err, ErrConversationNotFound) {
		auth.WriteDetail(w, http.StatusNotFound, "Conversation not found or access denied")
		return
	}
	if errors.Is(err, ErrDocumentNotFound) {
		auth.WriteDetail(w, http.StatusNotFound, "Document not found or access denied")
		return
	}
	if err != nil {
		s.logger.Error("processing chat", "user_id", u.ID, "error", err)
		auth.WriteDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.chat.List(currentUser(r).ID))
}

func (s *Server) handleConversationHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.chat.History(chi.URLParam(r, "conversationID"), currentUser(r).ID)
	if err != nil {
		auth.WriteDetail(w, http.StatusNotFound, "Conversation not found or access denied")
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Delete(chi.URLParam(r, "conversationID"), currentUser(r).ID); err != nil {
		auth.WriteDetail(w, http.StatusNotFound, "Conversation not found or access denied")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted successfully"})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	// Room for the multipart envelope around a maximum-size file.
	r.Body = http.MaxBytesReader(w, r.Body, MaxDocumentSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			auth.WriteDetail(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		auth.WriteDetail(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		auth.WriteDetail(w, http.StatusBadRequest, "A file is required")
		return
	}
	defer file.Close()

	if !SupportedExtension(header.Filename) {
		auth.WriteDetail(w, http.StatusBadRequest, fmt.Sprintf("File type %q not supported. Allowed: %s",
			filepath.Ext(header.Filename), strings.Join(allowedExtensions, ", ")))
		return
	}
	content, err := io.ReadAll(io.LimitReader(file, MaxDocumentSize+1))
	if err != nil {
		auth.WriteDetail(w, http.StatusBadRequest, "Invalid upload")
		return
	}

	u := currentUser(r)
	res, err := s.docs.Add(u.ID, header.Filename, r.FormValue("document_name"), content)
	switch {
	case errors.Is(err, ErrDocumentTooLarge):
		auth.WriteDetail(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	case errors.Is(err, ErrDocumentLimit):
		auth.WriteDetail(w, http.StatusBadRequest, fmt.Sprintf("Document limit of %d reached", MaxDocumentsPerUser))
		return
	case errors.Is(err, ErrUnreadableContent), errors.Is(err, ErrUnsupportedType):
		auth.WriteDetail(w, http.StatusBadRequest, "Document must be UTF-8 text")
		return
	case err != nil:
		s.logger.Error("storing document", "user_id", u.ID, "error", err)
		auth.WriteDetail(w, http.StatusInternalServerError, "Error uploading document")
		return
	}

	s.logger.Info("document uploaded", "user_id", u.ID, "document_id", res.DocumentID, "chunks", res.ChunksCreated)
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.docs.List(currentUser(r).ID))
}

func (s *Server) handleDocumentInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.docs.Get(chi.URLParam(r, "documentID"), currentUser(r).ID)
	if err != nil {
		auth.WriteDetail(w, http.StatusNotFound, "Document not found or access denied")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.Delete(chi.URLParam(r, "documentID"), currentUser(r).ID); err != nil {
		auth.WriteDetail(w, http.StatusNotFound, "Document not found or access denied")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
