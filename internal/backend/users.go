// ABOUTME: In-memory user accounts with bcrypt password hashes
// ABOUTME: Backs login, registration and the /auth/me identity lookup

package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// User errors
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleUser    = "user"
	RoleAuditor = "auditor"
	RoleViewer  = "viewer"
)

// PermChatAccess gates the /chat routes for non-admin users.
const PermChatAccess = "chat_access"

// naiveISO is the timestamp layout the backend emits: ISO-8601 without a zone.
const naiveISO = "2006-01-02T15:04:05.000000"

// User is a stored account. Copies are handed out; the store owns the original.
type User struct {
	ID          string
	Email       string
	FullName    string
	Role        string
	Department  string
	Permissions []string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLogin   time.Time

	passwordHash []byte
}

// CanChat reports whether the user may use the chat routes.
func (u User) CanChat() bool {
	if u.Role == RoleAdmin {
		return true
	}
	for _, p := range u.Permissions {
		if p == PermChatAccess {
			return true
		}
	}
	return false
}

type userJSON struct {
	ID          string   `json:"_id"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	Role        string   `json:"role"`
	IsActive    bool     `json:"is_active"`
	Department  string   `json:"department,omitempty"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
	LastLogin   string   `json:"last_login,omitempty"`
}

// MarshalJSON renders the wire form, keyed by "_id", without the hash.
func (u User) MarshalJSON() ([]byte, error) {
	out := userJSON{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		IsActive:    u.IsActive,
		Department:  u.Department,
		Permissions: u.Permissions,
		CreatedAt:   u.CreatedAt.UTC().Format(naiveISO),
		UpdatedAt:   u.UpdatedAt.UTC().Format(naiveISO),
	}
	if out.Permissions == nil {
		out.Permissions = []string{}
	}
	if !u.LastLogin.IsZero() {
		out.LastLogin = u.LastLogin.UTC().Format(naiveISO)
	}
	return json.Marshal(out)
}

// NewUser describes an account to create.
type NewUser struct {
	Email       string
	Password    string
	FullName    string
	Role        string
	Department  string
	Permissions []string
}

// UserStore keeps accounts in memory, keyed by id and lower-cased email.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string
	cost    int
	now     func() time.Time
}

// NewUserStore creates an empty store hashing with the given bcrypt cost.
// cost <= 0 selects bcrypt.DefaultCost.
func NewUserStore(cost int) *UserStore {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		cost:    cost,
		now:     time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create adds an account. Public registrations default to the viewer role
// with chat access.
func (s *UserStore) Create(nu NewUser) (User, error) {
	email := normalizeEmail(nu.Email)
	if email == "" {
		return User{}, fmt.Errorf("email is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}

	role := nu.Role
	if role == "" {
		role = RoleViewer
	}
	perms := append([]string(nil), nu.Permissions...)
	if len(perms) == 0 {
		perms = []string{PermChatAccess}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return User{}, ErrEmailTaken
	}

	now := s.now()
	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		FullName:     strings.TrimSpace(nu.FullName),
		Role:         role,
		Department:   strings.TrimSpace(nu.Department),
		Permissions:  perms,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
		passwordHash: hash,
	}
	s.byID[u.ID] = u
	s.byEmail[email] = u.ID
	return u.copy(), nil
}

// Authenticate checks the password and records the login time. Unknown
// emails, wrong passwords and inactive accounts all fail the same way.
func (s *UserStore) Authenticate(email, password string) (User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[normalizeEmail(email)]
	var hash []byte
	if ok {
		hash = s.byID[id].passwordHash
	}
	s.mu.RUnlock()

	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok || !u.IsActive {
		return User{}, ErrInvalidCredentials
	}
	u.LastLogin = s.now()
	return u.copy(), nil
}

// Get returns the account with the given id.
func (s *UserStore) Get(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return User{}, false
	}
	return u.copy(), true
}

// SetActive enables or disables an account. Tokens already issued to a
// disabled account are rejected on their next use.
func (s *UserStore) SetActive(id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsActive = active
	u.UpdatedAt = s.now()
	return nil
}

// Len returns the number of accounts.
func (s *UserStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (u *User) copy() User {
	c := *u
	c.Permissions = append([]string(nil), u.Permissions...)
	return c
}
