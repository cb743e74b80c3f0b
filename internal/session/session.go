// ABOUTME: Session identity model and permission set
// ABOUTME: Builds sessions from backend user records

package session

import (
	"maps"
	"slices"

	"github.com/2389/compliai/internal/client"
)

// Permission names granted by the backend.
const (
	PermChatAccess     = "chat_access"
	PermDocumentUpload = "document_upload"
	PermUserManagement = "user_management"
)

// Permissions is a set of permission names.
type Permissions map[string]struct{}

// NewPermissions builds a set from names.
func NewPermissions(names ...string) Permissions {
	p := make(Permissions, len(names))
	for _, n := range names {
		if n != "" {
			p[n] = struct{}{}
		}
	}
	return p
}

// Has reports whether name is in the set.
func (p Permissions) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// List returns the names in sorted order.
func (p Permissions) List() []string {
	var names []string
	for n := range p {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Session is the authenticated identity. The zero value is the
// unauthenticated session.
type Session struct {
	UserID          string
	DisplayName     string
	Email           string
	Role            string
	Department      string
	Permissions     Permissions
	IsAuthenticated bool
}

// Can reports whether the session holds a permission. Admins hold all of them.
func (s Session) Can(permission string) bool {
	if !s.IsAuthenticated {
		return false
	}
	return s.Role == "admin" || s.Permissions.Has(permission)
}

func (s Session) clone() Session {
	s.Permissions = maps.Clone(s.Permissions)
	return s
}

// fromUser builds an authenticated session from a backend user record.
func fromUser(u client.User) Session {
	name := u.FullName
	if name == "" {
		name = u.Email
	}
	return Session{
		UserID:          u.ID,
		DisplayName:     name,
		Email:           u.Email,
		Role:            u.Role,
		Department:      u.Department,
		Permissions:     NewPermissions(u.Permissions...),
		IsAuthenticated: true,
	}
}
