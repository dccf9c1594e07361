package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side state bound to the session cookie.
type Session struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id,omitempty"`
	Flashes    []core.Flash `json:"flashes,omitempty"`
	ForceLogin bool         `json:"force_login,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

func NewSession() *Session {
	return &Session{ID: uuid.New().String(), CreatedAt: time.Now().UTC()}
}

// IsEmpty reports whether the session carries nothing worth persisting.
func (s *Session) IsEmpty() bool {
	return s.UserID == "" && len(s.Flashes) == 0 && !s.ForceLogin
}

func (s *Session) Bind(userID string) {
	s.UserID = userID
}

func (s *Session) Unbind() {
	s.UserID = ""
}

func (s *Session) AddFlash(kind core.FlashKind, msg string) {
	s.Flashes = append(s.Flashes, core.Flash{Kind: kind, Message: msg})
}

// PopFlashes returns the pending flashes, grouped for display, and clears them.
func (s *Session) PopFlashes() []core.FlashGroup {
	groups := core.GroupFlashes(s.Flashes)
	s.Flashes = nil
	return groups
}

type SessionStore interface {
	// GetSession returns ErrSessionNotFound for unknown or expired sessions.
	GetSession(ctx context.Context, id string) (*Session, error)
	SaveSession(ctx context.Context, sess *Session) error
	DeleteSession(ctx context.Context, id string) error
}
