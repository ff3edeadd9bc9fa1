package auth

import "filescdn/internal/model"

// Session is the user context handed to policies and hooks.
// A nil *Session behaves as an anonymous session.
type Session struct {
	UserID string
	user   *model.User
}

// NewSession builds a session for an authenticated user. A nil user yields an anonymous session.
func NewSession(u *model.User) *Session {
	if u == nil {
		return &Session{}
	}
	return &Session{UserID: u.ID, user: u}
}

// User returns the current principal or nil.
func (s *Session) User() *model.User {
	if s == nil {
		return nil
	}
	return s.user
}

// ID returns the user id or an empty string.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.UserID
}

// Authenticated reports whether a user is attached.
func (s *Session) Authenticated() bool {
	return s.ID() != ""
}
