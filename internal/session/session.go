// Package session models the authenticated session as an explicit context
// object with a defined lifecycle: established on successful login, torn
// down on logout or on any 401-class response from the trading service.
// Collaborators receive the *Session; nothing reads credentials from
// ambient storage.
package session

import (
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

// Session holds the credentials and identity of the active user session.
type Session struct {
	mu          sync.Mutex
	token       string
	userID      int64
	portfolioID int64
	username    string

	// OnExpired fires once when an active session is invalidated, e.g. by
	// a 401 from the trading service. Used by the UI layer to force
	// re-authentication.
	OnExpired func()
}

// New creates an unauthenticated session.
func New() *Session {
	return &Session{}
}

// Establish stores the credentials returned by a successful login.
func (s *Session) Establish(token string, userID, portfolioID int64, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.userID = userID
	s.portfolioID = portfolioID
	s.username = username
}

// Token returns the bearer token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// UserID returns the authenticated user's id.
func (s *Session) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// PortfolioID returns the active portfolio id.
func (s *Session) PortfolioID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portfolioID
}

// Username returns the logged-in username.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Active reports whether the session currently holds credentials.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// SetPortfolioID records the portfolio resolved after login.
func (s *Session) SetPortfolioID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolioID = id
}

// Invalidate clears all credentials. It is idempotent; OnExpired fires
// only on the transition from active to inactive.
func (s *Session) Invalidate() {
	s.mu.Lock()
	wasActive := s.token != ""
	s.token = ""
	s.userID = 0
	s.portfolioID = 0
	s.username = ""
	hook := s.OnExpired
	s.mu.Unlock()

	if wasActive && hook != nil {
		hook()
	}
}

// TOTPCode generates the current one-time code for the given shared
// secret. Used as the optional second factor during login.
func TOTPCode(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}
