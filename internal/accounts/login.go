// ABOUTME: Login, logout, and refresh-token workflows
// ABOUTME: Issues access/refresh token pairs backed by stored sessions

package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/shoplane/shoplane-auth/internal/store"
	"github.com/shoplane/shoplane-auth/internal/validate"
)

// dummyHash is compared against when the email is unknown so that known and
// unknown emails take the same time to reject.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMye1VdLuHGPAvXWXWlVVVVVVVVVVVVVVVV"

// TokenPair is the payload of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login authenticates an actor by email and password and issues a token pair.
func (s *Service) Login(ctx context.Context, payload map[string]any) (*TokenPair, error) {
	if errs := validate.Check(payload, loginRules); errs.Any() {
		return nil, Invalid(errs)
	}

	email := str(payload, "email")
	password := str(payload, "password")

	actor, err := s.identities.FindActorBy(ctx, s.kind, "email", email)
	if errors.Is(err, store.ErrNotFound) {
		// Constant-time rejection for unknown emails.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, NotFound("Invalid credentials")
	}
	if err != nil {
		return nil, Internal("Unable to look up account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(actor.PasswordHash), []byte(password)); err != nil {
		return nil, NotFound("Invalid credentials")
	}

	if !actor.Verified {
		return nil, InvalidMessage("Account is not verified")
	}

	pair, err := s.issuePair(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("actor logged in", "actor_id", actor.ID)
	return pair, nil
}

// Logout deletes the session behind the presented refresh token. It is
// idempotent: logging out without a live session still succeeds.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if _, err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return Internal("Unable to log out")
	}
	return nil
}

// Refresh rotates the session behind a verified refresh token and issues a
// fresh token pair. The old refresh token is dead once this returns.
func (s *Service) Refresh(ctx context.Context, actorID, sessionID string) (*TokenPair, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("Session not found")
	}
	if err != nil {
		return nil, Internal("Unable to look up session")
	}

	if session.ActorID != actorID || session.Kind != s.kind {
		return nil, NotFound("Session not found")
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		_, _ = s.sessions.DeleteSession(ctx, sessionID)
		return nil, NotFound("Session not found")
	}

	if _, err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		return nil, Internal("Unable to rotate session")
	}

	pair, err := s.issuePair(ctx, actorID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("session rotated", "actor_id", actorID)
	return pair, nil
}

// issuePair creates a session and signs an access/refresh token pair for it.
func (s *Service) issuePair(ctx context.Context, actorID string) (*TokenPair, error) {
	session := &store.Session{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Kind:      s.kind,
		ExpiresAt: time.Now().UTC().Add(s.tokens.RefreshTTL()),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, Internal("Unable to create session")
	}

	access, err := s.tokens.Access(actorID, s.kind)
	if err != nil {
		return nil, Internal("Unable to issue tokens")
	}
	refresh, err := s.tokens.Refresh(actorID, s.kind, session.ID)
	if err != nil {
		return nil, Internal("Unable to issue tokens")
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
