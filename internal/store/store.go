// ABOUTME: Store interfaces and data types for shoplane-auth persistence
// ABOUTME: Defines Actor, Code, Session structs and the per-concern store interfaces

package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateActor is returned when an actor with the same kind and email already exists
var ErrDuplicateActor = errors.New("actor already exists")

// ErrUnknownField is returned when FindActorBy is given a field it cannot query
var ErrUnknownField = errors.New("unknown lookup field")

// ActorKind identifies which tenant an actor belongs to. The three kinds share
// the same lifecycle but are isolated: every store lookup is scoped by kind.
type ActorKind string

const (
	ActorKindAdmin  ActorKind = "admin"
	ActorKindSeller ActorKind = "seller"
	ActorKindUser   ActorKind = "user"
)

// Kinds lists all actor kinds in a stable order.
var Kinds = []ActorKind{ActorKindAdmin, ActorKindSeller, ActorKindUser}

// Valid reports whether k is one of the three known actor kinds.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorKindAdmin, ActorKindSeller, ActorKindUser:
		return true
	}
	return false
}

// Actor represents an authenticated principal of one kind.
// Kind and ID are immutable after creation; PasswordHash and Verified are
// mutated only through the store methods below.
type Actor struct {
	ID           string
	Kind         ActorKind
	Email        string
	PasswordHash string // bcrypt hash
	Name         string
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CodePurpose distinguishes the two single-use code flows.
type CodePurpose string

const (
	CodePurposeRecovery     CodePurpose = "recovery"
	CodePurposeVerification CodePurpose = "verification"
)

// Code represents a single-use, time-scoped code owned by one actor.
// At most one live code exists per (actor, purpose); issuing a new one
// supersedes any prior live code atomically at the store boundary.
type Code struct {
	Code      string
	ActorID   string
	Purpose   CodePurpose
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the code is past its expiry at the given instant.
func (c *Code) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Session backs one refresh token. Logout deletes it; refresh rotates it.
type Session struct {
	ID        string
	ActorID   string
	Kind      ActorKind
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IdentityStore defines lookup and mutation of actor records.
type IdentityStore interface {
	// CreateActor persists a new actor. Returns ErrDuplicateActor if an actor
	// with the same kind and email already exists.
	CreateActor(ctx context.Context, actor *Actor) error

	// FindActorBy looks up an actor of the given kind by a named field.
	// Supported fields are "id" and "email". Returns ErrNotFound if absent
	// and ErrUnknownField for any other field name.
	FindActorBy(ctx context.Context, kind ActorKind, field, value string) (*Actor, error)

	// UpdateActorCredential replaces the actor's password hash.
	// Returns true iff a record was updated.
	UpdateActorCredential(ctx context.Context, actorID, passwordHash string) (bool, error)

	// SetActorVerified marks the actor as verified.
	// Returns true iff a record was updated.
	SetActorVerified(ctx context.Context, actorID string) (bool, error)

	// UpdateActorProfile updates the actor's name and/or email. Empty values
	// leave the corresponding field unchanged. Returns ErrDuplicateActor if
	// the new email is already taken within the actor's kind.
	UpdateActorProfile(ctx context.Context, actorID, name, email string) (bool, error)
}

// CodeStore defines issuance and consumption of single-use codes.
type CodeStore interface {
	// IssueCode creates a new live code for (actorID, purpose), superseding any
	// prior live code for that pair. Returns the opaque code string, or the
	// empty string together with an error when the code could not be issued.
	IssueCode(ctx context.Context, actorID string, purpose CodePurpose, ttl time.Duration) (string, error)

	// FindCode retrieves a live code. Expired or unknown codes yield ErrNotFound.
	FindCode(ctx context.Context, code string, purpose CodePurpose) (*Code, error)

	// DeleteCode removes a code. Returns true iff a record existed and was removed.
	DeleteCode(ctx context.Context, code string, purpose CodePurpose) (bool, error)
}

// SessionStore defines refresh-session persistence.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	// DeleteSession removes a session. Returns true iff it existed.
	DeleteSession(ctx context.Context, id string) (bool, error)
	DeleteExpiredSessions(ctx context.Context) error
}

// Store combines all persistence concerns and owns the underlying resources.
type Store interface {
	IdentityStore
	CodeStore
	SessionStore
	Close() error
}

// generateCode returns a new opaque code string: 32 hex characters from
// a 16-byte random read.
func generateCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
