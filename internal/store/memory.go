// ABOUTME: In-memory Store implementation for testing and development
// ABOUTME: Allows the service to run without SQLite

package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation. It backs unit tests and
// the "memory" database driver; all maps are guarded by one mutex.
type MemoryStore struct {
	mu         sync.RWMutex
	actors     map[string]*Actor  // keyed by actor ID
	actorIndex map[string]string  // keyed by "kind:email" -> actor ID
	codes      map[string]*Code   // keyed by "purpose:code"
	codeIndex  map[string]string  // keyed by "actorID:purpose" -> code
	sessions   map[string]*Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actors:     make(map[string]*Actor),
		actorIndex: make(map[string]string),
		codes:      make(map[string]*Code),
		codeIndex:  make(map[string]string),
		sessions:   make(map[string]*Session),
	}
}

func actorKey(kind ActorKind, email string) string {
	return string(kind) + ":" + email
}

func codeKey(purpose CodePurpose, code string) string {
	return string(purpose) + ":" + code
}

// CreateActor stores a new actor.
func (m *MemoryStore) CreateActor(ctx context.Context, actor *Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := actorKey(actor.Kind, actor.Email)
	if _, exists := m.actorIndex[key]; exists {
		return ErrDuplicateActor
	}

	now := time.Now().UTC()
	if actor.CreatedAt.IsZero() {
		actor.CreatedAt = now
	}
	if actor.UpdatedAt.IsZero() {
		actor.UpdatedAt = now
	}

	// Make a copy to avoid external modification
	a := *actor
	m.actors[a.ID] = &a
	m.actorIndex[key] = a.ID

	return nil
}

// FindActorBy looks up an actor of the given kind by field name.
func (m *MemoryStore) FindActorBy(ctx context.Context, kind ActorKind, field, value string) (*Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var a *Actor
	switch field {
	case "id":
		a = m.actors[value]
	case "email":
		if id, ok := m.actorIndex[actorKey(kind, value)]; ok {
			a = m.actors[id]
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	if a == nil || a.Kind != kind {
		return nil, ErrNotFound
	}

	result := *a
	return &result, nil
}

// UpdateActorCredential replaces the actor's password hash.
func (m *MemoryStore) UpdateActorCredential(ctx context.Context, actorID, passwordHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[actorID]
	if !ok {
		return false, nil
	}

	a.PasswordHash = passwordHash
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

// SetActorVerified marks the actor as verified.
func (m *MemoryStore) SetActorVerified(ctx context.Context, actorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[actorID]
	if !ok {
		return false, nil
	}

	a.Verified = true
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

// UpdateActorProfile updates the actor's name and/or email.
func (m *MemoryStore) UpdateActorProfile(ctx context.Context, actorID, name, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actors[actorID]
	if !ok {
		return false, nil
	}

	if email != "" && email != a.Email {
		newKey := actorKey(a.Kind, email)
		if _, taken := m.actorIndex[newKey]; taken {
			return false, ErrDuplicateActor
		}
		delete(m.actorIndex, actorKey(a.Kind, a.Email))
		m.actorIndex[newKey] = a.ID
		a.Email = email
	}
	if name != "" {
		a.Name = name
	}
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

// IssueCode creates a new live code, superseding any prior live code for the
// same (actor, purpose). Supersession is atomic under the store mutex.
func (m *MemoryStore) IssueCode(ctx context.Context, actorID string, purpose CodePurpose, ttl time.Duration) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idxKey := actorID + ":" + string(purpose)
	if old, ok := m.codeIndex[idxKey]; ok {
		delete(m.codes, codeKey(purpose, old))
	}

	now := time.Now().UTC()
	c := &Code{
		Code:      code,
		ActorID:   actorID,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	m.codes[codeKey(purpose, code)] = c
	m.codeIndex[idxKey] = code

	return code, nil
}

// FindCode retrieves a live code. Expired codes are treated as absent.
func (m *MemoryStore) FindCode(ctx context.Context, code string, purpose CodePurpose) (*Code, error) {
	m.mu.RLock()
	c, ok := m.codes[codeKey(purpose, code)]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if c.Expired(time.Now().UTC()) {
		m.mu.Lock()
		delete(m.codes, codeKey(purpose, code))
		delete(m.codeIndex, c.ActorID+":"+string(purpose))
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	result := *c
	return &result, nil
}

// DeleteCode removes a code. Returns true iff it existed.
func (m *MemoryStore) DeleteCode(ctx context.Context, code string, purpose CodePurpose) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := codeKey(purpose, code)
	c, ok := m.codes[key]
	if !ok {
		return false, nil
	}

	delete(m.codes, key)
	idxKey := c.ActorID + ":" + string(purpose)
	if m.codeIndex[idxKey] == code {
		delete(m.codeIndex, idxKey)
	}
	return true, nil
}

// CreateSession stores a refresh session.
func (m *MemoryStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	s := *session
	m.sessions[s.ID] = &s
	return nil
}

// GetSession retrieves a session by ID.
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *s
	return &result, nil
}

// DeleteSession removes a session. Returns true iff it existed.
func (m *MemoryStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

// DeleteExpiredSessions removes all sessions past their expiry.
func (m *MemoryStore) DeleteExpiredSessions(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
	return nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
