// ABOUTME: Tests for the in-memory store implementation
// ABOUTME: Verifies it upholds the same invariants as the SQLite store

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_ActorLifecycle(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	actor := testActor(ActorKindUser, "u-1", "user@example.com")
	if err := m.CreateActor(ctx, actor); err != nil {
		t.Fatalf("CreateActor failed: %v", err)
	}

	if err := m.CreateActor(ctx, testActor(ActorKindUser, "u-2", "user@example.com")); !errors.Is(err, ErrDuplicateActor) {
		t.Errorf("duplicate CreateActor error = %v, want ErrDuplicateActor", err)
	}

	got, err := m.FindActorBy(ctx, ActorKindUser, "email", "user@example.com")
	if err != nil {
		t.Fatalf("FindActorBy failed: %v", err)
	}
	if got.ID != "u-1" {
		t.Errorf("FindActorBy returned %q", got.ID)
	}

	if _, err := m.FindActorBy(ctx, ActorKindSeller, "email", "user@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-kind lookup error = %v, want ErrNotFound", err)
	}
	if _, err := m.FindActorBy(ctx, ActorKindUser, "nope", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field error = %v, want ErrUnknownField", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.CreateActor(ctx, testActor(ActorKindUser, "u-1", "user@example.com")); err != nil {
		t.Fatalf("CreateActor failed: %v", err)
	}

	got, _ := m.FindActorBy(ctx, ActorKindUser, "id", "u-1")
	got.PasswordHash = "tampered"

	again, _ := m.FindActorBy(ctx, ActorKindUser, "id", "u-1")
	if again.PasswordHash == "tampered" {
		t.Error("store returned a shared pointer; mutation leaked")
	}
}

func TestMemoryStore_UpdateProfileMovesEmailIndex(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	if err := m.CreateActor(ctx, testActor(ActorKindUser, "u-1", "old@example.com")); err != nil {
		t.Fatalf("CreateActor failed: %v", err)
	}

	ok, err := m.UpdateActorProfile(ctx, "u-1", "", "new@example.com")
	if err != nil || !ok {
		t.Fatalf("UpdateActorProfile = (%v, %v), want (true, nil)", ok, err)
	}

	if _, err := m.FindActorBy(ctx, ActorKindUser, "email", "old@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old email still resolves: %v", err)
	}
	if _, err := m.FindActorBy(ctx, ActorKindUser, "email", "new@example.com"); err != nil {
		t.Errorf("new email lookup failed: %v", err)
	}

	// The freed email can be registered again.
	if err := m.CreateActor(ctx, testActor(ActorKindUser, "u-2", "old@example.com")); err != nil {
		t.Errorf("reusing freed email failed: %v", err)
	}
}

func TestMemoryStore_CodeSupersession(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	first, err := m.IssueCode(ctx, "u-1", CodePurposeRecovery, time.Hour)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	second, err := m.IssueCode(ctx, "u-1", CodePurposeRecovery, time.Hour)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	if _, err := m.FindCode(ctx, first, CodePurposeRecovery); !errors.Is(err, ErrNotFound) {
		t.Errorf("superseded code still live: %v", err)
	}
	if _, err := m.FindCode(ctx, second, CodePurposeRecovery); err != nil {
		t.Errorf("live code lookup failed: %v", err)
	}
}

func TestMemoryStore_ExpiredCode(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	code, err := m.IssueCode(ctx, "u-1", CodePurposeVerification, -time.Second)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	if _, err := m.FindCode(ctx, code, CodePurposeVerification); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired code error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Sessions(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	session := &Session{ID: "sess-1", ActorID: "u-1", Kind: ActorKindUser, ExpiresAt: time.Now().UTC().Add(time.Hour)}
	if err := m.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if _, err := m.GetSession(ctx, "sess-1"); err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	deleted, err := m.DeleteSession(ctx, "sess-1")
	if err != nil || !deleted {
		t.Fatalf("DeleteSession = (%v, %v), want (true, nil)", deleted, err)
	}
	deleted, _ = m.DeleteSession(ctx, "sess-1")
	if deleted {
		t.Error("second DeleteSession reported true")
	}
}
