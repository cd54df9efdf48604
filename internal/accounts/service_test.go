// ABOUTME: Shared fixtures for account workflow tests
// ABOUTME: Wires a service against the in-memory store and a capturing mail sender

package accounts

import (
	"context"
	"regexp"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/shoplane/shoplane-auth/internal/auth"
	"github.com/shoplane/shoplane-auth/internal/mail"
	"github.com/shoplane/shoplane-auth/internal/store"
)

var codePattern = regexp.MustCompile(`[0-9a-f]{32}`)

type fixture struct {
	service *Service
	store   *store.MemoryStore
	mailer  *mail.CaptureSender
	issuer  *auth.Issuer
}

func newFixture(t *testing.T, kind store.ActorKind) *fixture {
	t.Helper()

	st := store.NewMemoryStore()
	mailer := mail.NewCaptureSender()
	issuer := auth.NewIssuer([]byte("test-secret"), 15*time.Minute, 24*time.Hour)

	svc := NewService(kind, st, st, st, issuer, mailer, Config{
		BcryptCost: bcrypt.MinCost,
	})
	return &fixture{service: svc, store: st, mailer: mailer, issuer: issuer}
}

// registerVerified runs the full registration flow for an actor and verifies
// it with the mailed code, returning the actor's ID.
func (f *fixture) registerVerified(t *testing.T, email, password string) string {
	t.Helper()
	ctx := context.Background()

	_, err := f.service.Register(ctx, map[string]any{
		"name":                  "Test Actor",
		"email":                 email,
		"password":              password,
		"password_confirmation": password,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	code := f.lastMailedCode(t)
	if _, err := f.service.Verify(ctx, code); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	actor, err := f.store.FindActorBy(ctx, f.service.Kind(), "email", email)
	if err != nil {
		t.Fatalf("FindActorBy failed: %v", err)
	}
	return actor.ID
}

// lastMailedCode extracts the code from the most recently captured mail.
func (f *fixture) lastMailedCode(t *testing.T) string {
	t.Helper()
	msgs := f.mailer.Messages()
	if len(msgs) == 0 {
		t.Fatal("no mail was sent")
	}
	code := codePattern.FindString(msgs[len(msgs)-1].Body)
	if code == "" {
		t.Fatalf("no code found in mail body: %q", msgs[len(msgs)-1].Body)
	}
	return code
}
