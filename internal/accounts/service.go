// ABOUTME: Actor-polymorphic account service shared by all three actor kinds
// ABOUTME: One workflow implementation; concrete instances differ only in wiring

package accounts

import (
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/shoplane/shoplane-auth/internal/auth"
	"github.com/shoplane/shoplane-auth/internal/mail"
	"github.com/shoplane/shoplane-auth/internal/store"
	"github.com/shoplane/shoplane-auth/internal/validate"
)

// Validation rule sets. Defined once; identical for every actor kind.
var (
	loginRules = validate.Rules{
		"email":    "required|string|email",
		"password": "required|string|min:8",
	}
	registerRules = validate.Rules{
		"name":     "required|string|min:2|max:64",
		"email":    "required|string|email",
		"password": "required|string|min:8|confirmed",
	}
	forgotPasswordRules = validate.Rules{
		"email": "required|string|email",
	}
	resetPasswordRules = validate.Rules{
		"password": "required|string|min:8|confirmed",
	}
	// Every profile field is optional, but an update with none of them is
	// rejected as a whole.
	updateProfileRules = validate.RequireAtLeastOne(validate.Rules{
		"name":     "string|min:2|max:64",
		"email":    "string|email",
		"password": "string|min:8|confirmed",
	})
)

// Config holds workflow tunables.
type Config struct {
	RecoveryCodeTTL     time.Duration
	VerificationCodeTTL time.Duration
	BcryptCost          int
}

func (c Config) withDefaults() Config {
	if c.RecoveryCodeTTL == 0 {
		c.RecoveryCodeTTL = time.Hour
	}
	if c.VerificationCodeTTL == 0 {
		c.VerificationCodeTTL = 24 * time.Hour
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = bcrypt.DefaultCost
	}
	return c
}

// Service implements login, registration, verification, and credential
// recovery for one actor kind. The workflow is identical across kinds; every
// store call is scoped by the service's kind, so no actor kind can ever see
// another's records.
type Service struct {
	kind       store.ActorKind
	identities store.IdentityStore
	codes      store.CodeStore
	sessions   store.SessionStore
	tokens     *auth.Issuer
	mailer     mail.Sender
	cfg        Config
	logger     *slog.Logger
}

// NewService creates the account service for one actor kind. All collaborators
// are injected explicitly; there is no global registry.
func NewService(
	kind store.ActorKind,
	identities store.IdentityStore,
	codes store.CodeStore,
	sessions store.SessionStore,
	tokens *auth.Issuer,
	mailer mail.Sender,
	cfg Config,
) *Service {
	return &Service{
		kind:       kind,
		identities: identities,
		codes:      codes,
		sessions:   sessions,
		tokens:     tokens,
		mailer:     mailer,
		cfg:        cfg.withDefaults(),
		logger:     slog.Default().With("component", "accounts", "kind", string(kind)),
	}
}

// Kind returns the actor kind this service is bound to.
func (s *Service) Kind() store.ActorKind {
	return s.kind
}

// str reads a string field from a validated payload.
func str(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}
