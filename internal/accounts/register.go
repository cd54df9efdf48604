// ABOUTME: Registration, account verification, and profile update workflows
// ABOUTME: New actors start unverified and verify through a mailed single-use code

package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/shoplane/shoplane-auth/internal/mail"
	"github.com/shoplane/shoplane-auth/internal/store"
	"github.com/shoplane/shoplane-auth/internal/validate"
)

var emailTakenErrors = validate.Errors{
	"email": {"The email has already been taken."},
}

// Register creates a new unverified actor and mails a verification code.
func (s *Service) Register(ctx context.Context, payload map[string]any) (string, error) {
	if errs := validate.Check(payload, registerRules); errs.Any() {
		return "", Invalid(errs)
	}

	email := str(payload, "email")

	hash, err := bcrypt.GenerateFromPassword([]byte(str(payload, "password")), s.cfg.BcryptCost)
	if err != nil {
		return "", Internal("Unable to hash password")
	}

	actor := &store.Actor{
		ID:           uuid.New().String(),
		Kind:         s.kind,
		Email:        email,
		Name:         str(payload, "name"),
		PasswordHash: string(hash),
	}
	if err := s.identities.CreateActor(ctx, actor); err != nil {
		if errors.Is(err, store.ErrDuplicateActor) {
			return "", Invalid(emailTakenErrors)
		}
		return "", Internal("Unable to create account")
	}

	code, err := s.codes.IssueCode(ctx, actor.ID, store.CodePurposeVerification, s.cfg.VerificationCodeTTL)
	if err != nil || code == "" {
		return "", Internal("Unable to create verification code")
	}

	s.sendMail(ctx, email, store.CodePurposeVerification, code)

	s.logger.Info("actor registered", "actor_id", actor.ID)
	return "Registration successful, check your email to verify your account", nil
}

// Verify consumes a verification code and marks the owning actor verified.
// Like password reset, the flag update and code deletion are not atomic: a
// deletion failure after a successful update surfaces as an internal failure.
func (s *Service) Verify(ctx context.Context, code string) (string, error) {
	c, err := s.codes.FindCode(ctx, code, store.CodePurposeVerification)
	if errors.Is(err, store.ErrNotFound) {
		return "", NotFound("Not found")
	}
	if err != nil {
		return "", Internal("Unable to look up verification code")
	}

	ok, err := s.identities.SetActorVerified(ctx, c.ActorID)
	if err != nil || !ok {
		return "", Internal("Unable to verify your account")
	}

	deleted, err := s.codes.DeleteCode(ctx, code, store.CodePurposeVerification)
	if err != nil || !deleted {
		return "", Internal("Unable to delete verification code")
	}

	s.logger.Info("actor verified", "actor_id", c.ActorID)
	return "Account has been verified", nil
}

// UpdateProfile applies a partial update to the authenticated actor. Every
// field is optional, but at least one must be present.
func (s *Service) UpdateProfile(ctx context.Context, actorID string, payload map[string]any) (string, error) {
	if errs := validate.Check(payload, updateProfileRules); errs.Any() {
		return "", Invalid(errs)
	}

	if password := str(payload, "password"); password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
		if err != nil {
			return "", Internal("Unable to hash password")
		}
		ok, err := s.identities.UpdateActorCredential(ctx, actorID, string(hash))
		if err != nil || !ok {
			return "", Internal("Unable to update your password")
		}
	}

	name := str(payload, "name")
	email := str(payload, "email")
	if name != "" || email != "" {
		ok, err := s.identities.UpdateActorProfile(ctx, actorID, name, email)
		if errors.Is(err, store.ErrDuplicateActor) {
			return "", Invalid(emailTakenErrors)
		}
		if err != nil || !ok {
			return "", Internal("Unable to update your profile")
		}
	}

	return "Profile has been updated", nil
}

// sendMail delivers a code to the actor's address. Delivery is best-effort:
// failures are logged and never surfaced to the caller.
func (s *Service) sendMail(ctx context.Context, to string, purpose store.CodePurpose, code string) {
	var msg mail.Message
	var err error
	switch purpose {
	case store.CodePurposeRecovery:
		msg, err = mail.RecoveryMessage(to, string(s.kind), code)
	case store.CodePurposeVerification:
		msg, err = mail.VerificationMessage(to, string(s.kind), code)
	}
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.logger.Error("mail delivery failed", "to", to, "purpose", purpose, "error", err)
	}
}
