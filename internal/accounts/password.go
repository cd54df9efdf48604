// ABOUTME: Forgot-password and reset-password workflows
// ABOUTME: Single-use recovery codes; update-then-delete tail is deliberately non-atomic

package accounts

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/shoplane/shoplane-auth/internal/store"
	"github.com/shoplane/shoplane-auth/internal/validate"
)

// ForgotPassword issues a recovery code for the actor behind the given email
// and mails it. Issuing supersedes any prior live code for the actor, so only
// the most recent code can reset the password.
func (s *Service) ForgotPassword(ctx context.Context, payload map[string]any) (string, error) {
	if errs := validate.Check(payload, forgotPasswordRules); errs.Any() {
		return "", Invalid(errs)
	}

	email := str(payload, "email")

	actor, err := s.identities.FindActorBy(ctx, s.kind, "email", email)
	if errors.Is(err, store.ErrNotFound) {
		return "", NotFound("Email is unavailable")
	}
	if err != nil {
		return "", Internal("Unable to look up account")
	}

	code, err := s.codes.IssueCode(ctx, actor.ID, store.CodePurposeRecovery, s.cfg.RecoveryCodeTTL)
	if err != nil || code == "" {
		return "", Internal("Unable to change password")
	}

	s.sendMail(ctx, email, store.CodePurposeRecovery, code)

	s.logger.Info("recovery code issued", "actor_id", actor.ID)
	return "Password reset link has been sent to your email", nil
}

// ResetPassword consumes a recovery code and replaces the owning actor's
// credential. The credential update always completes before the code is
// deleted; a deletion failure after a successful update is surfaced as an
// internal failure and not rolled back.
func (s *Service) ResetPassword(ctx context.Context, code string, payload map[string]any) (string, error) {
	c, err := s.codes.FindCode(ctx, code, store.CodePurposeRecovery)
	if errors.Is(err, store.ErrNotFound) {
		return "", NotFound("Not found")
	}
	if err != nil {
		return "", Internal("Unable to look up recovery code")
	}

	if errs := validate.Check(payload, resetPasswordRules); errs.Any() {
		return "", Invalid(errs)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(str(payload, "password")), s.cfg.BcryptCost)
	if err != nil {
		return "", Internal("Unable to hash password")
	}

	ok, err := s.identities.UpdateActorCredential(ctx, c.ActorID, string(hash))
	if err != nil || !ok {
		return "", Internal("Unable to update your password")
	}

	deleted, err := s.codes.DeleteCode(ctx, code, store.CodePurposeRecovery)
	if err != nil || !deleted {
		s.logger.Error("orphaned recovery code after credential update", "actor_id", c.ActorID)
		return "", Internal("Unable to delete forgot password code")
	}

	s.logger.Info("password reset", "actor_id", c.ActorID)
	return "Password has been reset", nil
}
