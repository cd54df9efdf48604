// Package accounts implements the actor-polymorphic authentication workflows.
//
// # Architecture
//
// One Service type implements login, logout, refresh, registration,
// verification, profile update, and the forgot/reset password state machine.
// A concrete instance is created per actor kind (admin, seller, user); the
// instances share every line of workflow code and differ only in the kind
// they are bound to and the collaborators injected at construction:
//
//   - store.IdentityStore: actor lookup and mutation, always scoped by kind
//   - store.CodeStore: single-use recovery and verification codes
//   - store.SessionStore: refresh sessions
//   - auth.Issuer: access/refresh token signing
//   - mail.Sender: best-effort outbound mail
//
// # Failure taxonomy
//
// Operations return *Error with one of three kinds: FailureValidation
// (field-keyed, rendered as HTTP 400), FailureNotFound (unknown email, code,
// or session; HTTP 404), FailureInternal (store failure after valid input;
// HTTP 500). The workflows never write HTTP responses; the httpapi package
// owns status codes and bodies.
//
// # Recovery code lifecycle
//
// A forgot-password request issues a code that supersedes any prior live code
// for the same actor. Reset consumes the code: the credential update must
// succeed before the code is deleted, and a deletion failure after a
// successful update is surfaced rather than rolled back.
package accounts
