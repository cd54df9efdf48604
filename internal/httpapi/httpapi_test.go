// ABOUTME: End-to-end HTTP tests over the full route table
// ABOUTME: Exercises registration, login, refresh, recovery, and route guards

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/shoplane/shoplane-auth/internal/accounts"
	"github.com/shoplane/shoplane-auth/internal/auth"
	"github.com/shoplane/shoplane-auth/internal/mail"
	"github.com/shoplane/shoplane-auth/internal/store"
)

var codePattern = regexp.MustCompile(`[0-9a-f]{32}`)

type testAPI struct {
	handler http.Handler
	store   *store.MemoryStore
	mailer  *mail.CaptureSender
	issuer  *auth.Issuer
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	st := store.NewMemoryStore()
	mailer := mail.NewCaptureSender()
	issuer := auth.NewIssuer([]byte("test-secret"), 15*time.Minute, 24*time.Hour)
	cfg := accounts.Config{BcryptCost: bcrypt.MinCost}

	services := map[store.ActorKind]*accounts.Service{}
	for _, kind := range store.Kinds {
		services[kind] = accounts.NewService(kind, st, st, st, issuer, mailer, cfg)
	}

	srv := New(services, issuer)
	return &testAPI{handler: srv.Router(), store: st, mailer: mailer, issuer: issuer}
}

// do performs a request and decodes the JSON response body.
func (a *testAPI) do(t *testing.T, method, path, token string, payload any) (int, map[string]any) {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec.Code, decoded
}

// registerAndVerify registers a user through the API and verifies it with the
// mailed code.
func (a *testAPI) registerAndVerify(t *testing.T, kind, email, password string) {
	t.Helper()

	status, body := a.do(t, http.MethodPost, "/auth/register/"+kind, "", map[string]any{
		"name":                  "Test Actor",
		"email":                 email,
		"password":              password,
		"password_confirmation": password,
	})
	require.Equal(t, http.StatusOK, status, "register: %v", body)

	code := a.lastMailedCode(t)
	status, body = a.do(t, http.MethodPost, "/auth/verify/"+kind+"/"+code, "", nil)
	require.Equal(t, http.StatusOK, status, "verify: %v", body)
}

func (a *testAPI) lastMailedCode(t *testing.T) string {
	t.Helper()
	msgs := a.mailer.Messages()
	require.NotEmpty(t, msgs, "no mail captured")
	code := codePattern.FindString(msgs[len(msgs)-1].Body)
	require.NotEmpty(t, code, "no code in mail body")
	return code
}

// login returns the token pair for an already-verified actor.
func (a *testAPI) login(t *testing.T, kind, email, password string) (access, refresh string) {
	t.Helper()

	status, body := a.do(t, http.MethodPost, "/auth/login/"+kind, "", map[string]any{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, "login: %v", body)
	access, _ = body["access_token"].(string)
	refresh, _ = body["refresh_token"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	return access, refresh
}

func TestHealthz(t *testing.T) {
	a := newTestAPI(t)

	status, body := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestRegisterLoginFlow(t *testing.T) {
	a := newTestAPI(t)

	a.registerAndVerify(t, "user", "user@example.com", "Secret123")

	access, _ := a.login(t, "user", "user@example.com", "Secret123")

	claims, err := a.issuer.Verify(access, auth.UseAccess)
	require.NoError(t, err)
	assert.Equal(t, store.ActorKindUser, claims.Kind)
}

func TestLogin_UnverifiedAccount(t *testing.T) {
	a := newTestAPI(t)

	status, _ := a.do(t, http.MethodPost, "/auth/register/seller", "", map[string]any{
		"name":                  "Seller",
		"email":                 "seller@example.com",
		"password":              "Secret123",
		"password_confirmation": "Secret123",
	})
	require.Equal(t, http.StatusOK, status)

	status, body := a.do(t, http.MethodPost, "/auth/login/seller", "", map[string]any{
		"email":    "seller@example.com",
		"password": "Secret123",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Account is not verified", body["message"])
}

func TestValidationErrorShape(t *testing.T) {
	a := newTestAPI(t)

	status, body := a.do(t, http.MethodPost, "/auth/login/user", "", map[string]any{
		"email": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	errMap, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected field-keyed error map, got %v", body)
	assert.Contains(t, errMap, "email")
	assert.Contains(t, errMap, "password")
}

func TestRegister_NonStringConfirmationFields(t *testing.T) {
	a := newTestAPI(t)

	// Objects in both password fields must come back as a field-keyed 400,
	// not kill the request.
	status, body := a.do(t, http.MethodPost, "/auth/register/user", "", map[string]any{
		"name":                  "Test Actor",
		"email":                 "user@example.com",
		"password":              map[string]any{},
		"password_confirmation": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	errMap, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected field-keyed error map, got %v", body)
	assert.Contains(t, errMap, "password")
}

func TestInvalidRequestBody(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login/user", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}

func TestUnknownKindIs404(t *testing.T) {
	a := newTestAPI(t)

	status, body := a.do(t, http.MethodPost, "/auth/login/wizard", "", map[string]any{
		"email":    "user@example.com",
		"password": "Secret123",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
}

func TestRefreshAndLogout(t *testing.T) {
	a := newTestAPI(t)
	a.registerAndVerify(t, "user", "user@example.com", "Secret123")
	_, refresh := a.login(t, "user", "user@example.com", "Secret123")

	status, body := a.do(t, http.MethodPost, "/auth/refresh/user", refresh, nil)
	require.Equal(t, http.StatusOK, status, "refresh: %v", body)
	rotated, _ := body["refresh_token"].(string)
	require.NotEmpty(t, rotated)

	// The old refresh token's session is gone.
	status, _ = a.do(t, http.MethodPost, "/auth/refresh/user", refresh, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Logout with the rotated token, then replay fails.
	status, _ = a.do(t, http.MethodPost, "/auth/logout/user", rotated, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = a.do(t, http.MethodPost, "/auth/refresh/user", rotated, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Logout without a token still succeeds.
	status, _ = a.do(t, http.MethodPost, "/auth/logout/user", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRefresh_KindMismatch(t *testing.T) {
	a := newTestAPI(t)
	a.registerAndVerify(t, "user", "user@example.com", "Secret123")
	_, refresh := a.login(t, "user", "user@example.com", "Secret123")

	status, body := a.do(t, http.MethodPost, "/auth/refresh/seller", refresh, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Token does not match this endpoint", body["message"])
}

func TestAdminRegistrationGate(t *testing.T) {
	a := newTestAPI(t)

	payload := map[string]any{
		"name":                  "New Admin",
		"email":                 "admin2@example.com",
		"password":              "Secret123",
		"password_confirmation": "Secret123",
	}

	// Unauthenticated requests are rejected.
	status, _ := a.do(t, http.MethodPost, "/auth/register/admin", "", payload)
	assert.Equal(t, http.StatusUnauthorized, status)

	// Non-admin actors are rejected.
	a.registerAndVerify(t, "user", "user@example.com", "Secret123")
	userAccess, _ := a.login(t, "user", "user@example.com", "Secret123")
	status, _ = a.do(t, http.MethodPost, "/auth/register/admin", userAccess, payload)
	assert.Equal(t, http.StatusForbidden, status)

	// A bootstrapped admin can register further admins.
	adminAccess := a.bootstrapAdmin(t, "admin@example.com", "Secret123")
	status, body := a.do(t, http.MethodPost, "/auth/register/admin", adminAccess, payload)
	assert.Equal(t, http.StatusOK, status, "admin register: %v", body)
}

// bootstrapAdmin seeds a verified admin directly in the store, the way the
// bootstrap subcommand does, and returns an access token for it.
func (a *testAPI) bootstrapAdmin(t *testing.T, email, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, a.store.CreateActor(context.Background(), &store.Actor{
		ID:           "admin-1",
		Kind:         store.ActorKindAdmin,
		Email:        email,
		Name:         "Root Admin",
		PasswordHash: string(hash),
		Verified:     true,
	}))

	access, _ := a.login(t, "admin", email, password)
	return access
}

func TestActorKindsAreIsolated(t *testing.T) {
	a := newTestAPI(t)

	// Same email registered as both user and seller.
	a.registerAndVerify(t, "user", "dual@example.com", "UserSecret1")
	a.registerAndVerify(t, "seller", "dual@example.com", "SellerSecret1")

	// Each kind's password only works on its own endpoint.
	a.login(t, "user", "dual@example.com", "UserSecret1")
	a.login(t, "seller", "dual@example.com", "SellerSecret1")

	status, _ := a.do(t, http.MethodPost, "/auth/login/user", "", map[string]any{
		"email":    "dual@example.com",
		"password": "SellerSecret1",
	})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPasswordRecoveryOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	a.registerAndVerify(t, "user", "user@example.com", "OldSecret123")

	status, body := a.do(t, http.MethodPost, "/auth/password/forgot/user", "", map[string]any{
		"email": "user@example.com",
	})
	require.Equal(t, http.StatusOK, status, "forgot: %v", body)
	assert.Equal(t, "Password reset link has been sent to your email", body["message"])

	code := a.lastMailedCode(t)
	status, body = a.do(t, http.MethodPost, "/auth/password/reset/user/"+code, "", map[string]any{
		"password":              "NewSecret456",
		"password_confirmation": "NewSecret456",
	})
	require.Equal(t, http.StatusOK, status, "reset: %v", body)
	assert.Equal(t, "Password has been reset", body["message"])

	a.login(t, "user", "user@example.com", "NewSecret456")

	// The consumed code cannot be replayed.
	status, body = a.do(t, http.MethodPost, "/auth/password/reset/user/"+code, "", map[string]any{
		"password":              "Another789",
		"password_confirmation": "Another789",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not found", body["message"])
}

func TestForgotPassword_UnknownEmail(t *testing.T) {
	a := newTestAPI(t)

	status, body := a.do(t, http.MethodPost, "/auth/password/forgot/user", "", map[string]any{
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Email is unavailable", body["message"])
}

func TestUpdateProfileOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	a.registerAndVerify(t, "user", "user@example.com", "Secret123")
	access, _ := a.login(t, "user", "user@example.com", "Secret123")

	t.Run("requires a token", func(t *testing.T) {
		status, _ := a.do(t, http.MethodPost, "/auth/profile/user", "", map[string]any{"name": "New Name"})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("rejects empty payload", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/auth/profile/user", access, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, status)
		_, hasFieldErrors := body["error"]
		assert.True(t, hasFieldErrors, "body: %v", body)
	})

	t.Run("kind mismatch is forbidden", func(t *testing.T) {
		status, _ := a.do(t, http.MethodPost, "/auth/profile/seller", access, map[string]any{"name": "New Name"})
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("updates name", func(t *testing.T) {
		status, body := a.do(t, http.MethodPost, "/auth/profile/user", access, map[string]any{"name": "New Name"})
		require.Equal(t, http.StatusOK, status, "profile: %v", body)
		assert.Equal(t, "Profile has been updated", body["message"])
	})
}
