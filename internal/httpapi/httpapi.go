// ABOUTME: HTTP route table and JSON rendering for the auth API
// ABOUTME: Maps workflow results and typed failures to status codes and bodies

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shoplane/shoplane-auth/internal/accounts"
	"github.com/shoplane/shoplane-auth/internal/auth"
	"github.com/shoplane/shoplane-auth/internal/store"
)

// Server holds the per-kind account services and the token issuer used by the
// route middleware.
type Server struct {
	services map[store.ActorKind]*accounts.Service
	issuer   *auth.Issuer
	logger   *slog.Logger
}

// New creates the API server. The services map must contain an entry for each
// actor kind that should be routable.
func New(services map[store.ActorKind]*accounts.Service, issuer *auth.Issuer) *Server {
	return &Server{
		services: services,
		issuer:   issuer,
		logger:   slog.Default().With("component", "httpapi"),
	}
}

// Router builds the route table. Per actor kind: login, logout, refresh
// (refresh-token guard), register (admin variant additionally access-token and
// admin gated), verify, forgot password, reset password, and profile update.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login/{kind}", s.handleLogin)

		r.With(auth.OptionalRefreshToken(s.issuer)).
			Post("/logout/{kind}", s.handleLogout)

		r.With(auth.RequireRefreshToken(s.issuer)).
			Post("/refresh/{kind}", s.handleRefresh)

		// Admin accounts can only be registered by an existing administrator.
		r.With(auth.RequireAccessToken(s.issuer), auth.RequireAdmin()).
			Post("/register/admin", s.registerHandler(store.ActorKindAdmin))
		r.Post("/register/seller", s.registerHandler(store.ActorKindSeller))
		r.Post("/register/user", s.registerHandler(store.ActorKindUser))

		r.Post("/verify/{kind}/{code}", s.handleVerify)
		r.Post("/password/forgot/{kind}", s.handleForgotPassword)
		r.Post("/password/reset/{kind}/{code}", s.handleResetPassword)

		r.With(auth.RequireAccessToken(s.issuer)).
			Post("/profile/{kind}", s.handleUpdateProfile)
	})

	return r
}

// service resolves the {kind} path parameter to its account service.
// Unknown kinds yield a 404.
func (s *Server) service(w http.ResponseWriter, r *http.Request) *accounts.Service {
	kind := store.ActorKind(chi.URLParam(r, "kind"))
	svc, ok := s.services[kind]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"message": "Not found",
		})
		return nil
	}
	return svc
}

// decodeBody parses the request body into a payload map. An empty body is
// treated as an empty payload.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	payload := map[string]any{}
	err := json.NewDecoder(r.Body).Decode(&payload)
	if err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Invalid request body",
		})
		return nil, false
	}
	return payload, true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	svc := s.service(w, r)
	if svc == nil {
		return
	}
	payload, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	pair, err := svc.Login(r.Context(), payload)
	if err != nil {
		s.renderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Logged in",
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	svc := s.service(w, r)
	if svc == nil {
		return
	}

	// Logout is idempotent: no token, or a token for another kind, still
	// produces a success response without touching any session.
	if authCtx := auth.FromContext(r.Context()); authCtx != nil && authCtx.Kind == svc.Kind() {
		if err := svc.Logout(r.Context(), authCtx.SessionID); err != nil {
			s.renderError(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out",
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	svc := s.service(w, r)
	if svc == nil {
		return
	}

	authCtx := auth.MustFromContext(r.Context())
	if authCtx.Kind != svc.Kind() {
		s.writeJSON(w, http.StatusForbidden, map[string]any{
			"success": false,
			"message": "Token does not match this endpoint",
		})
		return
	}

	pair, err := svc.Refresh(r.Context(), authCtx.ActorID, authCtx.SessionID)
	if err != nil {
		s.renderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Tokens refreshed",
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (s *Server) registerHandler(kind store.ActorKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, ok := s.services[kind]
		if !ok {
			s.writeJSON(w, http.StatusNotFound, map[string]any{
				"success": false,
				"message": "Not found",
			})
			return
		}
		payload, ok := s.decodeBody(w, r)
		if !ok {
			return
		}

		msg, err := svc.Register(r.Context(), payload)
		if err != nil {
			s.renderError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": msg,
		})
	}
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	svc := s.service(w, r)
	if svc == nil {
		return
	}

	msg, err := svc.Verify(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.renderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
	})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	svc := s.service(w, r)
	if svc == nil {
		return
	}
	payload, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	msg, err := svc.ForgotPassword(r.Context(), payload)
	if err != nil {
		s.renderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	svc := s.service(w, r)
	if svc == nil {
		return
	}
	payload, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	msg, err := svc.ResetPassword(r.Context(), chi.URLParam(r, "code"), payload)
	if err != nil {
		s.renderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	svc := s.service(w, r)
	if svc == nil {
		return
	}

	authCtx := auth.MustFromContext(r.Context())
	if authCtx.Kind != svc.Kind() {
		s.writeJSON(w, http.StatusForbidden, map[string]any{
			"success": false,
			"message": "Token does not match this endpoint",
		})
		return
	}

	payload, ok := s.decodeBody(w, r)
	if !ok {
		return
	}

	msg, err := svc.UpdateProfile(r.Context(), authCtx.ActorID, payload)
	if err != nil {
		s.renderError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": msg,
	})
}

// renderError maps a workflow failure to its HTTP shape. Validation failures
// with field errors render as {"error": {field: [messages]}} at 400; all other
// failures render as {"success": false, "message": ...}.
func (s *Server) renderError(w http.ResponseWriter, err error) {
	e := accounts.AsError(err)

	switch e.Kind {
	case accounts.FailureValidation:
		if e.Fields != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": e.Fields})
			return
		}
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": e.Message,
		})
	case accounts.FailureNotFound:
		s.writeJSON(w, http.StatusNotFound, map[string]any{
			"success": false,
			"message": e.Message,
		})
	default:
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": e.Message,
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
