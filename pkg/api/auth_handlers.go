package api

import (
	"errors"
	"net/http"

	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/httputil"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string     `json:"token"`
	User  *auth.User `json:"user"`
}

// register handles POST /api/v1/auth/register
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	fields := httputil.FieldErrors{}
	fields.Require("email", req.Email)
	fields.Require("password", req.Password)
	if req.Password != "" && len(req.Password) < 8 {
		fields.Add("password", "password must be at least 8 characters")
	}
	if fields.Write(w) {
		return
	}

	user, err := s.users.CreateUser(r.Context(), req.Email, req.FullName, req.Password)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	// Username allocation is best-effort at registration; the account can
	// claim one later from settings.
	if allocated, err := s.usernames.Allocate(r.Context(), user.ID, req.FullName, user.Email); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).Warn("username allocation failed at registration")
	} else {
		user.Username = allocated
	}

	sess, err := s.sessions.Create(r.Context(), user.ID)
	if err != nil {
		s.logger.WithError(err).Error("session creation failed")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteCreated(w, sessionResponse{Token: sess.Token, User: user})
}

// login handles POST /api/v1/auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := s.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			httputil.WriteUnauthorized(w, err.Error())
			return
		}
		s.logger.WithError(err).Error("login failed")
		httputil.WriteInternalError(w)
		return
	}

	sess, err := s.sessions.Create(r.Context(), user.ID)
	if err != nil {
		s.logger.WithError(err).Error("session creation failed")
		httputil.WriteInternalError(w)
		return
	}

	if err := s.users.UpdateLastLogin(r.Context(), user.ID); err != nil {
		s.logger.WithError(err).Warn("failed to record login time")
	}

	httputil.WriteSuccess(w, sessionResponse{Token: sess.Token, User: user})
}

// logout handles POST /api/v1/auth/logout
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	if err := s.sessions.Delete(r.Context(), authCtx.Session.Token); err != nil {
		s.logger.WithError(err).Error("logout failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteNoContent(w)
}

// me handles GET /api/v1/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user":                authCtx.User,
		"active_organization": authCtx.Session.ActiveOrgID,
	})
}
