package api

import (
	"errors"
	"net/http"

	"github.com/plumbline/plumbline/pkg/audit"
	"github.com/plumbline/plumbline/pkg/httputil"
	"github.com/plumbline/plumbline/pkg/orgs"
	"github.com/plumbline/plumbline/pkg/username"
)

type claimUsernameRequest struct {
	Username string `json:"username"`
}

type switchOrgRequest struct {
	OrganizationID int64 `json:"organization_id"`
}

// claimUsername handles POST /api/v1/me/username. A username can be claimed
// exactly once and never changes afterwards.
func (s *Server) claimUsername(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	var req claimUsernameRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if authCtx.User.HasUsername() {
		httputil.WriteConflict(w, "username is already set")
		return
	}

	err := s.usernames.Claim(r.Context(), authCtx.User.ID, req.Username)
	switch {
	case err == nil:
	case errors.Is(err, username.ErrInvalidFormat):
		fields := httputil.FieldErrors{}
		fields.Add("username", err.Error())
		fields.Write(w)
		return
	case errors.Is(err, username.ErrTaken):
		httputil.WriteConflict(w, err.Error())
		return
	default:
		s.serviceError(w, err)
		return
	}

	s.record(r, 0, authCtx.User.ID, audit.ActionUsernameAssigned, "user", req.Username, nil)

	authCtx.User.Username = req.Username
	httputil.WriteSuccess(w, authCtx.User)
}

// validateUsername handles GET /api/v1/usernames/validate?username=x
func (s *Server) validateUsername(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("username")
	result, err := s.usernames.Validate(r.Context(), name)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"valid":   result.Valid,
		"message": result.Message,
	})
}

// organizationSlots handles GET /api/v1/me/organization-slots
func (s *Server) organizationSlots(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	remaining := s.limits.RemainingOrganizationSlots(r.Context(), authCtx.User.ID)
	httputil.WriteSuccess(w, map[string]int{"remaining": remaining})
}

// switchActiveOrganization handles PUT /api/v1/me/active-organization.
// The organization must exist and the caller must be a member of it.
// Switching to the already-active organization is a no-op.
func (s *Server) switchActiveOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	var req switchOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.orgs.GetOrganization(r.Context(), req.OrganizationID)
	if err != nil {
		if errors.Is(err, orgs.ErrNotFound) {
			httputil.WriteNotFoundError(w, "organization not found")
			return
		}
		s.serviceError(w, err)
		return
	}

	if _, err := s.orgs.GetMembership(r.Context(), org.ID, authCtx.User.ID); err != nil {
		if errors.Is(err, orgs.ErrMemberNotFound) {
			httputil.WriteForbidden(w, "not a member")
			return
		}
		s.serviceError(w, err)
		return
	}

	if err := s.sessions.SetActiveOrg(r.Context(), authCtx.Session.Token, org.ID); err != nil {
		s.logger.WithError(err).Error("failed to switch active organization")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"active_organization": org.ID,
	})
}

// clearActiveOrganization handles DELETE /api/v1/me/active-organization
func (s *Server) clearActiveOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	if err := s.sessions.ClearActiveOrg(r.Context(), authCtx.Session.Token); err != nil {
		s.logger.WithError(err).Error("failed to clear active organization")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteNoContent(w)
}
