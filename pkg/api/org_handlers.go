package api

import (
	"net/http"
	"strconv"

	"github.com/plumbline/plumbline/pkg/audit"
	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/httputil"
	"github.com/plumbline/plumbline/pkg/middleware"
	"github.com/plumbline/plumbline/pkg/orgs"
)

// createOrganization handles POST /api/v1/orgs. The caller becomes the
// founding admin; creation is gated by the tier's organization limit.
func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	var req orgs.CreateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	fields := httputil.FieldErrors{}
	fields.Require("name", req.Name)
	if req.Type != "" && !req.Type.Valid() {
		fields.Add("type", "type must be contractor or store")
	}
	if req.Type == "" {
		fields.Add("type", "type is required")
	}
	if fields.Write(w) {
		return
	}

	org, err := s.orgs.CreateOrganization(r.Context(), authCtx.User.ID, &req)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.record(r, org.ID, authCtx.User.ID, audit.ActionOrgCreated, "organization", org.Slug, map[string]interface{}{
		"name": org.Name,
		"type": string(org.Type),
	})

	httputil.WriteCreated(w, org)
}

// listOrganizations handles GET /api/v1/orgs, returning the caller's
// organizations with their role in each.
func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	list, err := s.orgs.ListOrganizationsForUser(r.Context(), authCtx.User.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// getOrganization handles GET /api/v1/orgs/{org_id}
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, org)
}

// updateOrganization handles PUT /api/v1/orgs/{org_id}
func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}

	var req orgs.UpdateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Type != nil && !req.Type.Valid() {
		fields := httputil.FieldErrors{}
		fields.Add("type", "type must be contractor or store")
		fields.Write(w)
		return
	}

	updated, err := s.orgs.UpdateOrganization(r.Context(), org.ID, &req)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.record(r, org.ID, authCtx.User.ID, audit.ActionOrgUpdated, "organization", org.Slug, nil)
	httputil.WriteSuccess(w, updated)
}

// deleteOrganization handles DELETE /api/v1/orgs/{org_id}
func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	authCtx, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}

	if err := s.orgs.DeleteOrganization(r.Context(), org.ID); err != nil {
		s.serviceError(w, err)
		return
	}

	s.record(r, org.ID, authCtx.User.ID, audit.ActionOrgDeleted, "organization", org.Slug, nil)
	httputil.WriteNoContent(w)
}

// listMembers handles GET /api/v1/orgs/{org_id}/members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleViewer)
	if !ok {
		return
	}

	members, err := s.orgs.ListMembers(r.Context(), org.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

type roleRequest struct {
	Role auth.Role `json:"role"`
}

// updateMemberRole handles PUT /api/v1/orgs/{org_id}/members/{user_id}
func (s *Server) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	authCtx, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		fields := httputil.FieldErrors{}
		fields.Add("role", "role must be admin, member, or viewer")
		fields.Write(w)
		return
	}

	if err := s.orgs.UpdateMemberRole(r.Context(), org.ID, userID, req.Role); err != nil {
		s.serviceError(w, err)
		return
	}

	s.record(r, org.ID, authCtx.User.ID, audit.ActionMemberRoleChanged, "member", strconv.FormatInt(userID, 10), map[string]interface{}{
		"role": string(req.Role),
	})
	httputil.WriteNoContent(w)
}

// removeMember handles DELETE /api/v1/orgs/{org_id}/members/{user_id}.
// Admins can remove anyone; non-admin members can remove only themselves.
// Removal also clears the member's active-organization pointer to this org
// in any live session.
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if userID != authCtx.User.ID {
		if _, _, ok := s.requireOrgRole(w, r, auth.RoleAdmin); !ok {
			return
		}
	} else {
		// Leaving still requires membership
		if _, _, ok := s.requireOrgRole(w, r, auth.RoleViewer); !ok {
			return
		}
	}

	if err := s.orgs.RemoveMember(r.Context(), org.ID, userID); err != nil {
		s.serviceError(w, err)
		return
	}

	s.record(r, org.ID, authCtx.User.ID, audit.ActionMemberRemoved, "member", strconv.FormatInt(userID, 10), nil)
	httputil.WriteNoContent(w)
}
