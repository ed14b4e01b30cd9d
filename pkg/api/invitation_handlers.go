package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/plumbline/plumbline/pkg/audit"
	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/httputil"
)

type createInvitationRequest struct {
	Email string    `json:"email"`
	Role  auth.Role `json:"role"`
}

type invitationResponse struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	ExpiresAt      string `json:"expires_at"`

	// Token is the one-time invitation secret, returned only at creation
	Token string `json:"token,omitempty"`
}

// createInvitation handles POST /api/v1/orgs/{org_id}/invitations
func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}

	var req createInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	fields := httputil.FieldErrors{}
	fields.Require("email", strings.TrimSpace(req.Email))
	if !req.Role.Valid() {
		fields.Add("role", "role must be admin, member, or viewer")
	}
	if fields.Write(w) {
		return
	}

	invitation, token, err := s.orgs.CreateInvitation(r.Context(), org.ID, req.Email, req.Role, authCtx.User.ID, s.invitationTTL)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.record(r, org.ID, authCtx.User.ID, audit.ActionInvitationSent, "invitation", invitation.Email, map[string]interface{}{
		"role": string(invitation.Role),
	})

	httputil.WriteCreated(w, invitationResponse{
		ID:             invitation.ID,
		OrganizationID: invitation.OrganizationID,
		Email:          invitation.Email,
		Role:           string(invitation.Role),
		ExpiresAt:      invitation.ExpiresAt.Format(time.RFC3339),
		Token:          token,
	})
}

// listInvitations handles GET /api/v1/orgs/{org_id}/invitations
func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}

	invitations, err := s.orgs.ListInvitations(r.Context(), org.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, invitations)
}

// revokeInvitation handles DELETE /api/v1/orgs/{org_id}/invitations/{invitation_id}
func (s *Server) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}

	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitation_id")
	if !ok {
		return
	}

	if err := s.orgs.RevokeInvitation(r.Context(), org.ID, invitationID); err != nil {
		s.serviceError(w, err)
		return
	}

	s.record(r, org.ID, authCtx.User.ID, audit.ActionInvitationRevoked, "invitation", strconv.FormatInt(invitationID, 10), nil)
	httputil.WriteNoContent(w)
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

// acceptInvitation handles POST /api/v1/invitations/accept. The caller
// becomes a member with the invited role.
func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return
	}

	var req acceptInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		fields := httputil.FieldErrors{}
		fields.Add("token", "token is required")
		fields.Write(w)
		return
	}

	membership, err := s.orgs.AcceptInvitation(r.Context(), req.Token, authCtx.User.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.record(r, membership.OrganizationID, authCtx.User.ID, audit.ActionMemberAdded, "member", strconv.FormatInt(authCtx.User.ID, 10), map[string]interface{}{
		"role": string(membership.Role),
	})

	httputil.WriteCreated(w, membership)
}

// auditLister is implemented by audit recorders that support reads
type auditLister interface {
	ListForOrganization(ctx context.Context, orgID int64, limit int) ([]*audit.Event, error)
}

// listAuditLog handles GET /api/v1/orgs/{org_id}/audit-log
func (s *Server) listAuditLog(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}

	lister, ok := s.auditor.(auditLister)
	if !ok {
		httputil.WriteNotFoundError(w, "audit log not available")
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := lister.ListForOrganization(r.Context(), org.ID, limit)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, events)
}
