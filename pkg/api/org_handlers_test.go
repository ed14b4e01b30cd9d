package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumbline/plumbline/pkg/audit"
	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/billing"
	"github.com/plumbline/plumbline/pkg/orgs"
)

func (e *testEnv) createOrg(t *testing.T, token, name string) *orgs.Organization {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/orgs", token, orgs.CreateOrganizationRequest{
		Name: name,
		Type: orgs.OrgTypeContractor,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var org orgs.Organization
	decodeBody(t, rec, &org)
	return &org
}

// invite creates an invitation and returns its one-time token
func (e *testEnv) invite(t *testing.T, adminToken string, orgID int64, email string, role auth.Role) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orgs/%d/invitations", orgID), adminToken, createInvitationRequest{
		Email: email,
		Role:  role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp invitationResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestCreateOrganization(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerUser(t, "Alice Smith", "alice@example.com")

	org := env.createOrg(t, token, "Acme Builders")
	assert.Equal(t, "acme-builders", org.Slug)
	assert.Equal(t, orgs.OrgTypeContractor, org.Type)

	assert.Contains(t, env.auditor.actions(), audit.ActionOrgCreated)
}

func TestUpdateOrganizationSettings(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerUser(t, "Alice Smith", "alice@example.com")
	org := env.createOrg(t, token, "Acme Builders")

	rec := env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/orgs/%d", org.ID), token, orgs.UpdateOrganizationRequest{
		Settings: map[string]interface{}{"currency": "EUR"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated orgs.Organization
	decodeBody(t, rec, &updated)
	assert.Equal(t, "EUR", updated.Settings["currency"])
	assert.Equal(t, "Acme Builders", updated.Name)
}

func TestCreateOrganizationValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerUser(t, "Alice Smith", "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/orgs", token, orgs.CreateOrganizationRequest{Type: "bakery"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rec, &resp)
	assert.Contains(t, resp.Fields, "name")
	assert.Contains(t, resp.Fields, "type")
}

func TestOrganizationLimitEnforced(t *testing.T) {
	env := newTestEnv(t)
	userID, token := env.registerUser(t, "Alice Smith", "alice@example.com")

	// Free tier founds one organization and then runs out of slots
	env.createOrg(t, token, "First Org")

	rec := env.do(t, http.MethodGet, "/api/v1/me/organization-slots", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var slots struct {
		Remaining int `json:"remaining"`
	}
	decodeBody(t, rec, &slots)
	assert.Equal(t, 0, slots.Remaining)

	rec = env.do(t, http.MethodPost, "/api/v1/orgs", token, orgs.CreateOrganizationRequest{
		Name: "Second Org",
		Type: orgs.OrgTypeStore,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Paid tier raises the limit
	env.state.mu.Lock()
	env.state.tiers[userID] = billing.TierPaid
	env.state.mu.Unlock()

	rec = env.do(t, http.MethodPost, "/api/v1/orgs", token, orgs.CreateOrganizationRequest{
		Name: "Second Org",
		Type: orgs.OrgTypeStore,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestGetOrganizationRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")
	_, mallory := env.registerUser(t, "Mallory", "mallory@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orgs/%d", org.ID), aliceToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orgs/%d", org.ID), mallory, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownOrgIndistinguishableFromNonMember(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")
	_, mallory := env.registerUser(t, "Mallory", "mallory@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")

	// An outsider hitting a real organization and anyone hitting an
	// organization that does not exist must get byte-identical denials,
	// otherwise the response reveals which IDs are in use
	outsider := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orgs/%d", org.ID), mallory, nil)
	missing := env.do(t, http.MethodGet, "/api/v1/orgs/424242", mallory, nil)

	assert.Equal(t, http.StatusForbidden, outsider.Code)
	assert.Equal(t, outsider.Code, missing.Code)
	assert.Equal(t, outsider.Body.String(), missing.Body.String())
}

func TestInvitationFlow(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")
	bobID, bobToken := env.registerUser(t, "Bob Jones", "bob@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")
	inviteToken := env.invite(t, aliceToken, org.ID, "bob@example.com", auth.RoleMember)

	rec := env.do(t, http.MethodPost, "/api/v1/invitations/accept", bobToken, acceptInvitationRequest{Token: inviteToken})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var membership orgs.Membership
	decodeBody(t, rec, &membership)
	assert.Equal(t, bobID, membership.UserID)
	assert.Equal(t, auth.RoleMember, membership.Role)

	// Accepting twice is a conflict
	rec = env.do(t, http.MethodPost, "/api/v1/invitations/accept", bobToken, acceptInvitationRequest{Token: inviteToken})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Contains(t, env.auditor.actions(), audit.ActionInvitationSent)
	assert.Contains(t, env.auditor.actions(), audit.ActionMemberAdded)
}

func TestInvitationRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")
	_, bobToken := env.registerUser(t, "Bob Jones", "bob@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")
	inviteToken := env.invite(t, aliceToken, org.ID, "bob@example.com", auth.RoleMember)
	rec := env.do(t, http.MethodPost, "/api/v1/invitations/accept", bobToken, acceptInvitationRequest{Token: inviteToken})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Bob is a member, not an admin, so inviting is forbidden
	rec = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orgs/%d/invitations", org.ID), bobToken, createInvitationRequest{
		Email: "carol@example.com",
		Role:  auth.RoleViewer,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnknownInvitationToken(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.registerUser(t, "Bob Jones", "bob@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/invitations/accept", token, acceptInvitationRequest{Token: "bogus"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMemberRole(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")
	bobID, bobToken := env.registerUser(t, "Bob Jones", "bob@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")
	inviteToken := env.invite(t, aliceToken, org.ID, "bob@example.com", auth.RoleViewer)
	rec := env.do(t, http.MethodPost, "/api/v1/invitations/accept", bobToken, acceptInvitationRequest{Token: inviteToken})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/orgs/%d/members/%d", org.ID, bobID), aliceToken, roleRequest{Role: auth.RoleMember})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/orgs/%d/members/%d", org.ID, bobID), aliceToken, roleRequest{Role: "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Non-admins cannot change roles
	rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/v1/orgs/%d/members/%d", org.ID, bobID), bobToken, roleRequest{Role: auth.RoleAdmin})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSwitchActiveOrganization(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")
	_, bobToken := env.registerUser(t, "Bob Jones", "bob@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")

	// Nonexistent organization
	rec := env.do(t, http.MethodPut, "/api/v1/me/active-organization", aliceToken, switchOrgRequest{OrganizationID: 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Not a member
	rec = env.do(t, http.MethodPut, "/api/v1/me/active-organization", bobToken, switchOrgRequest{OrganizationID: org.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Member switches, repeat is an idempotent no-op
	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodPut, "/api/v1/me/active-organization", aliceToken, switchOrgRequest{OrganizationID: org.ID})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/me", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		ActiveOrganization *int64 `json:"active_organization"`
	}
	decodeBody(t, rec, &me)
	require.NotNil(t, me.ActiveOrganization)
	assert.Equal(t, org.ID, *me.ActiveOrganization)
}

func TestRemovingMemberClearsActiveOrganization(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")
	bobID, bobToken := env.registerUser(t, "Bob Jones", "bob@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")
	inviteToken := env.invite(t, aliceToken, org.ID, "bob@example.com", auth.RoleMember)
	rec := env.do(t, http.MethodPost, "/api/v1/invitations/accept", bobToken, acceptInvitationRequest{Token: inviteToken})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/me/active-organization", bobToken, switchOrgRequest{OrganizationID: org.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/orgs/%d/members/%d", org.ID, bobID), aliceToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/me", bobToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		ActiveOrganization *int64 `json:"active_organization"`
	}
	decodeBody(t, rec, &me)
	assert.Nil(t, me.ActiveOrganization)
}

func TestMemberCanLeaveButNotRemoveOthers(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")
	bobID, bobToken := env.registerUser(t, "Bob Jones", "bob@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")
	inviteToken := env.invite(t, aliceToken, org.ID, "bob@example.com", auth.RoleMember)
	rec := env.do(t, http.MethodPost, "/api/v1/invitations/accept", bobToken, acceptInvitationRequest{Token: inviteToken})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Bob cannot remove Alice
	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/orgs/%d/members/%d", org.ID, aliceID), bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Bob can leave
	rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/orgs/%d/members/%d", org.ID, bobID), bobToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Gone means no access
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orgs/%d", org.ID), bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListMembers(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orgs/%d/members", org.ID), aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var members []*orgs.Member
	decodeBody(t, rec, &members)
	require.Len(t, members, 1)
	assert.Equal(t, auth.RoleAdmin, members[0].Role)
	assert.Equal(t, "alice@example.com", members[0].Email)
}

func TestDeletedOrganizationDeniesAllAccess(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")

	org := env.createOrg(t, aliceToken, "Acme Builders")

	rec := env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/orgs/%d", org.ID), aliceToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Even the former admin gets the outsider denial back
	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orgs/%d", org.ID), aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListOrganizations(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.registerUser(t, "Alice Smith", "alice@example.com")
	env.createOrg(t, aliceToken, "Acme Builders")

	rec := env.do(t, http.MethodGet, "/api/v1/orgs", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list []*orgs.UserOrganization
	decodeBody(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Acme Builders", list[0].Name)
	assert.Equal(t, auth.RoleAdmin, list[0].Role)
}
