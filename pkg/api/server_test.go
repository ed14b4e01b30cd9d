package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/plumbline/plumbline/pkg/audit"
	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/authz"
	"github.com/plumbline/plumbline/pkg/billing"
	"github.com/plumbline/plumbline/pkg/config"
	"github.com/plumbline/plumbline/pkg/middleware"
	"github.com/plumbline/plumbline/pkg/observability"
	"github.com/plumbline/plumbline/pkg/orgs"
	"github.com/plumbline/plumbline/pkg/projects"
	"github.com/plumbline/plumbline/pkg/session"
	"github.com/plumbline/plumbline/pkg/username"
)

// fakeState is an in-memory backend implementing the server's service
// interfaces, so handler behavior can be exercised without PostgreSQL.
type fakeState struct {
	mu sync.Mutex

	nextUserID       int64
	nextOrgID        int64
	nextMemberID     int64
	nextInvitationID int64
	nextProjectID    int64
	nextBudgetID     int64
	nextItemID       int64
	nextAnalysisID   int64

	users     map[int64]*auth.User
	passwords map[int64]string
	emails    map[string]int64
	usernames map[string]int64

	orgsByID    map[int64]*orgs.Organization
	memberships map[int64]map[int64]*orgs.Membership // orgID -> userID
	invitations map[int64]*orgs.Invitation
	invTokens   map[string]int64

	tiers map[int64]billing.Tier

	projects map[int64]*projects.Project
	budgets  map[int64]*projects.Budget
	items    map[int64][]*projects.BudgetItem
	analyses map[int64]*projects.UnitPriceAnalysis

	sessions *session.Store
}

func newFakeState() *fakeState {
	return &fakeState{
		users:       make(map[int64]*auth.User),
		passwords:   make(map[int64]string),
		emails:      make(map[string]int64),
		usernames:   make(map[string]int64),
		orgsByID:    make(map[int64]*orgs.Organization),
		memberships: make(map[int64]map[int64]*orgs.Membership),
		invitations: make(map[int64]*orgs.Invitation),
		invTokens:   make(map[string]int64),
		tiers:       make(map[int64]billing.Tier),
		projects:    make(map[int64]*projects.Project),
		budgets:     make(map[int64]*projects.Budget),
		items:       make(map[int64][]*projects.BudgetItem),
		analyses:    make(map[int64]*projects.UnitPriceAnalysis),
	}
}

// UserService

func (f *fakeState) CreateUser(_ context.Context, email, fullName, password string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	if _, exists := f.emails[email]; exists {
		return nil, auth.ErrEmailTaken
	}
	f.nextUserID++
	user := &auth.User{
		ID:        f.nextUserID,
		Email:     email,
		FullName:  fullName,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	f.users[user.ID] = user
	f.emails[email] = user.ID
	f.passwords[user.ID] = password
	return copyUser(user), nil
}

func (f *fakeState) Authenticate(_ context.Context, email, password string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok || f.passwords[id] != password || !f.users[id].IsActive {
		return nil, auth.ErrInvalidCredentials
	}
	return copyUser(f.users[id]), nil
}

func (f *fakeState) UpdateLastLogin(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	if u, ok := f.users[userID]; ok {
		u.LastLoginAt = &now
	}
	return nil
}

func (f *fakeState) GetUserByID(_ context.Context, id int64) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return copyUser(user), nil
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	return &c
}

// username.Store

func (f *fakeState) UsernameTaken(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, taken := f.usernames[name]
	return taken, nil
}

func (f *fakeState) AssignUsername(_ context.Context, userID int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return username.ErrUserNotFound
	}
	if user.Username != "" {
		return username.ErrAlreadySet
	}
	f.usernames[name] = userID
	user.Username = name
	return nil
}

// OrgService

func (f *fakeState) orgLimit(userID int64) int {
	tier := f.tiers[userID]
	if tier == "" {
		tier = billing.TierFree
	}
	return tier.MaxOwnedOrganizations()
}

func (f *fakeState) adminCount(userID int64) int {
	count := 0
	for orgID, members := range f.memberships {
		org, ok := f.orgsByID[orgID]
		if !ok || org.DeletedAt != nil {
			continue
		}
		if m, ok := members[userID]; ok && m.Role == auth.RoleAdmin {
			count++
		}
	}
	return count
}

func (f *fakeState) CreateOrganization(_ context.Context, userID int64, req *orgs.CreateOrganizationRequest) (*orgs.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.adminCount(userID) >= f.orgLimit(userID) {
		return nil, orgs.ErrLimitReached
	}
	f.nextOrgID++
	org := &orgs.Organization{
		ID:        f.nextOrgID,
		Name:      req.Name,
		Slug:      strings.ToLower(strings.ReplaceAll(req.Name, " ", "-")),
		Type:      req.Type,
		CreatedBy: userID,
		CreatedAt: time.Now(),
	}
	f.orgsByID[org.ID] = org
	f.nextMemberID++
	f.memberships[org.ID] = map[int64]*orgs.Membership{
		userID: {
			ID:             f.nextMemberID,
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           auth.RoleAdmin,
			CreatedAt:      time.Now(),
		},
	}
	return org, nil
}

func (f *fakeState) GetOrganization(_ context.Context, id int64) (*orgs.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgsByID[id]
	if !ok || org.DeletedAt != nil {
		return nil, orgs.ErrNotFound
	}
	return org, nil
}

func (f *fakeState) GetOrganizationBySlug(_ context.Context, slug string) (*orgs.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, org := range f.orgsByID {
		if org.Slug == slug && org.DeletedAt == nil {
			return org, nil
		}
	}
	return nil, orgs.ErrNotFound
}

func (f *fakeState) UpdateOrganization(_ context.Context, id int64, req *orgs.UpdateOrganizationRequest) (*orgs.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgsByID[id]
	if !ok || org.DeletedAt != nil {
		return nil, orgs.ErrNotFound
	}
	if req.Name != nil {
		org.Name = *req.Name
	}
	if req.Type != nil {
		org.Type = *req.Type
	}
	if req.Settings != nil {
		org.Settings = req.Settings
	}
	return org, nil
}

func (f *fakeState) DeleteOrganization(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgsByID[id]
	if !ok || org.DeletedAt != nil {
		return orgs.ErrNotFound
	}
	now := time.Now()
	org.DeletedAt = &now
	return nil
}

func (f *fakeState) ListOrganizationsForUser(_ context.Context, userID int64) ([]*orgs.UserOrganization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*orgs.UserOrganization
	for orgID, members := range f.memberships {
		org := f.orgsByID[orgID]
		if org == nil || org.DeletedAt != nil {
			continue
		}
		if m, ok := members[userID]; ok {
			out = append(out, &orgs.UserOrganization{Organization: *org, Role: m.Role})
		}
	}
	return out, nil
}

func (f *fakeState) GetMembership(_ context.Context, orgID, userID int64) (*orgs.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.memberships[orgID][userID]; ok {
		return m, nil
	}
	return nil, orgs.ErrMemberNotFound
}

func (f *fakeState) ListMembers(_ context.Context, orgID int64) ([]*orgs.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*orgs.Member
	for userID, m := range f.memberships[orgID] {
		member := &orgs.Member{UserID: userID, Role: m.Role, JoinedAt: m.CreatedAt}
		if u := f.users[userID]; u != nil {
			member.Email = u.Email
			member.FullName = u.FullName
			if u.Username != "" {
				name := u.Username
				member.Username = &name
			}
		}
		out = append(out, member)
	}
	return out, nil
}

func (f *fakeState) UpdateMemberRole(_ context.Context, orgID, userID int64, role auth.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memberships[orgID][userID]
	if !ok {
		return orgs.ErrMemberNotFound
	}
	m.Role = role
	return nil
}

func (f *fakeState) RemoveMember(ctx context.Context, orgID, userID int64) error {
	f.mu.Lock()
	_, ok := f.memberships[orgID][userID]
	if ok {
		delete(f.memberships[orgID], userID)
	}
	f.mu.Unlock()
	if !ok {
		return orgs.ErrMemberNotFound
	}
	// Mirrors the production invariant: removal clears active-org pointers
	if f.sessions != nil {
		return f.sessions.ClearActiveOrgForUser(ctx, userID, orgID)
	}
	return nil
}

func (f *fakeState) CreateInvitation(_ context.Context, orgID int64, email string, role auth.Role, invitedBy int64, ttl time.Duration) (*orgs.Invitation, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !role.Valid() {
		return nil, "", fmt.Errorf("invalid role %q", role)
	}
	f.nextInvitationID++
	inv := &orgs.Invitation{
		ID:             f.nextInvitationID,
		OrganizationID: orgID,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		Role:           role,
		InvitedBy:      &invitedBy,
		CreatedAt:      time.Now(),
		ExpiresAt:      time.Now().Add(ttl),
	}
	f.invitations[inv.ID] = inv
	token := fmt.Sprintf("invite-token-%d", inv.ID)
	f.invTokens[token] = inv.ID
	return inv, token, nil
}

func (f *fakeState) ListInvitations(_ context.Context, orgID int64) ([]*orgs.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*orgs.Invitation
	for _, inv := range f.invitations {
		if inv.OrganizationID == orgID && inv.AcceptedAt == nil {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeState) RevokeInvitation(_ context.Context, orgID, invitationID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[invitationID]
	if !ok || inv.OrganizationID != orgID {
		return orgs.ErrInvitationNotFound
	}
	delete(f.invitations, invitationID)
	return nil
}

func (f *fakeState) AcceptInvitation(_ context.Context, token string, userID int64) (*orgs.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	invID, ok := f.invTokens[token]
	if !ok {
		return nil, orgs.ErrInvitationNotFound
	}
	inv := f.invitations[invID]
	if inv == nil || inv.AcceptedAt != nil {
		return nil, orgs.ErrInvitationNotFound
	}
	if time.Now().After(inv.ExpiresAt) {
		return nil, orgs.ErrInvitationExpired
	}
	if _, exists := f.memberships[inv.OrganizationID][userID]; exists {
		return nil, orgs.ErrAlreadyMember
	}
	now := time.Now()
	inv.AcceptedAt = &now
	f.nextMemberID++
	m := &orgs.Membership{
		ID:             f.nextMemberID,
		OrganizationID: inv.OrganizationID,
		UserID:         userID,
		Role:           inv.Role,
		CreatedAt:      now,
	}
	if f.memberships[inv.OrganizationID] == nil {
		f.memberships[inv.OrganizationID] = make(map[int64]*orgs.Membership)
	}
	f.memberships[inv.OrganizationID][userID] = m
	return m, nil
}

// LimitService

func (f *fakeState) RemainingOrganizationSlots(_ context.Context, userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	remaining := f.orgLimit(userID) - f.adminCount(userID)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ProjectService

func (f *fakeState) CreateProject(_ context.Context, orgID, userID int64, req *projects.CreateProjectRequest) (*projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextProjectID++
	p := &projects.Project{
		ID:             f.nextProjectID,
		OrganizationID: orgID,
		Name:           req.Name,
		Description:    req.Description,
		Status:         projects.ProjectStatusActive,
		CreatedBy:      userID,
		CreatedAt:      time.Now(),
	}
	f.projects[p.ID] = p
	return p, nil
}

func (f *fakeState) GetProject(_ context.Context, orgID, projectID int64) (*projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok || p.OrganizationID != orgID {
		return nil, projects.ErrNotFound
	}
	return p, nil
}

func (f *fakeState) ListProjects(_ context.Context, orgID int64) ([]*projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*projects.Project
	for _, p := range f.projects {
		if p.OrganizationID == orgID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeState) UpdateProject(_ context.Context, orgID, projectID int64, req *projects.UpdateProjectRequest) (*projects.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok || p.OrganizationID != orgID {
		return nil, projects.ErrNotFound
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	return p, nil
}

func (f *fakeState) DeleteProject(_ context.Context, orgID, projectID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok || p.OrganizationID != orgID {
		return projects.ErrNotFound
	}
	delete(f.projects, projectID)
	return nil
}

func (f *fakeState) CreateBudget(_ context.Context, orgID, projectID, userID int64, req *projects.CreateBudgetRequest) (*projects.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[projectID]
	if !ok || p.OrganizationID != orgID {
		return nil, projects.ErrNotFound
	}
	f.nextBudgetID++
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	b := &projects.Budget{
		ID:        f.nextBudgetID,
		ProjectID: projectID,
		Name:      req.Name,
		Currency:  currency,
		CreatedBy: userID,
		CreatedAt: time.Now(),
	}
	f.budgets[b.ID] = b
	return b, nil
}

func (f *fakeState) budgetInOrg(orgID, budgetID int64) (*projects.Budget, bool) {
	b, ok := f.budgets[budgetID]
	if !ok {
		return nil, false
	}
	p, ok := f.projects[b.ProjectID]
	if !ok || p.OrganizationID != orgID {
		return nil, false
	}
	return b, true
}

func (f *fakeState) GetBudget(_ context.Context, orgID, budgetID int64) (*projects.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.budgetInOrg(orgID, budgetID)
	if !ok {
		return nil, projects.ErrNotFound
	}
	total := 0.0
	for _, item := range f.items[budgetID] {
		total += item.LineTotal()
	}
	copied := *b
	copied.Total = total
	return &copied, nil
}

func (f *fakeState) ListBudgets(_ context.Context, orgID, projectID int64) ([]*projects.Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*projects.Budget
	for _, b := range f.budgets {
		if b.ProjectID == projectID {
			if _, ok := f.budgetInOrg(orgID, b.ID); ok {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func (f *fakeState) DeleteBudget(_ context.Context, orgID, budgetID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.budgetInOrg(orgID, budgetID); !ok {
		return projects.ErrNotFound
	}
	delete(f.budgets, budgetID)
	delete(f.items, budgetID)
	return nil
}

func (f *fakeState) AddBudgetItem(_ context.Context, orgID, budgetID int64, req *projects.BudgetItemRequest) (*projects.BudgetItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.budgetInOrg(orgID, budgetID); !ok {
		return nil, projects.ErrNotFound
	}
	f.nextItemID++
	item := &projects.BudgetItem{
		ID:          f.nextItemID,
		BudgetID:    budgetID,
		Description: req.Description,
		Unit:        req.Unit,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Position:    req.Position,
	}
	f.items[budgetID] = append(f.items[budgetID], item)
	return item, nil
}

func (f *fakeState) ListBudgetItems(_ context.Context, orgID, budgetID int64) ([]*projects.BudgetItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.budgetInOrg(orgID, budgetID); !ok {
		return nil, projects.ErrNotFound
	}
	return f.items[budgetID], nil
}

func (f *fakeState) UpdateBudgetItem(_ context.Context, orgID, budgetID, itemID int64, req *projects.BudgetItemRequest) (*projects.BudgetItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.budgetInOrg(orgID, budgetID); !ok {
		return nil, projects.ErrNotFound
	}
	for _, item := range f.items[budgetID] {
		if item.ID == itemID {
			item.Description = req.Description
			item.Unit = req.Unit
			item.Quantity = req.Quantity
			item.UnitPrice = req.UnitPrice
			item.Position = req.Position
			return item, nil
		}
	}
	return nil, projects.ErrNotFound
}

func (f *fakeState) DeleteBudgetItem(_ context.Context, orgID, budgetID, itemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.budgetInOrg(orgID, budgetID); !ok {
		return projects.ErrNotFound
	}
	items := f.items[budgetID]
	for i, item := range items {
		if item.ID == itemID {
			f.items[budgetID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return projects.ErrNotFound
}

func (f *fakeState) CreateAnalysis(_ context.Context, orgID, userID int64, req *projects.AnalysisRequest) (*projects.UnitPriceAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code := strings.TrimSpace(req.Code)
	for _, a := range f.analyses {
		if a.OrganizationID == orgID && a.Code == code {
			return nil, projects.ErrCodeConflict
		}
	}
	f.nextAnalysisID++
	a := &projects.UnitPriceAnalysis{
		ID:             f.nextAnalysisID,
		OrganizationID: orgID,
		Code:           code,
		Description:    req.Description,
		Unit:           req.Unit,
		Components:     req.Components,
		CreatedBy:      userID,
		CreatedAt:      time.Now(),
	}
	a.TotalPrice = a.ComputeTotal()
	f.analyses[a.ID] = a
	return a, nil
}

func (f *fakeState) GetAnalysis(_ context.Context, orgID, analysisID int64) (*projects.UnitPriceAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.analyses[analysisID]
	if !ok || a.OrganizationID != orgID {
		return nil, projects.ErrNotFound
	}
	return a, nil
}

func (f *fakeState) ListAnalyses(_ context.Context, orgID int64) ([]*projects.UnitPriceAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*projects.UnitPriceAnalysis
	for _, a := range f.analyses {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeState) UpdateAnalysis(_ context.Context, orgID, analysisID int64, req *projects.AnalysisRequest) (*projects.UnitPriceAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.analyses[analysisID]
	if !ok || a.OrganizationID != orgID {
		return nil, projects.ErrNotFound
	}
	a.Code = strings.TrimSpace(req.Code)
	a.Description = req.Description
	a.Unit = req.Unit
	a.Components = req.Components
	a.TotalPrice = a.ComputeTotal()
	return a, nil
}

func (f *fakeState) DeleteAnalysis(_ context.Context, orgID, analysisID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.analyses[analysisID]
	if !ok || a.OrganizationID != orgID {
		return projects.ErrNotFound
	}
	delete(f.analyses, analysisID)
	return nil
}

// recordingAuditor captures audit events
type recordingAuditor struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (a *recordingAuditor) Record(_ context.Context, event *audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}

type testEnv struct {
	server  *Server
	state   *fakeState
	auditor *recordingAuditor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sessions := session.NewStore(client, config.SessionConfig{
		TTL:         time.Hour,
		IdleTimeout: time.Hour,
	})

	state := newFakeState()
	state.sessions = sessions
	auditor := &recordingAuditor{}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	server := NewServer(Deps{
		Logger:        logger,
		Sessions:      sessions,
		Users:         state,
		Orgs:          state,
		Limits:        state,
		Gate:          authz.NewMembershipGate(state, nil),
		Usernames:     username.NewAllocator(state),
		Projects:      state,
		Auditor:       auditor,
		InvitationTTL: 24 * time.Hour,
		SessionMW:     middleware.NewSessionMiddleware(sessions, state, logger),
		OrgMW:         middleware.NewOrgContextMiddleware(state, 0),
	})

	return &testEnv{server: server, state: state, auditor: auditor}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), "body: %s", rec.Body.String())
}

// registerUser registers an account and returns its id and session token
func (e *testEnv) registerUser(t *testing.T, fullName, email string) (int64, string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Email:    email,
		Password: "correct-horse-battery",
		FullName: fullName,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Token string     `json:"token"`
		User  *auth.User `json:"user"`
	}
	decodeBody(t, rec, &resp)
	return resp.User.ID, resp.Token
}
