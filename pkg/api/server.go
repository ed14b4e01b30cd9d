package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/plumbline/plumbline/pkg/audit"
	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/authz"
	"github.com/plumbline/plumbline/pkg/httputil"
	"github.com/plumbline/plumbline/pkg/middleware"
	"github.com/plumbline/plumbline/pkg/observability"
	"github.com/plumbline/plumbline/pkg/orgs"
	"github.com/plumbline/plumbline/pkg/projects"
	"github.com/plumbline/plumbline/pkg/username"
)

// UserService is the identity surface the server needs
type UserService interface {
	CreateUser(ctx context.Context, email, fullName, password string) (*auth.User, error)
	Authenticate(ctx context.Context, email, password string) (*auth.User, error)
	UpdateLastLogin(ctx context.Context, userID int64) error
}

// SessionService manages login sessions
type SessionService interface {
	Create(ctx context.Context, userID int64) (*auth.Session, error)
	Delete(ctx context.Context, token string) error
	SetActiveOrg(ctx context.Context, token string, orgID int64) error
	ClearActiveOrg(ctx context.Context, token string) error
}

// OrgService is the organization and membership surface the server needs
type OrgService interface {
	CreateOrganization(ctx context.Context, userID int64, req *orgs.CreateOrganizationRequest) (*orgs.Organization, error)
	GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error)
	UpdateOrganization(ctx context.Context, id int64, req *orgs.UpdateOrganizationRequest) (*orgs.Organization, error)
	DeleteOrganization(ctx context.Context, id int64) error
	ListOrganizationsForUser(ctx context.Context, userID int64) ([]*orgs.UserOrganization, error)

	GetMembership(ctx context.Context, orgID, userID int64) (*orgs.Membership, error)
	ListMembers(ctx context.Context, orgID int64) ([]*orgs.Member, error)
	UpdateMemberRole(ctx context.Context, orgID, userID int64, role auth.Role) error
	RemoveMember(ctx context.Context, orgID, userID int64) error

	CreateInvitation(ctx context.Context, orgID int64, email string, role auth.Role, invitedBy int64, ttl time.Duration) (*orgs.Invitation, string, error)
	ListInvitations(ctx context.Context, orgID int64) ([]*orgs.Invitation, error)
	RevokeInvitation(ctx context.Context, orgID, invitationID int64) error
	AcceptInvitation(ctx context.Context, token string, userID int64) (*orgs.Membership, error)
}

// LimitService reports remaining organization slots
type LimitService interface {
	RemainingOrganizationSlots(ctx context.Context, userID int64) int
}

// UsernameService allocates, claims, and validates usernames
type UsernameService interface {
	Allocate(ctx context.Context, userID int64, name, email string) (string, error)
	Claim(ctx context.Context, userID int64, candidate string) error
	Validate(ctx context.Context, name string) (username.ValidationResult, error)
}

// ProjectService is the org-scoped budgeting surface the server needs
type ProjectService interface {
	CreateProject(ctx context.Context, orgID, userID int64, req *projects.CreateProjectRequest) (*projects.Project, error)
	GetProject(ctx context.Context, orgID, projectID int64) (*projects.Project, error)
	ListProjects(ctx context.Context, orgID int64) ([]*projects.Project, error)
	UpdateProject(ctx context.Context, orgID, projectID int64, req *projects.UpdateProjectRequest) (*projects.Project, error)
	DeleteProject(ctx context.Context, orgID, projectID int64) error

	CreateBudget(ctx context.Context, orgID, projectID, userID int64, req *projects.CreateBudgetRequest) (*projects.Budget, error)
	GetBudget(ctx context.Context, orgID, budgetID int64) (*projects.Budget, error)
	ListBudgets(ctx context.Context, orgID, projectID int64) ([]*projects.Budget, error)
	DeleteBudget(ctx context.Context, orgID, budgetID int64) error

	AddBudgetItem(ctx context.Context, orgID, budgetID int64, req *projects.BudgetItemRequest) (*projects.BudgetItem, error)
	ListBudgetItems(ctx context.Context, orgID, budgetID int64) ([]*projects.BudgetItem, error)
	UpdateBudgetItem(ctx context.Context, orgID, budgetID, itemID int64, req *projects.BudgetItemRequest) (*projects.BudgetItem, error)
	DeleteBudgetItem(ctx context.Context, orgID, budgetID, itemID int64) error

	CreateAnalysis(ctx context.Context, orgID, userID int64, req *projects.AnalysisRequest) (*projects.UnitPriceAnalysis, error)
	GetAnalysis(ctx context.Context, orgID, analysisID int64) (*projects.UnitPriceAnalysis, error)
	ListAnalyses(ctx context.Context, orgID int64) ([]*projects.UnitPriceAnalysis, error)
	UpdateAnalysis(ctx context.Context, orgID, analysisID int64, req *projects.AnalysisRequest) (*projects.UnitPriceAnalysis, error)
	DeleteAnalysis(ctx context.Context, orgID, analysisID int64) error
}

// Server represents our API server
type Server struct {
	router *mux.Router
	logger *observability.Logger

	sessions  SessionService
	users     UserService
	orgs      OrgService
	limits    LimitService
	gate      authz.Gate
	usernames UsernameService
	projects  ProjectService
	auditor   audit.Recorder

	invitationTTL time.Duration
}

// Deps holds the services the API server is built from
type Deps struct {
	Logger    *observability.Logger
	Sessions  SessionService
	Users     UserService
	Orgs      OrgService
	Limits    LimitService
	Gate      authz.Gate
	Usernames UsernameService
	Projects  ProjectService
	Auditor   audit.Recorder

	InvitationTTL time.Duration

	// Middleware applied to the authenticated API subtree
	SessionMW *middleware.SessionMiddleware
	OrgMW     *middleware.OrgContextMiddleware
	RateLimit *middleware.RateLimitMiddleware
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		logger:        deps.Logger,
		sessions:      deps.Sessions,
		users:         deps.Users,
		orgs:          deps.Orgs,
		limits:        deps.Limits,
		gate:          deps.Gate,
		usernames:     deps.Usernames,
		projects:      deps.Projects,
		auditor:       deps.Auditor,
		invitationTTL: deps.InvitationTTL,
	}
	if s.invitationTTL <= 0 {
		s.invitationTTL = 7 * 24 * time.Hour
	}

	s.router.Use(middleware.RequestIDMiddleware)
	if deps.RateLimit != nil {
		s.router.Use(deps.RateLimit.Handler)
	}

	s.setupRoutes(deps.SessionMW, deps.OrgMW)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes(sessionMW *middleware.SessionMiddleware, orgMW *middleware.OrgContextMiddleware) {
	// Unauthenticated routes
	s.router.HandleFunc("/api/v1/auth/register", s.register).Methods("POST")
	s.router.HandleFunc("/api/v1/auth/login", s.login).Methods("POST")
	s.router.HandleFunc("/api/v1/usernames/validate", s.validateUsername).Methods("GET")

	// Everything else requires a session
	api := s.router.PathPrefix("/api/v1").Subrouter()
	if sessionMW != nil {
		api.Use(sessionMW.Handler)
	}

	api.HandleFunc("/auth/logout", s.logout).Methods("POST")
	api.HandleFunc("/me", s.me).Methods("GET")
	api.HandleFunc("/me/username", s.claimUsername).Methods("POST")
	api.HandleFunc("/me/organization-slots", s.organizationSlots).Methods("GET")
	api.HandleFunc("/me/active-organization", s.switchActiveOrganization).Methods("PUT")
	api.HandleFunc("/me/active-organization", s.clearActiveOrganization).Methods("DELETE")

	api.HandleFunc("/orgs", s.createOrganization).Methods("POST")
	api.HandleFunc("/orgs", s.listOrganizations).Methods("GET")
	api.HandleFunc("/invitations/accept", s.acceptInvitation).Methods("POST")

	// Organization-scoped routes resolve the org onto the context first
	scoped := api.PathPrefix("/orgs/{org_id:[0-9]+}").Subrouter()
	if orgMW != nil {
		scoped.Use(orgMW.Handler)
	}

	scoped.HandleFunc("", s.getOrganization).Methods("GET")
	scoped.HandleFunc("", s.updateOrganization).Methods("PUT")
	scoped.HandleFunc("", s.deleteOrganization).Methods("DELETE")

	scoped.HandleFunc("/members", s.listMembers).Methods("GET")
	scoped.HandleFunc("/members/{user_id:[0-9]+}", s.updateMemberRole).Methods("PUT")
	scoped.HandleFunc("/members/{user_id:[0-9]+}", s.removeMember).Methods("DELETE")

	scoped.HandleFunc("/invitations", s.createInvitation).Methods("POST")
	scoped.HandleFunc("/invitations", s.listInvitations).Methods("GET")
	scoped.HandleFunc("/invitations/{invitation_id:[0-9]+}", s.revokeInvitation).Methods("DELETE")

	scoped.HandleFunc("/audit-log", s.listAuditLog).Methods("GET")

	scoped.HandleFunc("/projects", s.createProject).Methods("POST")
	scoped.HandleFunc("/projects", s.listProjects).Methods("GET")
	scoped.HandleFunc("/projects/{project_id:[0-9]+}", s.getProject).Methods("GET")
	scoped.HandleFunc("/projects/{project_id:[0-9]+}", s.updateProject).Methods("PUT")
	scoped.HandleFunc("/projects/{project_id:[0-9]+}", s.deleteProject).Methods("DELETE")

	scoped.HandleFunc("/projects/{project_id:[0-9]+}/budgets", s.createBudget).Methods("POST")
	scoped.HandleFunc("/projects/{project_id:[0-9]+}/budgets", s.listBudgets).Methods("GET")
	scoped.HandleFunc("/budgets/{budget_id:[0-9]+}", s.getBudget).Methods("GET")
	scoped.HandleFunc("/budgets/{budget_id:[0-9]+}", s.deleteBudget).Methods("DELETE")

	scoped.HandleFunc("/budgets/{budget_id:[0-9]+}/items", s.addBudgetItem).Methods("POST")
	scoped.HandleFunc("/budgets/{budget_id:[0-9]+}/items", s.listBudgetItems).Methods("GET")
	scoped.HandleFunc("/budgets/{budget_id:[0-9]+}/items/{item_id:[0-9]+}", s.updateBudgetItem).Methods("PUT")
	scoped.HandleFunc("/budgets/{budget_id:[0-9]+}/items/{item_id:[0-9]+}", s.deleteBudgetItem).Methods("DELETE")

	scoped.HandleFunc("/analyses", s.createAnalysis).Methods("POST")
	scoped.HandleFunc("/analyses", s.listAnalyses).Methods("GET")
	scoped.HandleFunc("/analyses/{analysis_id:[0-9]+}", s.getAnalysis).Methods("GET")
	scoped.HandleFunc("/analyses/{analysis_id:[0-9]+}", s.updateAnalysis).Methods("PUT")
	scoped.HandleFunc("/analyses/{analysis_id:[0-9]+}", s.deleteAnalysis).Methods("DELETE")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requireAuth returns the request's auth context, writing 401 when absent
func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (*auth.Context, bool) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return authCtx, true
}

// requireOrgRole authorizes the request against the resolved organization.
// Membership state is read fresh from storage on every call.
func (s *Server) requireOrgRole(w http.ResponseWriter, r *http.Request, minRole auth.Role) (*auth.Context, *orgs.Organization, bool) {
	authCtx, ok := s.requireAuth(w, r)
	if !ok {
		return nil, nil, false
	}

	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteForbidden(w, authz.ReasonNotMember)
		return nil, nil, false
	}

	decision, err := s.gate.Authorize(r.Context(), authCtx.User.ID, org.ID, minRole)
	if err != nil {
		s.logger.WithError(err).Error("authorization check failed")
		httputil.WriteInternalError(w)
		return nil, nil, false
	}
	if !decision.Allowed {
		httputil.WriteForbidden(w, decision.Reason)
		return nil, nil, false
	}

	return authCtx, org, true
}

func (s *Server) record(r *http.Request, orgID, actorID int64, action, targetType, targetID string, detail map[string]interface{}) {
	if s.auditor == nil {
		return
	}
	event := &audit.Event{
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if orgID != 0 {
		event.OrganizationID = &orgID
	}
	if actorID != 0 {
		event.ActorID = &actorID
	}
	s.auditor.Record(r.Context(), event)
}
