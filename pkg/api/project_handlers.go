package api

import (
	"net/http"

	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/httputil"
	"github.com/plumbline/plumbline/pkg/projects"
)

// Project, budget, and analysis endpoints share one authorization shape:
// viewers read, members write, admins delete. Every service call is scoped
// by the organization id so rows can never leak across tenants.

// createProject handles POST /api/v1/orgs/{org_id}/projects
func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	authCtx, org, ok := s.requireOrgRole(w, r, auth.RoleMember)
	if !ok {
		return
	}

	var req projects.CreateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	fields := httputil.FieldErrors{}
	fields.Require("name", req.Name)
	if fields.Write(w) {
		return
	}

	project, err := s.projects.CreateProject(r.Context(), org.ID, authCtx.User.ID, &req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteCreated(w, project)
}

// listProjects handles GET /api/v1/orgs/{org_id}/projects
func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleViewer)
	if !ok {
		return
	}

	list, err := s.projects.ListProjects(r.Context(), org.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// getProject handles GET /api/v1/orgs/{org_id}/projects/{project_id}
func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	project, err := s.projects.GetProject(r.Context(), org.ID, projectID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// updateProject handles PUT /api/v1/orgs/{org_id}/projects/{project_id}
func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleMember)
	if !ok {
		return
	}
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	var req projects.UpdateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		fields := httputil.FieldErrors{}
		fields.Add("status", "status must be active, on_hold, or finished")
		fields.Write(w)
		return
	}

	project, err := s.projects.UpdateProject(r.Context(), org.ID, projectID, &req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// deleteProject handles DELETE /api/v1/orgs/{org_id}/projects/{project_id}
func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	if err := s.projects.DeleteProject(r.Context(), org.ID, projectID); err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// createBudget handles POST /api/v1/orgs/{org_id}/projects/{project_id}/budgets
func (s *Server) createBudget(w http.ResponseWriter, r *http.Request) {
	authCtx, org, ok := s.requireOrgRole(w, r, auth.RoleMember)
	if !ok {
		return
	}
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	var req projects.CreateBudgetRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	fields := httputil.FieldErrors{}
	fields.Require("name", req.Name)
	if fields.Write(w) {
		return
	}

	budget, err := s.projects.CreateBudget(r.Context(), org.ID, projectID, authCtx.User.ID, &req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteCreated(w, budget)
}

// listBudgets handles GET /api/v1/orgs/{org_id}/projects/{project_id}/budgets
func (s *Server) listBudgets(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "project_id")
	if !ok {
		return
	}

	budgets, err := s.projects.ListBudgets(r.Context(), org.ID, projectID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, budgets)
}

// getBudget handles GET /api/v1/orgs/{org_id}/budgets/{budget_id}
func (s *Server) getBudget(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	budgetID, ok := httputil.ParsePathInt64OrError(w, r, "budget_id")
	if !ok {
		return
	}

	budget, err := s.projects.GetBudget(r.Context(), org.ID, budgetID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, budget)
}

// deleteBudget handles DELETE /api/v1/orgs/{org_id}/budgets/{budget_id}
func (s *Server) deleteBudget(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	budgetID, ok := httputil.ParsePathInt64OrError(w, r, "budget_id")
	if !ok {
		return
	}

	if err := s.projects.DeleteBudget(r.Context(), org.ID, budgetID); err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// addBudgetItem handles POST /api/v1/orgs/{org_id}/budgets/{budget_id}/items
func (s *Server) addBudgetItem(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleMember)
	if !ok {
		return
	}
	budgetID, ok := httputil.ParsePathInt64OrError(w, r, "budget_id")
	if !ok {
		return
	}

	var req projects.BudgetItemRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	fields := httputil.FieldErrors{}
	fields.Require("description", req.Description)
	if req.Quantity < 0 {
		fields.Add("quantity", "quantity must not be negative")
	}
	if fields.Write(w) {
		return
	}

	item, err := s.projects.AddBudgetItem(r.Context(), org.ID, budgetID, &req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteCreated(w, item)
}

// listBudgetItems handles GET /api/v1/orgs/{org_id}/budgets/{budget_id}/items
func (s *Server) listBudgetItems(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	budgetID, ok := httputil.ParsePathInt64OrError(w, r, "budget_id")
	if !ok {
		return
	}

	items, err := s.projects.ListBudgetItems(r.Context(), org.ID, budgetID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, items)
}

// updateBudgetItem handles PUT /api/v1/orgs/{org_id}/budgets/{budget_id}/items/{item_id}
func (s *Server) updateBudgetItem(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleMember)
	if !ok {
		return
	}
	budgetID, ok := httputil.ParsePathInt64OrError(w, r, "budget_id")
	if !ok {
		return
	}
	itemID, ok := httputil.ParsePathInt64OrError(w, r, "item_id")
	if !ok {
		return
	}

	var req projects.BudgetItemRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	item, err := s.projects.UpdateBudgetItem(r.Context(), org.ID, budgetID, itemID, &req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, item)
}

// deleteBudgetItem handles DELETE /api/v1/orgs/{org_id}/budgets/{budget_id}/items/{item_id}
func (s *Server) deleteBudgetItem(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleMember)
	if !ok {
		return
	}
	budgetID, ok := httputil.ParsePathInt64OrError(w, r, "budget_id")
	if !ok {
		return
	}
	itemID, ok := httputil.ParsePathInt64OrError(w, r, "item_id")
	if !ok {
		return
	}

	if err := s.projects.DeleteBudgetItem(r.Context(), org.ID, budgetID, itemID); err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// createAnalysis handles POST /api/v1/orgs/{org_id}/analyses
func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	authCtx, org, ok := s.requireOrgRole(w, r, auth.RoleMember)
	if !ok {
		return
	}

	var req projects.AnalysisRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	fields := httputil.FieldErrors{}
	fields.Require("code", req.Code)
	fields.Require("description", req.Description)
	if fields.Write(w) {
		return
	}

	analysis, err := s.projects.CreateAnalysis(r.Context(), org.ID, authCtx.User.ID, &req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteCreated(w, analysis)
}

// listAnalyses handles GET /api/v1/orgs/{org_id}/analyses
func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleViewer)
	if !ok {
		return
	}

	analyses, err := s.projects.ListAnalyses(r.Context(), org.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, analyses)
}

// getAnalysis handles GET /api/v1/orgs/{org_id}/analyses/{analysis_id}
func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleViewer)
	if !ok {
		return
	}
	analysisID, ok := httputil.ParsePathInt64OrError(w, r, "analysis_id")
	if !ok {
		return
	}

	analysis, err := s.projects.GetAnalysis(r.Context(), org.ID, analysisID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, analysis)
}

// updateAnalysis handles PUT /api/v1/orgs/{org_id}/analyses/{analysis_id}
func (s *Server) updateAnalysis(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleMember)
	if !ok {
		return
	}
	analysisID, ok := httputil.ParsePathInt64OrError(w, r, "analysis_id")
	if !ok {
		return
	}

	var req projects.AnalysisRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	analysis, err := s.projects.UpdateAnalysis(r.Context(), org.ID, analysisID, &req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteSuccess(w, analysis)
}

// deleteAnalysis handles DELETE /api/v1/orgs/{org_id}/analyses/{analysis_id}
func (s *Server) deleteAnalysis(w http.ResponseWriter, r *http.Request) {
	_, org, ok := s.requireOrgRole(w, r, auth.RoleAdmin)
	if !ok {
		return
	}
	analysisID, ok := httputil.ParsePathInt64OrError(w, r, "analysis_id")
	if !ok {
		return
	}

	if err := s.projects.DeleteAnalysis(r.Context(), org.ID, analysisID); err != nil {
		s.serviceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
