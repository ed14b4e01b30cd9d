package api

import (
	"errors"
	"net/http"

	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/httputil"
	"github.com/plumbline/plumbline/pkg/orgs"
	"github.com/plumbline/plumbline/pkg/projects"
	"github.com/plumbline/plumbline/pkg/username"
)

// serviceError maps service-layer errors onto the HTTP contract. Anything
// unrecognized becomes a logged 500 with no internal detail in the body.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orgs.ErrNotFound),
		errors.Is(err, orgs.ErrMemberNotFound),
		errors.Is(err, orgs.ErrInvitationNotFound),
		errors.Is(err, projects.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, orgs.ErrAlreadyMember),
		errors.Is(err, projects.ErrCodeConflict),
		errors.Is(err, auth.ErrEmailTaken),
		errors.Is(err, username.ErrAlreadySet):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, orgs.ErrInvitationExpired):
		httputil.WriteErrorMessage(w, http.StatusGone, err.Error())
	case errors.Is(err, orgs.ErrLimitReached):
		httputil.WriteForbidden(w, err.Error())
	default:
		s.logger.WithError(err).Error("request failed")
		httputil.WriteInternalError(w)
	}
}
