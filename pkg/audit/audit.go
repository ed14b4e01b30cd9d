// Package audit records membership and organization changes to the
// audit_log table. Entries are append-only; failures to record are
// logged and never fail the underlying operation.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/plumbline/plumbline/pkg/observability"
)

// Actions recorded by the service
const (
	ActionOrgCreated        = "organization.created"
	ActionOrgUpdated        = "organization.updated"
	ActionOrgDeleted        = "organization.deleted"
	ActionMemberAdded       = "member.added"
	ActionMemberRoleChanged = "member.role_changed"
	ActionMemberRemoved     = "member.removed"
	ActionInvitationSent    = "invitation.sent"
	ActionInvitationRevoked = "invitation.revoked"
	ActionUsernameAssigned  = "username.assigned"
)

// Event is one audit log entry
type Event struct {
	ID             int64                  `json:"id"`
	OrganizationID *int64                 `json:"organization_id,omitempty"`
	ActorID        *int64                 `json:"actor_id,omitempty"`
	Action         string                 `json:"action"`
	TargetType     string                 `json:"target_type"`
	TargetID       string                 `json:"target_id,omitempty"`
	Detail         map[string]interface{} `json:"detail,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Recorder writes audit events
type Recorder interface {
	Record(ctx context.Context, event *Event)
}

// DBRecorder implements Recorder over PostgreSQL
type DBRecorder struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewDBRecorder creates a DBRecorder
func NewDBRecorder(db *sql.DB, logger *observability.Logger) *DBRecorder {
	return &DBRecorder{db: db, logger: logger}
}

// Record writes the event. Recording is best-effort: a write failure is
// logged and swallowed so an audit outage cannot take down mutations.
func (r *DBRecorder) Record(ctx context.Context, event *Event) {
	detail := event.Detail
	if detail == nil {
		detail = map[string]interface{}{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal audit detail")
		return
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_log (organization_id, actor_id, action, target_type, target_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.OrganizationID, event.ActorID, event.Action, event.TargetType, event.TargetID, detailJSON)
	if err != nil {
		r.logger.WithError(err).WithField("action", event.Action).Error("Failed to record audit event")
	}
}

// ListForOrganization returns an organization's audit trail, newest first
func (r *DBRecorder) ListForOrganization(ctx context.Context, orgID int64, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, actor_id, action, target_type, COALESCE(target_id, ''), detail, created_at
		FROM audit_log
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var detailJSON []byte
		if err := rows.Scan(
			&e.ID, &e.OrganizationID, &e.ActorID, &e.Action,
			&e.TargetType, &e.TargetID, &detailJSON, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit detail: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit events: %w", err)
	}

	return events, nil
}
