package audit

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumbline/plumbline/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID := int64(10)
	actorID := int64(1)
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(orgID, actorID, ActionMemberAdded, "membership", "2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := NewDBRecorder(db, testLogger())
	rec.Record(context.Background(), &Event{
		OrganizationID: &orgID,
		ActorID:        &actorID,
		Action:         ActionMemberAdded,
		TargetType:     "membership",
		TargetID:       "2",
		Detail:         map[string]interface{}{"role": "member"},
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSwallowsWriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnError(errors.New("connection refused"))

	rec := NewDBRecorder(db, testLogger())
	// Must not panic or surface the error
	rec.Record(context.Background(), &Event{Action: ActionOrgCreated, TargetType: "organization"})
}

func TestListForOrganization(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT id, organization_id, actor_id").
		WithArgs(int64(10), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "actor_id", "action", "target_type", "target_id", "detail", "created_at"}).
			AddRow(2, 10, 1, ActionMemberRemoved, "membership", "5", []byte(`{"role":"viewer"}`), now).
			AddRow(1, 10, 1, ActionOrgCreated, "organization", "10", []byte(`{}`), now.Add(-time.Hour)))

	rec := NewDBRecorder(db, testLogger())
	events, err := rec.ListForOrganization(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ActionMemberRemoved, events[0].Action)
	assert.Equal(t, "viewer", events[0].Detail["role"])
}
