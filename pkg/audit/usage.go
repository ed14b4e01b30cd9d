package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionCounter reports how many sessions are currently live. Implemented
// by the session store.
type SessionCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

// UsageRollup is one day's platform-wide usage snapshot
type UsageRollup struct {
	Day            time.Time `json:"day"`
	Organizations  int64     `json:"organizations"`
	Users          int64     `json:"users"`
	Memberships    int64     `json:"memberships"`
	ActiveSessions int64     `json:"active_sessions"`
}

// UsageAggregator writes daily usage rollups. Re-running a day overwrites
// that day's row, so backfills and retries are safe.
type UsageAggregator struct {
	db       *sql.DB
	sessions SessionCounter
}

// NewUsageAggregator creates a UsageAggregator. sessions may be nil when
// no Redis connection is available; the session count is then recorded
// as zero.
func NewUsageAggregator(db *sql.DB, sessions SessionCounter) *UsageAggregator {
	return &UsageAggregator{db: db, sessions: sessions}
}

// Rollup computes and stores the usage snapshot for the given day
func (a *UsageAggregator) Rollup(ctx context.Context, day time.Time) (*UsageRollup, error) {
	rollup := &UsageRollup{Day: day.UTC().Truncate(24 * time.Hour)}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM organizations WHERE deleted_at IS NULL", &rollup.Organizations},
		{"SELECT COUNT(*) FROM users WHERE is_active", &rollup.Users},
		{"SELECT COUNT(*) FROM organization_members", &rollup.Memberships},
	}
	for _, c := range counts {
		if err := a.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count usage: %w", err)
		}
	}

	if a.sessions != nil {
		count, err := a.sessions.CountActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count active sessions: %w", err)
		}
		rollup.ActiveSessions = count
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO usage_rollups (day, organizations, users, memberships, active_sessions)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (day) DO UPDATE SET
			organizations = EXCLUDED.organizations,
			users = EXCLUDED.users,
			memberships = EXCLUDED.memberships,
			active_sessions = EXCLUDED.active_sessions
	`, rollup.Day, rollup.Organizations, rollup.Users, rollup.Memberships, rollup.ActiveSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to store usage rollup: %w", err)
	}

	return rollup, nil
}
