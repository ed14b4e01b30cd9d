package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the full schema migration set in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(20) UNIQUE,
					email VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255),
					password_hash VARCHAR(255) NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP
				);

				CREATE INDEX idx_users_email ON users(email);
				CREATE INDEX idx_users_username ON users(username);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(100) NOT NULL UNIQUE,
					org_type VARCHAR(50) NOT NULL DEFAULT 'contractor',
					settings JSONB NOT NULL DEFAULT '{}',
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE INDEX idx_organizations_slug ON organizations(slug);
				CREATE INDEX idx_organizations_deleted_at ON organizations(deleted_at);
			`,
		},
		{
			Version:     3,
			Description: "Create organization_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_members (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, user_id)
				);

				CREATE INDEX idx_org_members_organization_id ON organization_members(organization_id);
				CREATE INDEX idx_org_members_user_id ON organization_members(user_id);
				CREATE INDEX idx_org_members_role ON organization_members(role);
			`,
		},
		{
			Version:     4,
			Description: "Create subscriptions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS subscriptions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					tier VARCHAR(50) NOT NULL DEFAULT 'free',
					status VARCHAR(50) NOT NULL DEFAULT 'active',
					current_period_end TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(user_id)
				);

				CREATE INDEX idx_subscriptions_user_id ON subscriptions(user_id);
			`,
		},
		{
			Version:     5,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role VARCHAR(50) NOT NULL,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					invited_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL,
					accepted_at TIMESTAMP,
					UNIQUE(organization_id, email)
				);

				CREATE INDEX idx_invitations_token_hash ON invitations(token_hash);
				CREATE INDEX idx_invitations_expires_at ON invitations(expires_at);
			`,
		},
		{
			Version:     6,
			Description: "Create projects table",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					status VARCHAR(50) NOT NULL DEFAULT 'active',
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					deleted_at TIMESTAMP
				);

				CREATE INDEX idx_projects_organization_id ON projects(organization_id);
				CREATE INDEX idx_projects_deleted_at ON projects(deleted_at);
			`,
		},
		{
			Version:     7,
			Description: "Create budgets and budget_items tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS budgets (
					id BIGSERIAL PRIMARY KEY,
					project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					currency VARCHAR(3) NOT NULL DEFAULT 'USD',
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS budget_items (
					id BIGSERIAL PRIMARY KEY,
					budget_id BIGINT NOT NULL REFERENCES budgets(id) ON DELETE CASCADE,
					description VARCHAR(500) NOT NULL,
					unit VARCHAR(50),
					quantity NUMERIC(14,4) NOT NULL DEFAULT 0,
					unit_price NUMERIC(14,4) NOT NULL DEFAULT 0,
					position INT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_budgets_project_id ON budgets(project_id);
				CREATE INDEX idx_budget_items_budget_id ON budget_items(budget_id);
			`,
		},
		{
			Version:     8,
			Description: "Create unit_price_analyses table",
			SQL: `
				CREATE TABLE IF NOT EXISTS unit_price_analyses (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					code VARCHAR(50) NOT NULL,
					description VARCHAR(500) NOT NULL,
					unit VARCHAR(50),
					total_price NUMERIC(14,4) NOT NULL DEFAULT 0,
					components JSONB NOT NULL DEFAULT '[]',
					created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, code)
				);

				CREATE INDEX idx_upa_organization_id ON unit_price_analyses(organization_id);
			`,
		},
		{
			Version:     9,
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT,
					actor_id BIGINT,
					action VARCHAR(100) NOT NULL,
					target_type VARCHAR(50) NOT NULL,
					target_id VARCHAR(255),
					detail JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_audit_log_organization_id ON audit_log(organization_id);
				CREATE INDEX idx_audit_log_actor_id ON audit_log(actor_id);
				CREATE INDEX idx_audit_log_created_at ON audit_log(created_at);
			`,
		},
		{
			Version:     10,
			Description: "Create usage_rollups table",
			SQL: `
				CREATE TABLE IF NOT EXISTS usage_rollups (
					day DATE PRIMARY KEY,
					organizations BIGINT NOT NULL DEFAULT 0,
					users BIGINT NOT NULL DEFAULT 0,
					memberships BIGINT NOT NULL DEFAULT 0,
					active_sessions BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
