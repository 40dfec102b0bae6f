package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/corefacility/pkg/query"
)

// Migration represents one schema step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// serial renders the auto-incrementing primary key column for the
// dialect.
func serial(d query.Dialect) string {
	if d == query.PostgreSQL {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// GetMigrations returns every core migration for the dialect, in order.
func GetMigrations(d query.Dialect) []Migration {
	pk := serial(d)
	return []Migration{
		{
			Version:     1,
			Description: "Create user table",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS core_user (
					id %s,
					login VARCHAR(100) NOT NULL UNIQUE,
					password_hash TEXT,
					name VARCHAR(100),
					surname VARCHAR(100),
					email VARCHAR(254),
					phone VARCHAR(20),
					is_locked BOOLEAN NOT NULL DEFAULT FALSE,
					is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
					is_support BOOLEAN NOT NULL DEFAULT FALSE,
					avatar TEXT,
					unix_group VARCHAR(32),
					home_dir TEXT,
					activation_code_hash TEXT,
					activation_code_expiry_date TIMESTAMP
				);
				CREATE INDEX IF NOT EXISTS idx_core_user_login ON core_user(login);
			`, pk),
		},
		{
			Version:     2,
			Description: "Create group and membership tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS core_group (
					id %s,
					name VARCHAR(256) NOT NULL
				);
				CREATE TABLE IF NOT EXISTS core_groupuser (
					id %s,
					group_id BIGINT NOT NULL REFERENCES core_group(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES core_user(id) ON DELETE CASCADE,
					is_governor BOOLEAN NOT NULL DEFAULT FALSE,
					UNIQUE(group_id, user_id)
				);
				CREATE INDEX IF NOT EXISTS idx_core_groupuser_group ON core_groupuser(group_id);
				CREATE INDEX IF NOT EXISTS idx_core_groupuser_user ON core_groupuser(user_id);
			`, pk, pk),
		},
		{
			Version:     3,
			Description: "Create project table",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS core_project (
					id %s,
					alias VARCHAR(64) NOT NULL UNIQUE,
					name VARCHAR(64) NOT NULL,
					description TEXT,
					avatar TEXT,
					root_group_id BIGINT NOT NULL REFERENCES core_group(id),
					project_dir TEXT,
					unix_group VARCHAR(32)
				);
				CREATE INDEX IF NOT EXISTS idx_core_project_alias ON core_project(alias);
				CREATE INDEX IF NOT EXISTS idx_core_project_root_group ON core_project(root_group_id);
			`, pk),
		},
		{
			Version:     4,
			Description: "Create access level and permission tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS core_accesslevel (
					id %s,
					type VARCHAR(3) NOT NULL,
					alias VARCHAR(50) NOT NULL,
					name VARCHAR(64) NOT NULL,
					UNIQUE(type, alias)
				);
				CREATE TABLE IF NOT EXISTS core_projectpermission (
					id %s,
					project_id BIGINT NOT NULL REFERENCES core_project(id) ON DELETE CASCADE,
					group_id BIGINT REFERENCES core_group(id) ON DELETE CASCADE,
					access_level_id BIGINT NOT NULL REFERENCES core_accesslevel(id)
				);
				CREATE INDEX IF NOT EXISTS idx_core_projectpermission_project
					ON core_projectpermission(project_id);
				CREATE TABLE IF NOT EXISTS core_apppermission (
					id %s,
					application_id VARCHAR(36) NOT NULL,
					group_id BIGINT REFERENCES core_group(id) ON DELETE CASCADE,
					access_level_id BIGINT NOT NULL REFERENCES core_accesslevel(id)
				);
				CREATE INDEX IF NOT EXISTS idx_core_apppermission_app
					ON core_apppermission(application_id);
			`, pk, pk, pk),
		},
		{
			Version:     5,
			Description: "Create module and entry point tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS core_module (
					uuid VARCHAR(36) PRIMARY KEY,
					parent_entry_point_id BIGINT,
					alias VARCHAR(64) NOT NULL,
					name VARCHAR(128) NOT NULL,
					html_code TEXT,
					app_class VARCHAR(1024) NOT NULL,
					user_settings TEXT NOT NULL DEFAULT '{}',
					is_application BOOLEAN NOT NULL DEFAULT FALSE,
					is_enabled BOOLEAN NOT NULL DEFAULT TRUE
				);
				CREATE TABLE IF NOT EXISTS core_entrypoint (
					id %s,
					alias VARCHAR(64) NOT NULL,
					belonging_module_uuid VARCHAR(36) NOT NULL REFERENCES core_module(uuid) ON DELETE CASCADE,
					name VARCHAR(128) NOT NULL,
					type VARCHAR(3) NOT NULL,
					entry_point_class VARCHAR(1024) NOT NULL,
					UNIQUE(alias, belonging_module_uuid)
				);
			`, pk),
		},
		{
			Version:     6,
			Description: "Create token tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS core_authentication (
					id %s,
					user_id BIGINT NOT NULL REFERENCES core_user(id) ON DELETE CASCADE,
					token_hash TEXT NOT NULL,
					expiration_date TIMESTAMP NOT NULL
				);
				CREATE TABLE IF NOT EXISTS core_cookie (
					id %s,
					user_id BIGINT NOT NULL REFERENCES core_user(id) ON DELETE CASCADE,
					token_hash TEXT NOT NULL,
					expiration_date TIMESTAMP NOT NULL
				);
				CREATE TABLE IF NOT EXISTS core_externalauthsession (
					id %s,
					module_uuid VARCHAR(36) NOT NULL,
					token_hash TEXT NOT NULL,
					expiration_date TIMESTAMP NOT NULL
				);
			`, pk, pk, pk),
		},
		{
			Version:     7,
			Description: "Create failed authorization table",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS core_failedauthorizations (
					id %s,
					auth_time TIMESTAMP NOT NULL,
					ip VARCHAR(45) NOT NULL,
					user_id BIGINT REFERENCES core_user(id) ON DELETE CASCADE
				);
				CREATE INDEX IF NOT EXISTS idx_core_failedauth_pair
					ON core_failedauthorizations(ip, user_id);
			`, pk),
		},
		{
			Version:     8,
			Description: "Create request log tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS core_log (
					id %s,
					request_date TIMESTAMP NOT NULL,
					log_address TEXT,
					request_method VARCHAR(10),
					operation_description TEXT,
					user_id BIGINT REFERENCES core_user(id) ON DELETE SET NULL,
					ip_address VARCHAR(45),
					response_status INTEGER
				);
				CREATE TABLE IF NOT EXISTS core_logrecord (
					id %s,
					log_id BIGINT NOT NULL REFERENCES core_log(id) ON DELETE CASCADE,
					record_time TIMESTAMP NOT NULL,
					level VARCHAR(3) NOT NULL,
					message TEXT NOT NULL
				);
			`, pk, pk),
		},
		{
			Version:     9,
			Description: "Create project application table",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS core_projectapplication (
					id %s,
					project_id BIGINT NOT NULL REFERENCES core_project(id) ON DELETE CASCADE,
					application_uuid VARCHAR(36) NOT NULL REFERENCES core_module(uuid) ON DELETE CASCADE,
					is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
					UNIQUE(project_id, application_uuid)
				);
				CREATE INDEX IF NOT EXISTS idx_core_projectapplication_project
					ON core_projectapplication(project_id);
			`, pk),
		},
	}
}

// RunMigrations applies every pending migration. Versions already
// recorded in core_schema_version are skipped.
func RunMigrations(ctx context.Context, db *sql.DB, d query.Dialect) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS core_schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create version table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, "SELECT version FROM core_schema_version")
	if err != nil {
		return fmt.Errorf("failed to read applied versions: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range GetMigrations(d) {
		if applied[m.Version] {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		insert := d.Rebind("INSERT INTO core_schema_version (version, description) VALUES (?, ?)")
		if _, err := tx.ExecContext(ctx, insert, m.Version, m.Description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
