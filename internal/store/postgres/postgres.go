// Package postgres implements the store contract on pgx. Every project owns
// one schema; a session pins a pooled connection, points search_path at the
// project's schema and opens a transaction the caller commits or rolls back.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptlane/promptlib/internal/store"
)

type Accessor struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Accessor {
	return &Accessor{pool: pool}
}

func schemaName(projectID uuid.UUID) string {
	return "project_" + strings.ReplaceAll(projectID.String(), "-", "")
}

const projectDDL = `
CREATE TABLE IF NOT EXISTS prompts (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	collections JSONB NOT NULL DEFAULT '[]',
	shared_id UUID,
	shared_owner_id UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS prompt_versions (
	id UUID PRIMARY KEY,
	prompt_id UUID NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	author_id UUID NOT NULL,
	context TEXT NOT NULL DEFAULT '',
	model_settings JSONB,
	variables JSONB NOT NULL DEFAULT '[]',
	messages JSONB NOT NULL DEFAULT '[]',
	tags JSONB NOT NULL DEFAULT '[]',
	meta JSONB NOT NULL DEFAULT '{}',
	origin JSONB,
	origin_hash TEXT NOT NULL DEFAULT '',
	reject_details TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (prompt_id, name)
);
CREATE UNIQUE INDEX IF NOT EXISTS prompt_versions_origin_hash_key
	ON prompt_versions (origin_hash) WHERE origin_hash <> '';
CREATE TABLE IF NOT EXISTS collections (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	author_id UUID NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft',
	prompts JSONB NOT NULL DEFAULT '[]',
	shared_id UUID,
	shared_owner_id UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS collections_shared_key
	ON collections (shared_owner_id, shared_id)
	WHERE shared_id IS NOT NULL AND shared_owner_id IS NOT NULL;
CREATE TABLE IF NOT EXISTS tags (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
`

func (a *Accessor) CreateProject(ctx context.Context, projectID uuid.UUID) error {
	schema := schemaName(projectID)
	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", pgx.Identifier{schema}.Sanitize())); err != nil {
		if isUniqueViolation(err) || isDuplicateSchema(err) {
			return fmt.Errorf("project %s: %w", projectID, store.ErrConflict)
		}
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s", pgx.Identifier{schema}.Sanitize())); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	if _, err := tx.Exec(ctx, projectDDL); err != nil {
		return fmt.Errorf("create project tables: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (a *Accessor) Session(ctx context.Context, projectID uuid.UUID) (store.Session, error) {
	schema := schemaName(projectID)

	var exists bool
	err := a.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)", schema,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check project schema: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("project %s: %w", projectID, store.ErrNotFound)
	}

	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s", pgx.Identifier{schema}.Sanitize())); err != nil {
		tx.Rollback(ctx)
		conn.Release()
		return nil, fmt.Errorf("set search_path: %w", err)
	}

	return &session{projectID: projectID, conn: conn, tx: tx}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isDuplicateSchema(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P06"
}

// wrapErr folds driver errors into the store sentinels.
func wrapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, store.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
