package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/outlinehq/go-outline-editor/outline"
)

// Open connects to Postgres via the pgx stdlib driver and verifies the
// connection before returning.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the nodes table and its indexes if they do not exist.
// The parent and prev foreign keys are deferred so multi-node rewrites can
// pass through intermediate states inside a transaction.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS nodes (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL,
			parent_id UUID REFERENCES nodes(id) DEFERRABLE INITIALLY DEFERRED,
			prev_id UUID REFERENCES nodes(id) DEFERRABLE INITIALLY DEFERRED,
			content TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure nodes table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS nodes_document_parent_idx ON nodes (document_id, parent_id)`,
		`CREATE INDEX IF NOT EXISTS nodes_document_prev_idx ON nodes (document_id, prev_id)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}

// PostgresStore persists nodes in a Postgres nodes table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const nodeColumns = `id, document_id, parent_id, prev_id, content, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (outline.Node, error) {
	var (
		n      outline.Node
		parent uuid.NullUUID
		prev   uuid.NullUUID
	)
	if err := row.Scan(&n.ID, &n.DocumentID, &parent, &prev, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return outline.Node{}, err
	}
	if parent.Valid {
		id := parent.UUID
		n.ParentID = &id
	}
	if prev.Valid {
		id := prev.UUID
		n.PrevID = &id
	}
	return n, nil
}

func nullableID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*outline.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id=$1`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, outline.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return &n, nil
}

func (s *PostgresStore) ListDocument(ctx context.Context, docID uuid.UUID) ([]outline.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE document_id=$1`, docID)
	if err != nil {
		return nil, fmt.Errorf("list document: %w", err)
	}
	return collectNodes(rows)
}

func (s *PostgresStore) ChildrenOf(ctx context.Context, docID uuid.UUID, parentID *uuid.UUID) ([]outline.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE document_id=$1 AND parent_id IS NOT DISTINCT FROM $2
	`, docID, nullableID(parentID))
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return collectNodes(rows)
}

func (s *PostgresStore) NodeAfter(ctx context.Context, docID, prevID uuid.UUID) (*outline.Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+nodeColumns+`
		FROM nodes
		WHERE document_id=$1 AND prev_id=$2
	`, docID, prevID)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("node after %s: %w", prevID, err)
	}
	return &n, nil
}

// Apply writes the whole change set in one transaction.
func (s *PostgresStore) Apply(ctx context.Context, cs outline.ChangeSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply tx: %w", err)
	}

	const upsert = `
		INSERT INTO nodes (id, document_id, parent_id, prev_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			parent_id=EXCLUDED.parent_id,
			prev_id=EXCLUDED.prev_id,
			content=EXCLUDED.content,
			updated_at=EXCLUDED.updated_at
	`
	for _, n := range cs.Upserts {
		if _, err := tx.ExecContext(ctx, upsert,
			n.ID, n.DocumentID, nullableID(n.ParentID), nullableID(n.PrevID),
			n.Content, n.CreatedAt, n.UpdatedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert node %s: %w", n.ID, err)
		}
	}
	for _, id := range cs.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id=$1`, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete node %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func collectNodes(rows *sql.Rows) ([]outline.Node, error) {
	defer rows.Close()

	result := make([]outline.Node, 0)
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return result, nil
}
