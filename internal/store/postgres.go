package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	insertDocumentSQL  = `INSERT INTO documents (id, collection, body, created_at) VALUES ($1, $2, $3::jsonb, $4)`
	findDocumentsSQL   = `SELECT id, body, created_at FROM documents WHERE collection = $1 AND body @> $2::jsonb ORDER BY created_at DESC LIMIT $3`
	findDocumentSQL    = `SELECT id, body, created_at FROM documents WHERE collection = $1 AND id = $2`
	deleteDocumentsSQL = `DELETE FROM documents WHERE collection = $1 AND body @> $2::jsonb`
)

// PostgresStore keeps documents in a single JSONB table.
type PostgresStore struct {
	db  pgxDB
	now func() time.Time
}

// NewPostgresStore wraps a pgx pool (or anything exposing the same methods).
func NewPostgresStore(db pgxDB) *PostgresStore {
	if db == nil {
		panic("store: pgx pool required")
	}
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (p *PostgresStore) Insert(ctx context.Context, collection string, body any) (Document, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return Document{}, err
	}
	doc := Document{ID: uuid.NewString(), Body: payload, CreatedAt: p.now()}
	if _, err := p.db.Exec(ctx, insertDocumentSQL, doc.ID, collection, string(payload), doc.CreatedAt); err != nil {
		return Document{}, fmt.Errorf("store: insert %s: %w", collection, err)
	}
	return doc, nil
}

func (p *PostgresStore) InsertMany(ctx context.Context, collection string, bodies []any) (int, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, body := range bodies {
		payload, err := encodeBody(body)
		if err != nil {
			return 0, fmt.Errorf("store: document %d: %w", i, err)
		}
		if _, err := tx.Exec(ctx, insertDocumentSQL, uuid.NewString(), collection, string(payload), p.now()); err != nil {
			return 0, fmt.Errorf("store: insert %s: %w", collection, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return len(bodies), nil
}

func (p *PostgresStore) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	match, err := filterJSON(filter)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.Query(ctx, findDocumentsSQL, collection, match, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: find %s: %w", collection, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		var body []byte
		if err := rows.Scan(&doc.ID, &body, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", collection, err)
		}
		doc.Body = body
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: find %s: %w", collection, err)
	}
	return out, nil
}

func (p *PostgresStore) FindByID(ctx context.Context, collection, id string) (*Document, error) {
	var doc Document
	var body []byte
	err := p.db.QueryRow(ctx, findDocumentSQL, collection, id).Scan(&doc.ID, &body, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}
	doc.Body = body
	return &doc, nil
}

func (p *PostgresStore) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	match, err := filterJSON(filter)
	if err != nil {
		return 0, err
	}
	tag, err := p.db.Exec(ctx, deleteDocumentsSQL, collection, match)
	if err != nil {
		return 0, fmt.Errorf("store: delete %s: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

func filterJSON(filter Filter) (string, error) {
	if len(filter) == 0 {
		return "{}", nil
	}
	payload, err := encodeBody(map[string]any(filter))
	if err != nil {
		return "", fmt.Errorf("store: filter: %w", err)
	}
	return string(payload), nil
}
