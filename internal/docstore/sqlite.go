package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteStore keeps documents in the documents table created by the db
// package migrations.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, data map[string]any) (*Document, error) {
	return s.insert(ctx, collection, newID(), data)
}

func (s *SQLiteStore) insert(ctx context.Context, collection, id string, data map[string]any) (*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := validateFields(data); err != nil {
		return nil, err
	}
	raw, err := encode(data)
	if err != nil {
		return nil, err
	}

	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, collection, id, string(raw), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s/%s: %w", collection, id, err)
	}
	return s.Get(ctx, collection, id)
}

func (s *SQLiteStore) Put(ctx context.Context, collection, id string, data map[string]any) (*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := validateFields(data); err != nil {
		return nil, err
	}
	raw, err := encode(data)
	if err != nil {
		return nil, err
	}

	now := formatTime(s.now())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, collection, id, string(raw), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return s.Get(ctx, collection, id)
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, data, created_at, updated_at FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)
	return scanDocument(collection, row)
}

func (s *SQLiteStore) List(ctx context.Context, collection string, dir Direction) ([]*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, data, created_at, updated_at FROM documents
		WHERE collection = ?
		ORDER BY created_at `+dir.sql()+`, id `+dir.sql(), collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(collection, rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, fields map[string]any) (*Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	data, err := decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	merge(data, fields)
	updated, err := encode(data)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE documents SET data = ?, updated_at = ? WHERE collection = ? AND id = ?
	`, string(updated), formatTime(s.now()), collection, id); err != nil {
		return nil, fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.Get(ctx, collection, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the connection is owned by the db package.
func (s *SQLiteStore) Close() error {
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(collection string, row scanner) (*Document, error) {
	var (
		doc                  Document
		raw                  string
		createdAt, updatedAt string
	)
	err := row.Scan(&doc.ID, &raw, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	data, err := decode([]byte(raw))
	if err != nil {
		return nil, err
	}
	doc.Collection = collection
	doc.Data = data
	doc.CreatedAt = parseTime(createdAt)
	doc.UpdatedAt = parseTime(updatedAt)
	return &doc, nil
}
