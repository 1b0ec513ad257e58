package docstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/reelbox/reelbox-agent/internal/logging"
)

//go:embed migrations/*.sql
var pgMigrations embed.FS

// PostgresStore keeps documents in a JSONB column.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

type pgRow struct {
	ID        string    `db:"id"`
	Data      []byte    `db:"data"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// OpenPostgres connects to dsn, which must be a postgres:// URL, and brings
// the schema up to date.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	logger = logging.OrDiscard(logger)

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := runMigrations(dsn, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresStore{db: db, logger: logger, now: time.Now}, nil
}

func runMigrations(dsn string, logger *slog.Logger) error {
	src, err := iofs.New(pgMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		logger.Warn("forcing dirty migration version", "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	after, _, _ := m.Version()
	logger.Info("postgres schema ready", "version", after)
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, collection string, data map[string]any) (*Document, error) {
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

	var row pgRow
	now := s.now().UTC()
	err = s.db.GetContext(ctx, &row, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, data, created_at, updated_at`,
		collection, newID(), string(raw), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return row.document(collection)
}

func (s *PostgresStore) Put(ctx context.Context, collection, id string, data map[string]any) (*Document, error) {
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

	var row pgRow
	now := s.now().UTC()
	err = s.db.GetContext(ctx, &row, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
		RETURNING id, data, created_at, updated_at`,
		collection, id, string(raw), now)
	if err != nil {
		return nil, fmt.Errorf("failed to put %s/%s: %w", collection, id, err)
	}
	return row.document(collection)
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var row pgRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, data, created_at, updated_at FROM documents
		WHERE collection = $1 AND id = $2`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.document(collection)
}

func (s *PostgresStore) List(ctx context.Context, collection string, dir Direction) ([]*Document, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	var rows []pgRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, data, created_at, updated_at FROM documents
		WHERE collection = $1
		ORDER BY created_at `+dir.sql()+`, id `+dir.sql(), collection)
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document(collection)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) (*Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.GetContext(ctx, &raw, `
		SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`, collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	data, err := decode(raw)
	if err != nil {
		return nil, err
	}
	merge(data, fields)
	updated, err := encode(data)
	if err != nil {
		return nil, err
	}

	var row pgRow
	err = tx.GetContext(ctx, &row, `
		UPDATE documents SET data = $1, updated_at = $2
		WHERE collection = $3 AND id = $4
		RETURNING id, data, created_at, updated_at`,
		string(updated), s.now().UTC(), collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row.document(collection)
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
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

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (r pgRow) document(collection string) (*Document, error) {
	data, err := decode(r.Data)
	if err != nil {
		return nil, err
	}
	return &Document{
		ID:         r.ID,
		Collection: collection,
		Data:       data,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}
