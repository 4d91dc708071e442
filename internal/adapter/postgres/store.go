package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/satorinet/neuronfeed/internal/domain/model"
)

// Store implements database.ModelStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListModels returns every active model ordered by id.
func (s *Store) ListModels(ctx context.Context) ([]model.Model, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+modelColumns+` FROM models WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var models []model.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return orEmpty(models), nil
}

// GetModel returns one model by id, active or not.
func (s *Store) GetModel(ctx context.Context, id string) (*model.Model, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+modelColumns+` FROM models WHERE id = $1`, id)
	m, err := scanModel(row)
	if err != nil {
		return nil, notFoundWrap(err, "get model %s", id)
	}
	return &m, nil
}

// ReplaceModels deactivates the catalog and upserts the given models as
// active in one transaction. Rows for models no longer announced are kept
// so overview lookups by id still resolve. The stored subject is always the
// one derived from the id.
func (s *Store) ReplaceModels(ctx context.Context, models []model.Model) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx,
		`UPDATE models SET active = FALSE, updated_at = now() WHERE active`); err != nil {
		return fmt.Errorf("deactivate models: %w", err)
	}

	const upsert = `
		INSERT INTO models (id, source, author, stream, target, subject, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			author = EXCLUDED.author,
			stream = EXCLUDED.stream,
			target = EXCLUDED.target,
			subject = EXCLUDED.subject,
			active = TRUE,
			updated_at = now()`

	batch := &pgx.Batch{}
	for i := range models {
		m := &models[i]
		batch.Queue(upsert, m.ID, m.Source, m.Author, m.Stream, m.Target, model.PredictionSubject(m.ID))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert models: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit models: %w", err)
	}
	return nil
}
