package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/satorinet/neuronfeed/internal/domain"
	"github.com/satorinet/neuronfeed/internal/domain/model"
)

// scannable abstracts pgx.Row and pgx.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

const modelColumns = `id, source, author, stream, target, subject, active, created_at, updated_at`

func scanModel(row scannable) (model.Model, error) {
	var m model.Model
	err := row.Scan(
		&m.ID, &m.Source, &m.Author, &m.Stream, &m.Target,
		&m.Subject, &m.Active, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

// orEmpty returns items unchanged if non-nil, or an empty slice if nil.
// Useful to ensure JSON serialization produces [] instead of null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// notFoundWrap checks whether err is pgx.ErrNoRows and, if so, wraps
// domain.ErrNotFound with the given message. Otherwise it wraps the
// original error.
func notFoundWrap(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
