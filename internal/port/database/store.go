// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/satorinet/neuronfeed/internal/domain/model"
)

// ModelStore is the port interface for the persistent model catalog.
type ModelStore interface {
	// ListModels returns every active model ordered by id.
	ListModels(ctx context.Context) ([]model.Model, error)

	// GetModel returns one model by id or domain.ErrNotFound.
	GetModel(ctx context.Context, id string) (*model.Model, error)

	// ReplaceModels marks exactly the given models as active, inserting or
	// updating them, and deactivates every other model.
	ReplaceModels(ctx context.Context, models []model.Model) error
}
