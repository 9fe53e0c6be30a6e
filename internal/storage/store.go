package storage

import (
	"context"
	"errors"

	"github.com/hacknation/tagscan/service-gateway/internal/models"
)

// ItemsCollection is the single collection every backend persists into
const ItemsCollection = "clothing_items"

// ErrNotFound is returned when no document exists under the requested id
var ErrNotFound = errors.New("item not found")

// ItemStore is a keyed document collection. Set and Update are atomic per document.
type ItemStore interface {
	Set(ctx context.Context, id string, doc models.Document) error
	Get(ctx context.Context, id string) (models.Document, error)
	Update(ctx context.Context, id string, patch models.Document) (models.Document, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.Document, error)
	HealthCheck(ctx context.Context) error
}
