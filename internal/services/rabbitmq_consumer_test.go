package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hacknation/tagscan/service-gateway/internal/models"
	"github.com/hacknation/tagscan/service-gateway/internal/storage"
)

type brokenUpdateStore struct {
	*storage.MemoryStore
}

func (s *brokenUpdateStore) Update(ctx context.Context, id string, patch models.Document) (models.Document, error) {
	return nil, errors.New("connection reset")
}

func TestHandleUpdate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.Set(ctx, "TAG00001", models.Document{"status": "Recycle", "score": float64(40)})

	c := &RabbitMQConsumer{items: store, now: func() time.Time { return fixedNow }}

	tests := []struct {
		name string
		body string
		want deliveryOutcome
	}{
		{"applied", `{"item_id": "TAG00001", "fields": {"status": "Donate", "id": "other"}}`, outcomeAck},
		{"invalid json", `{"item_id":`, outcomeDrop},
		{"missing id", `{"fields": {"status": "Donate"}}`, outcomeDrop},
		{"no fields", `{"item_id": "TAG00001"}`, outcomeDrop},
		{"unknown item", `{"item_id": "TAG99999", "fields": {"status": "Donate"}}`, outcomeDrop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.handleUpdate(ctx, []byte(tt.body)); got != tt.want {
				t.Errorf("handleUpdate(%s) = %v, want %v", tt.body, got, tt.want)
			}
		})
	}

	doc, _ := store.Get(ctx, "TAG00001")
	if doc["status"] != "Donate" || doc["id"] != "TAG00001" || doc["score"] != float64(40) {
		t.Errorf("document after update = %v", doc)
	}
	if doc["updated_at"] != "2025-03-14T09:30:00Z" {
		t.Errorf("updated_at = %v", doc["updated_at"])
	}
}

func TestHandleUpdateRetriesStoreFailure(t *testing.T) {
	c := &RabbitMQConsumer{items: &brokenUpdateStore{storage.NewMemoryStore()}, now: time.Now}

	got := c.handleUpdate(context.Background(), []byte(`{"item_id": "TAG1", "fields": {"status": "Donate"}}`))
	if got != outcomeRetry {
		t.Errorf("handleUpdate = %v, want retry", got)
	}
}
