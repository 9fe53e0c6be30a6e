package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hacknation/tagscan/service-gateway/internal/models"
	"github.com/hacknation/tagscan/service-gateway/internal/storage"
)

func TestComputeStats(t *testing.T) {
	items := []models.ClothingItem{
		{ID: "TAG1", Status: models.StatusRecycle, Date: "2025-03-01T10:00:00Z"},
		{ID: "TAG2", Status: models.StatusDonate, Date: "2025-03-15T10:00:00Z"},
		{ID: "TAG3", Status: "resell", Date: "2025-01-20"},
		{ID: "TAG4", Status: "unknown", Date: "2025-01-21"},
		{ID: "TAG5", Status: models.StatusRecycle, Date: "garbage"},
		{ID: "TAG6", Status: models.StatusDonate},
	}

	got := ComputeStats(items)

	wantCounts := models.StatusCounts{Recycle: 2, Donate: 2, Resell: 1}
	if got.Counts != wantCounts {
		t.Errorf("Counts = %+v, want %+v", got.Counts, wantCounts)
	}

	wantChart := []models.MonthlyBreakdown{
		{Month: "2025-01", ResellPercent: 100},
		{Month: "2025-03", RecyclePercent: 50, DonatePercent: 50},
	}
	if !reflect.DeepEqual(got.ChartData, wantChart) {
		t.Errorf("ChartData = %+v, want %+v", got.ChartData, wantChart)
	}
}

func TestComputeStatsMonthWithOnlyUnknownStatuses(t *testing.T) {
	got := ComputeStats([]models.ClothingItem{{ID: "X", Status: "lost", Date: "2024-12-01"}})

	if got.Counts != (models.StatusCounts{}) {
		t.Errorf("Counts = %+v", got.Counts)
	}
	want := []models.MonthlyBreakdown{{Month: "2024-12"}}
	if !reflect.DeepEqual(got.ChartData, want) {
		t.Errorf("ChartData = %+v, want %+v", got.ChartData, want)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	got := ComputeStats(nil)
	if got.Counts != (models.StatusCounts{}) {
		t.Errorf("Counts = %+v", got.Counts)
	}
	if got.ChartData == nil || len(got.ChartData) != 0 {
		t.Errorf("ChartData = %#v, want empty slice", got.ChartData)
	}
}

func TestCollectStats(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.Set(ctx, "TAG00001", models.Document{"status": "Recycle", "date": "2025-02-01T00:00:00Z"})
	store.Set(ctx, "TAG00002", models.Document{"status": "Resell", "date": "2025-02-02T00:00:00Z"})
	store.Set(ctx, "generic", models.Document{"note": "created by hand"})

	got, err := CollectStats(ctx, store)
	if err != nil {
		t.Fatalf("CollectStats: %v", err)
	}
	if got.Counts != (models.StatusCounts{Recycle: 1, Resell: 1}) {
		t.Errorf("Counts = %+v", got.Counts)
	}
	if len(got.ChartData) != 1 || got.ChartData[0].RecyclePercent != 50 || got.ChartData[0].ResellPercent != 50 {
		t.Errorf("ChartData = %+v", got.ChartData)
	}
}

func TestCollectStatsStoreError(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), err: errors.New("db down")}

	_, err := CollectStats(context.Background(), store)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
