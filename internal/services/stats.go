package services

import (
	"context"
	"sort"
	"time"

	"github.com/hacknation/tagscan/service-gateway/internal/models"
	"github.com/hacknation/tagscan/service-gateway/internal/storage"
	"github.com/rs/zerolog/log"
)

type monthCounts struct {
	byStatus map[models.Status]int
	total    int
}

// ComputeStats counts items per status and builds the monthly percentage
// breakdown. Items without a usable YYYY-MM date prefix still count toward the
// totals but are left out of the chart.
func ComputeStats(items []models.ClothingItem) models.StatsSummary {
	totals := make(map[models.Status]int, len(models.Statuses))
	months := make(map[string]*monthCounts)

	for _, item := range items {
		status, known := models.ParseStatus(string(item.Status))
		if known {
			totals[status]++
		}

		month, ok := monthKey(item.Date)
		if !ok {
			log.Debug().Str("id", item.ID).Str("date", item.Date).Msg("Skipping item without usable date in monthly stats")
			continue
		}

		bucket, exists := months[month]
		if !exists {
			bucket = &monthCounts{byStatus: make(map[models.Status]int, len(models.Statuses))}
			months[month] = bucket
		}
		if known {
			bucket.byStatus[status]++
			bucket.total++
		}
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	chart := make([]models.MonthlyBreakdown, 0, len(keys))
	for _, k := range keys {
		bucket := months[k]
		chart = append(chart, models.MonthlyBreakdown{
			Month:          k,
			RecyclePercent: percent(bucket.byStatus[models.StatusRecycle], bucket.total),
			DonatePercent:  percent(bucket.byStatus[models.StatusDonate], bucket.total),
			ResellPercent:  percent(bucket.byStatus[models.StatusResell], bucket.total),
		})
	}

	return models.StatsSummary{
		Counts: models.StatusCounts{
			Recycle: totals[models.StatusRecycle],
			Donate:  totals[models.StatusDonate],
			Resell:  totals[models.StatusResell],
		},
		ChartData: chart,
	}
}

// CollectStats scans the whole store and computes the summary
func CollectStats(ctx context.Context, items storage.ItemStore) (models.StatsSummary, error) {
	docs, err := items.List(ctx)
	if err != nil {
		return models.StatsSummary{}, &TransportError{Op: "list items", Err: err}
	}

	clothing := make([]models.ClothingItem, 0, len(docs))
	for _, doc := range docs {
		clothing = append(clothing, models.ItemFromDocument(doc))
	}

	return ComputeStats(clothing), nil
}

func monthKey(date string) (string, bool) {
	if len(date) < 7 {
		return "", false
	}
	key := date[:7]
	if _, err := time.Parse("2006-01", key); err != nil {
		return "", false
	}
	return key, true
}

func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
