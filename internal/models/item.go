package models

import (
	"strings"
	"time"
)

// Status is the end-of-life recommendation recorded for a clothing item
type Status string

const (
	StatusRecycle Status = "Recycle"
	StatusResell  Status = "Resell"
	StatusDonate  Status = "Donate"
)

// Statuses lists every known status in report order
var Statuses = []Status{StatusRecycle, StatusDonate, StatusResell}

// ParseStatus matches a model recommendation ("RECYCLE", "resell", ...) to a Status
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recycle":
		return StatusRecycle, true
	case "resell":
		return StatusResell, true
	case "donate":
		return StatusDonate, true
	}
	return "", false
}

// BatchLetter returns the batch number prefix for the status
func (s Status) BatchLetter() string {
	switch s {
	case StatusRecycle:
		return "C"
	case StatusResell:
		return "S"
	case StatusDonate:
		return "D"
	}
	return ""
}

// Composition maps a material name to its percentage on the tag
type Composition map[string]float64

// ClothingItem is the record persisted for every analyzed tag
type ClothingItem struct {
	ID               string                 `json:"id"`
	Composition      Composition            `json:"composition"`
	Score            int                    `json:"score"`
	Status           Status                 `json:"status"`
	Date             string                 `json:"date"`
	BatchNo          string                 `json:"batch_no"`
	CareInstructions []string               `json:"careInstructions,omitempty"`
	Brand            string                 `json:"brand,omitempty"`
	AdditionalText   string                 `json:"additionalText,omitempty"`
	MaterialImpacts  map[string]interface{} `json:"materialImpacts,omitempty"`
	Reasoning        string                 `json:"reasoning,omitempty"`
	ImageKey         string                 `json:"image_key,omitempty"`
	ImageURL         string                 `json:"image_url,omitempty"`
	Fallback         bool                   `json:"fallback"`
}

// Document is a schemaless record as kept by the item store
type Document map[string]interface{}

// Clone returns a shallow copy of the document
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ToDocument converts the item into its stored representation
func (i *ClothingItem) ToDocument() Document {
	composition := make(map[string]interface{}, len(i.Composition))
	for k, v := range i.Composition {
		composition[k] = v
	}

	doc := Document{
		"id":          i.ID,
		"composition": composition,
		"score":       i.Score,
		"status":      string(i.Status),
		"date":        i.Date,
		"batch_no":    i.BatchNo,
		"fallback":    i.Fallback,
	}
	if len(i.CareInstructions) > 0 {
		care := make([]interface{}, len(i.CareInstructions))
		for idx, c := range i.CareInstructions {
			care[idx] = c
		}
		doc["careInstructions"] = care
	}
	if i.Brand != "" {
		doc["brand"] = i.Brand
	}
	if i.AdditionalText != "" {
		doc["additionalText"] = i.AdditionalText
	}
	if len(i.MaterialImpacts) > 0 {
		doc["materialImpacts"] = i.MaterialImpacts
	}
	if i.Reasoning != "" {
		doc["reasoning"] = i.Reasoning
	}
	if i.ImageKey != "" {
		doc["image_key"] = i.ImageKey
	}
	if i.ImageURL != "" {
		doc["image_url"] = i.ImageURL
	}
	return doc
}

// ItemFromDocument reads the fields the stats report needs. Documents created
// through the generic endpoint or patched by hand may lack any of them.
func ItemFromDocument(doc Document) ClothingItem {
	item := ClothingItem{}
	item.ID, _ = doc["id"].(string)
	item.Date, _ = doc["date"].(string)
	item.BatchNo, _ = doc["batch_no"].(string)
	if s, ok := doc["status"].(string); ok {
		item.Status = Status(s)
	}
	switch v := doc["score"].(type) {
	case float64:
		item.Score = int(v)
	case int:
		item.Score = v
	}
	if comp, ok := doc["composition"].(map[string]interface{}); ok {
		item.Composition = make(Composition, len(comp))
		for k, v := range comp {
			if f, ok := v.(float64); ok {
				item.Composition[k] = f
			}
		}
	}
	item.Fallback, _ = doc["fallback"].(bool)
	return item
}

// SustainabilityAssessment is the parsed reply of the scoring prompt
type SustainabilityAssessment struct {
	MaterialImpacts     map[string]interface{} `json:"materialImpacts"`
	SustainabilityScore int                    `json:"sustainabilityScore"`
	Recommendation      string                 `json:"recommendation"`
	Reasoning           string                 `json:"reasoning"`
	Fallback            bool                   `json:"fallback"`
}

// MonthlyBreakdown is one point of the stats chart
type MonthlyBreakdown struct {
	Month          string  `json:"month"`
	RecyclePercent float64 `json:"Recycle_percent"`
	DonatePercent  float64 `json:"Donate_percent"`
	ResellPercent  float64 `json:"Resell_percent"`
}

// StatusCounts holds totals per status
type StatusCounts struct {
	Recycle int `json:"Recycle"`
	Donate  int `json:"Donate"`
	Resell  int `json:"Resell"`
}

// StatsSummary represents the response of the item stats endpoint
type StatsSummary struct {
	Counts    StatusCounts       `json:"counts"`
	ChartData []MonthlyBreakdown `json:"chart_data"`
}

// ItemAnalyzedEvent represents the event published to RabbitMQ after an analysis is stored
type ItemAnalyzedEvent struct {
	ID          string      `json:"id"`
	Status      Status      `json:"status"`
	Score       int         `json:"score"`
	BatchNo     string      `json:"batch_no"`
	Composition Composition `json:"composition"`
	ImageURL    string      `json:"image_url,omitempty"`
	Fallback    bool        `json:"fallback"`
	Timestamp   time.Time   `json:"timestamp"`
}

// ItemDeletedEvent represents the event published to RabbitMQ when an item is removed
type ItemDeletedEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemUpdateRequest is consumed from RabbitMQ and applied as a patch
type ItemUpdateRequest struct {
	ItemID string                 `json:"item_id"`
	Fields map[string]interface{} `json:"fields"`
}
