package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hacknation/tagscan/service-gateway/internal/models"
	"github.com/hacknation/tagscan/service-gateway/internal/services"
	"github.com/hacknation/tagscan/service-gateway/internal/storage"
	"github.com/rs/zerolog/log"
)

const maxUploadSize = 10 << 20 // 10 MB

// Handler contains all HTTP handlers
type Handler struct {
	pipeline *services.SustainabilityPipeline
	items    storage.ItemStore
	images   services.ImageArchive       // optional
	events   services.ItemEventPublisher // optional
	gateway  services.ModelGateway
	now      func() time.Time
}

// NewHandler creates a new handler instance. images and events may be nil.
func NewHandler(
	pipeline *services.SustainabilityPipeline,
	items storage.ItemStore,
	images services.ImageArchive,
	events services.ItemEventPublisher,
	gateway services.ModelGateway,
) *Handler {
	return &Handler{
		pipeline: pipeline,
		items:    items,
		images:   images,
		events:   events,
		gateway:  gateway,
		now:      time.Now,
	}
}

// RootHandler answers the liveness banner
func (h *Handler) RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Backend server running!"})
}

// AnalyzeImageHandler runs the tag pipeline on an uploaded photo
func (h *Handler) AnalyzeImageHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		log.Warn().Err(err).Msg("Failed to parse form")
		writeError(w, http.StatusBadRequest, "No image provided")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No image selected")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read image")
		writeError(w, http.StatusInternalServerError, "Error processing image: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "No image selected")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	item, err := h.pipeline.Analyze(r.Context(), services.TagImage{
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		log.Error().Err(err).Str("filename", header.Filename).Msg("Failed to analyze tag image")
		writeError(w, http.StatusInternalServerError, "Error processing image: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"result": item})
}

// AnalyzeSustainabilityHandler scores a composition sent as JSON
func (h *Handler) AnalyzeSustainabilityHandler(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) == 0 {
		writeError(w, http.StatusBadRequest, "No JSON provided")
		return
	}

	composition := services.ParseComposition(body)
	if len(composition) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid data provided")
		return
	}

	assessment, err := h.pipeline.Assess(r.Context(), composition)
	if err != nil {
		log.Error().Err(err).Msg("Failed to assess composition")
		writeError(w, http.StatusInternalServerError, "Error processing json: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"result": assessment})
}

// CreateItemHandler stores an arbitrary document. Clothing items come from
// the pipeline; this endpoint only requires a name.
func (h *Handler) CreateItemHandler(w http.ResponseWriter, r *http.Request) {
	var data models.Document
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		writeError(w, http.StatusBadRequest, "Invalid data provided")
		return
	}
	if _, ok := data["name"]; !ok {
		writeError(w, http.StatusBadRequest, "Invalid data provided")
		return
	}

	id := uuid.New().String()
	delete(data, "id")
	data["created_at"] = h.now().UTC().Format(time.RFC3339)

	if err := h.items.Set(r.Context(), id, data); err != nil {
		log.Error().Err(err).Msg("Failed to create item")
		writeError(w, http.StatusInternalServerError, "Error creating item: "+err.Error())
		return
	}

	log.Info().Str("id", id).Msg("Item created")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      id,
		"message": "Item created successfully",
		"data":    data,
	})
}

// ListItemsHandler returns every stored document
func (h *Handler) ListItemsHandler(w http.ResponseWriter, r *http.Request) {
	docs, err := h.items.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list items")
		writeError(w, http.StatusInternalServerError, "Error fetching items: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": docs})
}

// GetItemHandler returns one document by id
func (h *Handler) GetItemHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := h.items.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to fetch item")
		writeError(w, http.StatusInternalServerError, "Error fetching item: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"item": doc})
}

// UpdateItemHandler merges the JSON body into the stored document
func (h *Handler) UpdateItemHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch models.Document
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || len(patch) == 0 {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	delete(patch, "id")
	patch["updated_at"] = h.now().UTC().Format(time.RFC3339)

	doc, err := h.items.Update(r.Context(), id, patch)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to update item")
		writeError(w, http.StatusInternalServerError, "Error updating item: "+err.Error())
		return
	}

	log.Info().Str("id", id).Int("fields", len(patch)).Msg("Item updated")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Item updated successfully",
		"item":    doc,
	})
}

// DeleteItemHandler removes the document and its archived tag image
func (h *Handler) DeleteItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	doc, err := h.items.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("id", id).Msg("Failed to fetch item for delete")
		writeError(w, http.StatusInternalServerError, "Error deleting item: "+err.Error())
		return
	}

	if err := h.items.Delete(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Item not found")
			return
		}
		log.Error().Err(err).Str("id", id).Msg("Failed to delete item")
		writeError(w, http.StatusInternalServerError, "Error deleting item: "+err.Error())
		return
	}

	if key, _ := doc["image_key"].(string); key != "" && h.images != nil {
		if err := h.images.DeleteImage(ctx, key); err != nil {
			log.Error().Err(err).Str("id", id).Str("key", key).Msg("Failed to delete tag image")
		}
	}

	if h.events != nil {
		event := models.ItemDeletedEvent{ID: id, Timestamp: h.now()}
		if err := h.events.PublishItemDeleted(ctx, event); err != nil {
			log.Error().Err(err).Str("id", id).Msg("Failed to publish item.deleted event")
		}
	}

	log.Info().Str("id", id).Msg("Item deleted")

	writeJSON(w, http.StatusOK, map[string]string{"message": "Item deleted successfully"})
}

// ItemStatsHandler returns status totals and the monthly breakdown
func (h *Handler) ItemStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := services.CollectStats(r.Context(), h.items)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute item stats")
		writeError(w, http.StatusInternalServerError, "Error fetching item stats: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// HealthCheckHandler returns health status
func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checks := map[string]string{
		"store":    "ok",
		"images":   "disabled",
		"rabbitmq": "disabled",
		"model":    "ok",
	}
	healthy := true

	if err := h.items.HealthCheck(ctx); err != nil {
		healthy = false
		checks["store"] = err.Error()
	}

	if h.images != nil {
		checks["images"] = "ok"
		if err := h.images.HealthCheck(ctx); err != nil {
			healthy = false
			checks["images"] = err.Error()
		}
	}

	if h.events != nil {
		checks["rabbitmq"] = "ok"
		if err := h.events.HealthCheck(); err != nil {
			healthy = false
			checks["rabbitmq"] = err.Error()
		}
	}

	if err := h.gateway.HealthCheck(ctx); err != nil {
		healthy = false
		checks["model"] = err.Error()
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status": status,
		"model":  h.gateway.Name(),
		"checks": checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
