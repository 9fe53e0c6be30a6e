package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hacknation/tagscan/service-gateway/internal/imaging"
	"github.com/hacknation/tagscan/service-gateway/internal/metrics"
	"github.com/hacknation/tagscan/service-gateway/internal/models"
	"github.com/hacknation/tagscan/service-gateway/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	defaultScore       = 50
	defaultStatus      = models.StatusRecycle
	defaultCallTimeout = 30 * time.Second
)

func defaultComposition() models.Composition {
	return models.Composition{"Cotton": 100}
}

const extractionPrompt = `This image shows a clothing tag or label. Please:

1. Extract all text visible in the image, especially focusing on material composition
2. Identify percentages of different materials (cotton, polyester, wool, etc.)
3. Parse any care instructions visible in the image
4. Note any brand information if visible

Format your response as JSON with these fields:
- composition: An object with material names as keys and percentage values (number only)
- careInstructions: Array of care instructions
- brand: Brand name if visible, otherwise null
- additionalText: Any other relevant text from the image

Example output:
{"composition": {"cotton": 60, "polyester": 35, "elastane": 5}, "careInstructions": ["Machine wash cold", "Tumble dry low"], "brand": "Example Brand", "additionalText": "Made in Portugal"}

If no materials are visible, return an empty composition object.

IMPORTANT: Return ONLY a raw, valid JSON object. Do not include any markdown code blocks, explanations,
or additional formatting. The output should start with '{' and end with '}' and contain no other text.`

const scoringPromptTemplate = `Based on this clothing item's material composition, analyze its sustainability and provide a recommendation.

Material composition: %s

Please provide:
1. Environmental impact assessment for each material (rated as low, medium, or high impact)
2. Overall sustainability score (1-100, where 100 is most sustainable)
3. A clear recommendation for one of these options:
- RECYCLE: For items that cannot be reused but materials can be salvaged
- RESELL: For items in good condition that have market value
- DONATE: For usable items that could benefit others but may have limited resale value

Format your response as a single JSON object with these fields:
- materialImpacts: Object with each material and its environmental impact
- sustainabilityScore: Integer score 1-100
- recommendation: One of "RECYCLE", "RESELL", or "DONATE"
- reasoning: Brief explanation for the recommendation

Return ONLY the JSON object.`

// RandomSource is the randomness behind item ids and batch numbers.
// *math/rand/v2.Rand satisfies it.
type RandomSource interface {
	IntN(n int) int
}

// ImageArchive keeps the uploaded tag photo next to the item
type ImageArchive interface {
	UploadImage(ctx context.Context, reader io.Reader, filename string, contentType string, size int64) (string, string, error)
	DeleteImage(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// ItemEventPublisher announces item lifecycle changes
type ItemEventPublisher interface {
	PublishItemAnalyzed(ctx context.Context, event models.ItemAnalyzedEvent) error
	PublishItemDeleted(ctx context.Context, event models.ItemDeletedEvent) error
	HealthCheck() error
}

// TagImage is an uploaded photo of a clothing tag
type TagImage struct {
	Filename    string
	ContentType string
	Data        []byte
}

// tagDetails is what the extraction prompt asks the model for
type tagDetails struct {
	Composition      models.Composition
	CareInstructions []string
	Brand            string
	AdditionalText   string
}

// SustainabilityPipeline turns a tag photo into a stored ClothingItem with two
// sequential model calls: material extraction, then sustainability scoring.
// Unparsable replies fall back to defaults; transport failures abort before
// anything is written.
type SustainabilityPipeline struct {
	gateway     ModelGateway
	items       storage.ItemStore
	images      ImageArchive
	events      ItemEventPublisher
	rng         RandomSource
	callTimeout time.Duration
	now         func() time.Time
}

// NewSustainabilityPipeline wires the pipeline. images and events may be nil.
func NewSustainabilityPipeline(
	gateway ModelGateway,
	items storage.ItemStore,
	images ImageArchive,
	events ItemEventPublisher,
	rng RandomSource,
	callTimeout time.Duration,
) *SustainabilityPipeline {
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	return &SustainabilityPipeline{
		gateway:     gateway,
		items:       items,
		images:      images,
		events:      events,
		rng:         rng,
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// Analyze runs the full pipeline for one tag photo
func (p *SustainabilityPipeline) Analyze(ctx context.Context, image TagImage) (*models.ClothingItem, error) {
	start := time.Now()

	item, err := p.analyze(ctx, image)

	metrics.AnalysisDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("error", "").Inc()
		return nil, err
	}
	metrics.AnalysesTotal.WithLabelValues("ok", string(item.Status)).Inc()

	log.Info().
		Str("id", item.ID).
		Str("status", string(item.Status)).
		Int("score", item.Score).
		Str("batch_no", item.BatchNo).
		Bool("fallback", item.Fallback).
		Dur("duration_ms", time.Since(start)).
		Msg("Tag analyzed")

	return item, nil
}

func (p *SustainabilityPipeline) analyze(ctx context.Context, image TagImage) (*models.ClothingItem, error) {
	reply, err := p.generate(ctx, "extract", extractionPrompt, modelMedia(image))
	if err != nil {
		return nil, err
	}

	details, err := parseTagReply(reply)
	fallback := false
	if err != nil {
		fallback = true
		details.Composition = defaultComposition()
		metrics.FallbacksTotal.WithLabelValues("extract").Inc()
		log.Warn().
			Err(err).
			Str("reply", truncate(reply, 1024)).
			Msg("Could not read composition from model reply, using default")
	}

	composition := NormalizeComposition(details.Composition)

	assessment, err := p.Assess(ctx, composition)
	if err != nil {
		return nil, err
	}
	status, _ := models.ParseStatus(assessment.Recommendation)

	item := &models.ClothingItem{
		Composition:      composition,
		Score:            assessment.SustainabilityScore,
		Status:           status,
		Date:             p.now().UTC().Format(time.RFC3339),
		BatchNo:          p.batchNumber(status),
		CareInstructions: details.CareInstructions,
		Brand:            details.Brand,
		AdditionalText:   details.AdditionalText,
		MaterialImpacts:  assessment.MaterialImpacts,
		Reasoning:        assessment.Reasoning,
		Fallback:         fallback || assessment.Fallback,
	}
	item.ID = p.itemID()

	p.archiveImage(ctx, item, image)

	if err := p.items.Set(ctx, item.ID, item.ToDocument()); err != nil {
		if item.ImageKey != "" {
			if delErr := p.images.DeleteImage(ctx, item.ImageKey); delErr != nil {
				log.Error().Err(delErr).Str("key", item.ImageKey).Msg("Failed to remove orphaned tag image")
			}
		}
		return nil, &TransportError{Op: "store item", Err: err}
	}

	p.publishAnalyzed(ctx, item)

	return item, nil
}

// Assess runs the scoring call for an already known composition. The
// composition is normalized before it is sent.
func (p *SustainabilityPipeline) Assess(ctx context.Context, composition models.Composition) (*models.SustainabilityAssessment, error) {
	composition = NormalizeComposition(composition)

	encoded, err := json.Marshal(composition)
	if err != nil {
		return nil, fmt.Errorf("failed to encode composition: %w", err)
	}

	reply, err := p.generate(ctx, "score", fmt.Sprintf(scoringPromptTemplate, encoded), nil)
	if err != nil {
		return nil, err
	}

	assessment, err := parseAssessment(reply)
	if err != nil {
		metrics.FallbacksTotal.WithLabelValues("score").Inc()
		log.Warn().
			Err(err).
			Str("reply", truncate(reply, 1024)).
			Int("score", assessment.SustainabilityScore).
			Str("recommendation", assessment.Recommendation).
			Msg("Could not read sustainability assessment from model reply, using defaults")
	}

	return assessment, nil
}

func (p *SustainabilityPipeline) generate(ctx context.Context, purpose, prompt string, media *Media) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	start := time.Now()
	reply, err := p.gateway.Generate(callCtx, prompt, media)
	metrics.ModelCallDurationSeconds.WithLabelValues(purpose).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ModelCallsTotal.WithLabelValues(purpose, "error").Inc()
		return "", &TransportError{Op: purpose + " model call", Err: err}
	}
	metrics.ModelCallsTotal.WithLabelValues(purpose, "ok").Inc()

	return reply, nil
}

// modelMedia uprights and downscales the photo. Formats the decoder does not
// know and headers over the pixel budget are sent as uploaded.
func modelMedia(image TagImage) *Media {
	mimeType := image.ContentType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	prepared, err := imaging.Prepare(image.Data)
	if err != nil {
		log.Debug().Err(err).Str("filename", image.Filename).Msg("Sending tag image as uploaded")
		return &Media{MimeType: mimeType, Data: image.Data}
	}
	if prepared.Modified {
		log.Debug().
			Int("original_bytes", len(image.Data)).
			Int("bytes", len(prepared.Data)).
			Int("width", prepared.Width).
			Int("height", prepared.Height).
			Msg("Tag image resized for model")
	}
	return &Media{MimeType: prepared.MIME, Data: prepared.Data}
}

// batchNumber is the status letter plus a cosmetic bucket in [1,3]
func (p *SustainabilityPipeline) batchNumber(status models.Status) string {
	return status.BatchLetter() + strconv.Itoa(p.rng.IntN(3)+1)
}

// itemID is "TAG" and five random digits. Collisions are not checked.
func (p *SustainabilityPipeline) itemID() string {
	return fmt.Sprintf("TAG%05d", p.rng.IntN(100000))
}

func (p *SustainabilityPipeline) archiveImage(ctx context.Context, item *models.ClothingItem, image TagImage) {
	if p.images == nil || len(image.Data) == 0 {
		return
	}

	key, url, err := p.images.UploadImage(ctx, bytes.NewReader(image.Data), image.Filename, image.ContentType, int64(len(image.Data)))
	if err != nil {
		log.Error().Err(err).Str("id", item.ID).Msg("Failed to archive tag image")
		return
	}
	item.ImageKey = key
	item.ImageURL = url
}

func (p *SustainabilityPipeline) publishAnalyzed(ctx context.Context, item *models.ClothingItem) {
	if p.events == nil {
		return
	}

	event := models.ItemAnalyzedEvent{
		ID:          item.ID,
		Status:      item.Status,
		Score:       item.Score,
		BatchNo:     item.BatchNo,
		Composition: item.Composition,
		ImageURL:    item.ImageURL,
		Fallback:    item.Fallback,
		Timestamp:   p.now(),
	}
	if err := p.events.PublishItemAnalyzed(ctx, event); err != nil {
		log.Error().Err(err).Str("id", item.ID).Msg("Failed to publish item.analyzed event")
	}
}

// parseTagReply reads the extraction reply. The returned details are usable
// even with an error: only the composition needs a default then.
func parseTagReply(reply string) (tagDetails, error) {
	var details tagDetails

	obj, err := ExtractObject(reply)
	if err != nil {
		return details, err
	}

	raw, ok := obj["composition"]
	if !ok || raw == nil {
		raw = obj["materials"]
	}
	details.Composition = ParseComposition(raw)

	if care, ok := obj["careInstructions"].([]interface{}); ok {
		for _, c := range care {
			if s, ok := c.(string); ok && strings.TrimSpace(s) != "" {
				details.CareInstructions = append(details.CareInstructions, s)
			}
		}
	}
	details.Brand, _ = obj["brand"].(string)
	details.AdditionalText, _ = obj["additionalText"].(string)

	if len(details.Composition) == 0 {
		return details, &ExtractError{Raw: reply, Err: fmt.Errorf("no material percentages in reply")}
	}
	return details, nil
}

// parseAssessment reads the scoring reply. The returned assessment is always
// complete; missing or invalid fields get the default and set Fallback, and
// the error says why.
func parseAssessment(reply string) (*models.SustainabilityAssessment, error) {
	a := &models.SustainabilityAssessment{
		SustainabilityScore: defaultScore,
		Recommendation:      strings.ToUpper(string(defaultStatus)),
	}

	obj, err := ExtractObject(reply)
	if err != nil {
		a.Fallback = true
		return a, err
	}

	var problems []string

	if score, ok := parsePercentage(obj["sustainabilityScore"]); ok {
		a.SustainabilityScore = clampScore(score)
	} else {
		a.Fallback = true
		problems = append(problems, "sustainabilityScore")
	}

	rec, _ := obj["recommendation"].(string)
	if status, ok := models.ParseStatus(rec); ok {
		a.Recommendation = strings.ToUpper(string(status))
	} else {
		a.Fallback = true
		problems = append(problems, "recommendation")
	}

	a.MaterialImpacts, _ = obj["materialImpacts"].(map[string]interface{})
	a.Reasoning, _ = obj["reasoning"].(string)

	if len(problems) > 0 {
		return a, &ExtractError{Raw: reply, Err: fmt.Errorf("missing or invalid %s", strings.Join(problems, ", "))}
	}
	return a, nil
}

func clampScore(score float64) int {
	s := int(math.Round(score))
	if s < 1 {
		return 1
	}
	if s > 100 {
		return 100
	}
	return s
}
