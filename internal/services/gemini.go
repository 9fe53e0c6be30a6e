package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// GeminiGateway calls the Gemini generateContent REST API
type GeminiGateway struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

// NewGeminiGateway creates a gateway for the given model
func NewGeminiGateway(apiKey, endpoint, model string) *GeminiGateway {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if endpoint == "" {
		endpoint = defaultGeminiEndpoint
	}

	return &GeminiGateway{
		apiKey:   apiKey,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		model:    model,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (g *GeminiGateway) Name() string { return "gemini/" + g.model }

// Generate sends the prompt and optional image and returns the first text part
func (g *GeminiGateway) Generate(ctx context.Context, prompt string, media *Media) (string, error) {
	if g.apiKey == "" {
		return "", fmt.Errorf("gemini API key not configured")
	}

	parts := []geminiPart{{Text: prompt}}
	if media != nil && len(media.Data) > 0 {
		parts = append(parts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: media.MimeType,
				Data:     base64.StdEncoding.EncodeToString(media.Data),
			},
		})
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.endpoint, g.model)
	body, err := postJSON(ctx, g.client, url, map[string]string{"x-goog-api-key": g.apiKey}, geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	})
	if err != nil {
		log.Error().Err(err).Str("model", g.model).Msg("Gemini API call failed")
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("gemini API error: %s", resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from gemini API")
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("no text part in gemini response")
	}

	return text.String(), nil
}

// HealthCheck verifies the gateway is configured
func (g *GeminiGateway) HealthCheck(ctx context.Context) error {
	if g.apiKey == "" {
		return fmt.Errorf("gemini API key not configured")
	}
	return nil
}
