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

// OpenAIGateway handles communication with an OpenAI-compatible chat completions API
type OpenAIGateway struct {
	apiKey    string
	endpoint  string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOpenAIGateway creates a new chat completions gateway
func NewOpenAIGateway(apiKey, endpoint, model string) *OpenAIGateway {
	if model == "" {
		model = "gpt-4o"
	}
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}

	return &OpenAIGateway{
		apiKey:    apiKey,
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		model:     model,
		maxTokens: 1000,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// OpenAIRequest represents the OpenAI API request structure
type OpenAIRequest struct {
	Model     string          `json:"model"`
	Messages  []OpenAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens"`
}

// OpenAIMessage represents a message in the OpenAI request
type OpenAIMessage struct {
	Role    string                 `json:"role"`
	Content []OpenAIMessageContent `json:"content"`
}

// OpenAIMessageContent represents content in a message
type OpenAIMessageContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *OpenAIImageURL `json:"image_url,omitempty"`
}

// OpenAIImageURL represents an image URL in the request
type OpenAIImageURL struct {
	URL string `json:"url"`
}

// OpenAIResponse represents the OpenAI API response
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

func (o *OpenAIGateway) Name() string { return "openai/" + o.model }

// Generate sends the prompt, with the image as a data URL when present, and
// returns the first choice's content.
func (o *OpenAIGateway) Generate(ctx context.Context, prompt string, media *Media) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("openai API key not configured")
	}

	content := []OpenAIMessageContent{{Type: "text", Text: prompt}}
	if media != nil && len(media.Data) > 0 {
		dataURL := fmt.Sprintf("data:%s;base64,%s", media.MimeType, base64.StdEncoding.EncodeToString(media.Data))
		content = append(content, OpenAIMessageContent{
			Type:     "image_url",
			ImageURL: &OpenAIImageURL{URL: dataURL},
		})
	}

	body, err := postJSON(ctx, o.client, o.endpoint+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + o.apiKey},
		OpenAIRequest{
			Model:     o.model,
			Messages:  []OpenAIMessage{{Role: "user", Content: content}},
			MaxTokens: o.maxTokens,
		})
	if err != nil {
		log.Error().Err(err).Str("model", o.model).Msg("OpenAI API call failed")
		return "", err
	}

	var resp OpenAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("openai API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from openai API")
	}

	log.Debug().
		Str("model", resp.Model).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("OpenAI completion received")

	return resp.Choices[0].Message.Content, nil
}

// HealthCheck verifies the gateway is configured
func (o *OpenAIGateway) HealthCheck(ctx context.Context) error {
	if o.apiKey == "" {
		return fmt.Errorf("openai API key not configured")
	}
	return nil
}
