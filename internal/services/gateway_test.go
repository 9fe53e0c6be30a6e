package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestGeminiGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			t.Errorf("missing api key header")
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		parts := req.Contents[0].Parts
		if len(parts) != 2 || parts[0].Text != "read the tag" {
			t.Errorf("parts = %+v", parts)
		}
		if parts[1].InlineData == nil || parts[1].InlineData.Data != base64.StdEncoding.EncodeToString([]byte("img")) {
			t.Errorf("image part = %+v", parts[1].InlineData)
		}

		w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "{\"a\":"}, {"text": "1}"}]}}]}`))
	}))
	defer server.Close()

	gw := NewGeminiGateway("secret", server.URL+"/", "gemini-test")

	got, err := gw.Generate(context.Background(), "read the tag", &Media{MimeType: "image/png", Data: []byte("img")})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("Generate = %q", got)
	}
}

func TestGeminiGenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusTooManyRequests, `{"error": {"message": "quota"}}`},
		{"no candidates", http.StatusOK, `{"candidates": []}`},
		{"empty text", http.StatusOK, `{"candidates": [{"content": {"parts": []}}]}`},
		{"not json", http.StatusOK, `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			gw := NewGeminiGateway("secret", server.URL, "")
			if _, err := gw.Generate(context.Background(), "prompt", nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestGeminiRequiresKey(t *testing.T) {
	gw := NewGeminiGateway("", "", "")
	if _, err := gw.Generate(context.Background(), "prompt", nil); err == nil {
		t.Error("expected error without api key")
	}
	if err := gw.HealthCheck(context.Background()); err == nil {
		t.Error("expected unhealthy gateway without api key")
	}
	if gw.Name() != "gemini/gemini-2.0-flash" {
		t.Errorf("Name = %q", gw.Name())
	}
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}

		var req OpenAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		content := req.Messages[0].Content
		if req.Model != "gpt-test" || len(content) != 2 {
			t.Errorf("request = %+v", req)
		}
		if content[1].ImageURL == nil || !strings.HasPrefix(content[1].ImageURL.URL, "data:image/jpeg;base64,") {
			t.Errorf("image content = %+v", content[1])
		}

		w.Write([]byte(`{"model": "gpt-test", "choices": [{"message": {"role": "assistant", "content": "{\"ok\": true}"}}]}`))
	}))
	defer server.Close()

	gw := NewOpenAIGateway("secret", server.URL, "gpt-test")

	got, err := gw.Generate(context.Background(), "read the tag", &Media{MimeType: "image/jpeg", Data: []byte("img")})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"ok": true}` {
		t.Errorf("Generate = %q", got)
	}
}

func TestOpenAIGenerateTextOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages[0].Content) != 1 {
			t.Errorf("expected text-only content, got %+v", req.Messages[0].Content)
		}
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	gw := NewOpenAIGateway("secret", server.URL, "")
	if _, err := gw.Generate(context.Background(), "score this", nil); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"bawełna", 6, "bawe\u0142"},
		{"bawełna", 5, "bawe"},
		{"żółw", 1, ""},
	}

	for _, tt := range tests {
		got := truncate(tt.in, tt.max)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) split a rune: %q", tt.in, tt.max, got)
		}
	}
}
