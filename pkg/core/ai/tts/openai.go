// Package tts provides text-to-speech capability implementations.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/verdictech/gavel/pkg/core/types"
)

const openAIBaseURL = "https://api.openai.com"

// Persona voices. The judge gets the deeper register.
var defaultVoices = map[types.Role]string{
	types.RoleJudge:  "onyx",
	types.RoleLawyer: "alloy",
}

// OpenAIProvider implements ai.Synthesizer using OpenAI's speech API.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOpenAI creates a new OpenAI synthesizer.
func NewOpenAI(apiKey string) *OpenAIProvider {
	return NewOpenAIWithClient(apiKey, &http.Client{})
}

// NewOpenAIWithClient creates a new OpenAI synthesizer with a custom
// HTTP client.
func NewOpenAIWithClient(apiKey string, client *http.Client) *OpenAIProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    openAIBaseURL,
		model:      "tts-1",
		httpClient: client,
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func (o *OpenAIProvider) WithBaseURL(base string) *OpenAIProvider {
	if o == nil {
		return o
	}
	base = strings.TrimSpace(base)
	if base != "" {
		o.baseURL = strings.TrimSuffix(base, "/")
	}
	return o
}

// Name returns the provider identifier.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// Synthesize renders persona speech as MP3 bytes.
func (o *OpenAIProvider) Synthesize(ctx context.Context, text string, persona types.Role) ([]byte, error) {
	if o == nil || o.apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	voice, ok := defaultVoices[persona]
	if !ok {
		voice = defaultVoices[types.RoleLawyer]
	}

	payload, err := json.Marshal(map[string]string{
		"model": o.model,
		"voice": voice,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return audio, nil
}
