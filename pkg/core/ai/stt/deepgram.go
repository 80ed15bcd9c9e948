// Package stt provides speech-to-text capability implementations.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/verdictech/gavel/pkg/core/ai"
)

const deepgramBaseURL = "https://api.deepgram.com"

// DeepgramProvider implements ai.Transcriber using Deepgram's
// prerecorded transcription API.
type DeepgramProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDeepgram creates a new Deepgram transcriber.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return NewDeepgramWithClient(apiKey, &http.Client{})
}

// NewDeepgramWithClient creates a new Deepgram transcriber with a custom
// HTTP client.
func NewDeepgramWithClient(apiKey string, client *http.Client) *DeepgramProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &DeepgramProvider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    deepgramBaseURL,
		httpClient: client,
	}
}

// WithBaseURL overrides the API endpoint. Used by tests.
func (d *DeepgramProvider) WithBaseURL(base string) *DeepgramProvider {
	if d == nil {
		return d
	}
	base = strings.TrimSpace(base)
	if base != "" {
		d.baseURL = strings.TrimSuffix(base, "/")
	}
	return d
}

// Name returns the provider identifier.
func (d *DeepgramProvider) Name() string {
	return "deepgram"
}

// Transcribe converts audio to text using Deepgram's listen API.
func (d *DeepgramProvider) Transcribe(ctx context.Context, audio io.Reader, opts ai.TranscribeOptions) (string, error) {
	if d == nil || d.apiKey == "" {
		return "", fmt.Errorf("deepgram api key is required")
	}

	model := opts.Model
	if model == "" {
		model = "nova-2"
	}

	u, err := url.Parse(d.baseURL + "/v1/listen")
	if err != nil {
		return "", fmt.Errorf("parse deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	q.Set("smart_format", "true")
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), audio)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", contentTypeFor(opts.Format))

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("deepgram error %d: %s", resp.StatusCode, string(body))
	}

	var decoded deepgramListenResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return decoded.transcript(), nil
}

type deepgramListenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (r deepgramListenResponse) transcript() string {
	if len(r.Results.Channels) == 0 {
		return ""
	}
	alts := r.Results.Channels[0].Alternatives
	if len(alts) == 0 {
		return ""
	}
	return strings.TrimSpace(alts[0].Transcript)
}

func contentTypeFor(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "webm":
		return "audio/webm"
	case "ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
