// Package brain provides dialogue-generation and analysis capability
// implementations: an HTTP client for the dedicated courtroom model
// service, and a Gemini-backed variant.
package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/verdictech/gavel/pkg/core/ai"
	"github.com/verdictech/gavel/pkg/core/types"
)

// HTTPClient implements ai.Generator and ai.Analyzer against the
// courtroom model service.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the model service at baseURL.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (c *HTTPClient) Name() string {
	return "brain-http"
}

type turnRequest struct {
	CaseID   string    `json:"case_id"`
	UserText string    `json:"user_text"`
	History  []ai.Turn `json:"history"`
}

type turnResponse struct {
	Speaker   string `json:"speaker"`
	ReplyText string `json:"reply_text"`
	Emotion   string `json:"emotion"`
}

// GenerateReply asks the model service for the next persona utterance.
func (c *HTTPClient) GenerateReply(ctx context.Context, req ai.GenerateRequest) (ai.Reply, error) {
	var decoded turnResponse
	err := c.post(ctx, "/turn", turnRequest{
		CaseID:   req.CaseID,
		UserText: req.UserText,
		History:  req.History,
	}, &decoded)
	if err != nil {
		return ai.Reply{}, err
	}
	return ai.Reply{
		Persona: types.Role(strings.TrimSpace(decoded.Speaker)),
		Text:    strings.TrimSpace(decoded.ReplyText),
		Emotion: strings.TrimSpace(decoded.Emotion),
	}.WithDefaults(), nil
}

type analyzeRequest struct {
	Transcript []types.TranscriptEntry `json:"transcript"`
}

// Analyze asks the model service for the post-session report.
func (c *HTTPClient) Analyze(ctx context.Context, transcript []types.TranscriptEntry) (types.Analysis, error) {
	var decoded types.Analysis
	if err := c.post(ctx, "/analyze", analyzeRequest{Transcript: transcript}, &decoded); err != nil {
		return types.Analysis{}, err
	}
	return decoded, nil
}

type initCaseRequest struct {
	CaseID string `json:"case_id"`
	Text   string `json:"text"`
}

type initCaseResponse struct {
	Summary string `json:"summary"`
}

// SummarizeCase registers a new case with the model service and returns
// its strategy summary.
func (c *HTTPClient) SummarizeCase(ctx context.Context, caseID, text string) (string, error) {
	var decoded initCaseResponse
	if err := c.post(ctx, "/init_case", initCaseRequest{CaseID: caseID, Text: text}, &decoded); err != nil {
		return "", err
	}
	return strings.TrimSpace(decoded.Summary), nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("model service url is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("model service error %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
