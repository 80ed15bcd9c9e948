// Package docs implements the document-extraction capability against
// the external document service.
package docs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// HTTPExtractor implements ai.DocumentExtractor over the document
// service's multipart upload endpoint.
type HTTPExtractor struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTP creates an extractor for the document service at baseURL.
func NewHTTP(baseURL string, client *http.Client) *HTTPExtractor {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPExtractor{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (e *HTTPExtractor) Name() string {
	return "docs-http"
}

type extractResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
}

// Extract uploads the document and returns its plain text and page
// count.
func (e *HTTPExtractor) Extract(ctx context.Context, document []byte) (string, int, error) {
	if e == nil || e.baseURL == "" {
		return "", 0, fmt.Errorf("document service url is required")
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("document", "case-document")
	if err != nil {
		return "", 0, fmt.Errorf("encode document: %w", err)
	}
	if _, err := part.Write(document); err != nil {
		return "", 0, fmt.Errorf("encode document: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", 0, fmt.Errorf("encode document: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/extract", &body)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("document service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", 0, fmt.Errorf("document service error %d: %s", resp.StatusCode, string(raw))
	}

	var decoded extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", 0, fmt.Errorf("parse response: %w", err)
	}
	return decoded.Text, decoded.Pages, nil
}
