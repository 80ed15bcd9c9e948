// Package identity verifies bearer tokens against an identity
// collaborator and resolves them to a user ID.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/verdictech/gavel/pkg/core"
)

// Verifier resolves a bearer token to the owning user.
type Verifier interface {
	// VerifyIdentity returns the user ID for a valid token or an
	// authentication error.
	VerifyIdentity(ctx context.Context, token string) (string, error)
}

// StaticVerifier validates tokens against a fixed token -> user map.
// Suitable for single-tenant deployments and tests.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStatic creates a verifier over a fixed token -> user ID map.
func NewStatic(tokens map[string]string) *StaticVerifier {
	cp := make(map[string]string, len(tokens))
	for tok, user := range tokens {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			cp[tok] = user
		}
	}
	return &StaticVerifier{tokens: cp}
}

// VerifyIdentity implements Verifier.
func (v *StaticVerifier) VerifyIdentity(ctx context.Context, token string) (string, error) {
	user, ok := v.tokens[strings.TrimSpace(token)]
	if !ok {
		return "", core.NewAuthenticationError("invalid token")
	}
	return user, nil
}

// HTTPVerifier introspects tokens against an external identity service.
type HTTPVerifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTP creates a verifier for the identity service at baseURL.
func NewHTTP(baseURL string, client *http.Client) *HTTPVerifier {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPVerifier{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: client,
	}
}

type introspectResponse struct {
	Active bool   `json:"active"`
	UserID string `json:"user_id"`
}

// VerifyIdentity implements Verifier.
func (v *HTTPVerifier) VerifyIdentity(ctx context.Context, token string) (string, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/introspect", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", core.NewAuthenticationError("invalid token")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("identity service error %d: %s", resp.StatusCode, string(body))
	}

	var decoded introspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if !decoded.Active || decoded.UserID == "" {
		return "", core.NewAuthenticationError("invalid token")
	}
	return decoded.UserID, nil
}
