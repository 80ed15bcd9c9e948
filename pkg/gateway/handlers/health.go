package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/verdictech/gavel/pkg/gateway/config"
	"github.com/verdictech/gavel/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		AuthMode string   `json:"auth_mode"`
		Store    string   `json:"store"`
		Cache    string   `json:"cache"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired &&
		len(h.Config.APIKeys) == 0 && h.Config.IdentityServiceURL == "" {
		issues = append(issues, "auth_mode=required but no api keys or identity service configured")
	}

	if h.Config.MaxBodyBytes <= 0 {
		issues = append(issues, "max_body_bytes must be > 0")
	}
	if h.Config.CodeAttempts <= 0 {
		issues = append(issues, "code_attempts must be > 0")
	}
	if h.Config.TranscribeTimeout <= 0 || h.Config.GenerateTimeout <= 0 ||
		h.Config.SynthesizeTimeout <= 0 || h.Config.AnalyzeTimeout <= 0 {
		issues = append(issues, "capability timeouts must be > 0")
	}
	if h.Config.LiveMaxFrameBytes <= 0 {
		issues = append(issues, "live max frame bytes must be > 0")
	}
	if h.Config.LiveWSPingInterval <= 0 || h.Config.LiveWSWriteTimeout <= 0 {
		issues = append(issues, "live write/ping intervals must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:       ok,
		AuthMode: string(h.Config.AuthMode),
		Store:    string(h.Config.StoreDriver),
		Cache:    string(h.Config.CacheDriver),
		Draining: draining,
		Issues:   issues,
	})
}
