package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/verdictech/gavel/pkg/core"
	"github.com/verdictech/gavel/pkg/core/engine"
	"github.com/verdictech/gavel/pkg/gateway/mw"
)

// SessionsHandler serves /v1/sessions and its sub-resources:
//
//	POST /v1/sessions            create a session for a case
//	POST /v1/sessions/join       resolve a join code to session context
//	POST /v1/sessions/end        finalize by session_id or code
//	GET  /v1/sessions/{id}       fetch the owner's session record
type SessionsHandler struct {
	Engine *engine.Engine
	Logger *slog.Logger
}

func (h SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")
	switch {
	case rest == "":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, reqID, "POST")
			return
		}
		h.create(w, r, reqID)
	case rest == "join":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, reqID, "POST")
			return
		}
		h.join(w, r, reqID)
	case rest == "end":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, reqID, "POST")
			return
		}
		h.end(w, r, reqID)
	case !strings.Contains(rest, "/"):
		if r.Method != http.MethodGet {
			methodNotAllowed(w, reqID, "GET")
			return
		}
		h.get(w, r, reqID, rest)
	default:
		NotFoundHandler{}.ServeHTTP(w, r)
	}
}

func (h SessionsHandler) create(w http.ResponseWriter, r *http.Request, reqID string) {
	var body struct {
		CaseID string `json:"case_id"`
	}
	if !decodeJSONBody(w, r, reqID, &body) {
		return
	}
	if strings.TrimSpace(body.CaseID) == "" {
		writeCoreErrorJSON(w, reqID,
			core.NewInvalidRequestErrorWithParam("case_id is required", "case_id"),
			http.StatusBadRequest)
		return
	}

	sess, err := h.Engine.CreateSession(r.Context(), strings.TrimSpace(body.CaseID), ownerID(r))
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h SessionsHandler) join(w http.ResponseWriter, r *http.Request, reqID string) {
	var body struct {
		Code string `json:"code"`
	}
	if !decodeJSONBody(w, r, reqID, &body) {
		return
	}
	if strings.TrimSpace(body.Code) == "" {
		writeCoreErrorJSON(w, reqID,
			core.NewInvalidRequestErrorWithParam("code is required", "code"),
			http.StatusBadRequest)
		return
	}

	result, err := h.Engine.JoinByCode(r.Context(), strings.TrimSpace(body.Code))
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// end finalizes a session. Ending an already-completed session returns
// the stored report with 200 rather than an error.
func (h SessionsHandler) end(w http.ResponseWriter, r *http.Request, reqID string) {
	var body struct {
		SessionID string `json:"session_id,omitempty"`
		Code      string `json:"code,omitempty"`
	}
	if !decodeJSONBody(w, r, reqID, &body) {
		return
	}

	var (
		result *engine.EndResult
		err    error
	)
	switch {
	case strings.TrimSpace(body.SessionID) != "":
		result, err = h.Engine.EndByID(r.Context(), strings.TrimSpace(body.SessionID))
	case strings.TrimSpace(body.Code) != "":
		result, err = h.Engine.EndByCode(r.Context(), strings.TrimSpace(body.Code))
	default:
		writeCoreErrorJSON(w, reqID,
			core.NewInvalidRequestError("one of session_id or code is required"),
			http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, reqID, err)
		return
	}

	resp := struct {
		SessionID       string `json:"session_id"`
		Summary         string `json:"summary"`
		Feedback        string `json:"feedback"`
		Score           int    `json:"score"`
		ClosingText     string `json:"closing_text,omitempty"`
		ClosingAudioB64 string `json:"closing_audio_b64,omitempty"`
		AlreadyEnded    bool   `json:"already_ended"`
	}{
		SessionID:    result.SessionID,
		Summary:      result.Summary,
		Feedback:     result.Feedback,
		Score:        result.Score,
		ClosingText:  result.ClosingText,
		AlreadyEnded: result.AlreadyEnded,
	}
	if len(result.ClosingAudio) > 0 {
		resp.ClosingAudioB64 = base64.StdEncoding.EncodeToString(result.ClosingAudio)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h SessionsHandler) get(w http.ResponseWriter, r *http.Request, reqID, sessionID string) {
	sess, err := h.Engine.GetSession(r.Context(), sessionID, ownerID(r))
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
