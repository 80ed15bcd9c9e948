package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/verdictech/gavel/pkg/core"
	"github.com/verdictech/gavel/pkg/core/engine"
	"github.com/verdictech/gavel/pkg/gateway/auth"
	"github.com/verdictech/gavel/pkg/gateway/mw"
)

// CasesHandler serves /v1/cases and /v1/cases/{id}[/history].
type CasesHandler struct {
	Engine *engine.Engine
	Logger *slog.Logger
}

func (h CasesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/cases"), "/")
	switch {
	case rest == "":
		switch r.Method {
		case http.MethodPost:
			h.create(w, r, reqID)
		case http.MethodGet:
			h.list(w, r, reqID)
		default:
			methodNotAllowed(w, reqID, "GET, POST")
		}
	case strings.HasSuffix(rest, "/history"):
		if r.Method != http.MethodGet {
			methodNotAllowed(w, reqID, "GET")
			return
		}
		h.history(w, r, reqID, strings.TrimSuffix(rest, "/history"))
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

func (h CasesHandler) create(w http.ResponseWriter, r *http.Request, reqID string) {
	var body struct {
		Title       string `json:"title"`
		Text        string `json:"text,omitempty"`
		DocumentB64 string `json:"document_b64,omitempty"`
	}
	if !decodeJSONBody(w, r, reqID, &body) {
		return
	}

	var document []byte
	if strings.TrimSpace(body.DocumentB64) != "" {
		var err error
		document, err = base64.StdEncoding.DecodeString(body.DocumentB64)
		if err != nil {
			writeCoreErrorJSON(w, reqID,
				core.NewInvalidRequestErrorWithParam("document_b64 is not valid base64", "document_b64"),
				http.StatusBadRequest)
			return
		}
	}

	c, err := h.Engine.CreateCase(r.Context(), engine.CreateCaseInput{
		OwnerID:  ownerID(r),
		Title:    body.Title,
		Text:     body.Text,
		Document: document,
	})
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h CasesHandler) list(w http.ResponseWriter, r *http.Request, reqID string) {
	cases, err := h.Engine.ListCases(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Cases any `json:"cases"`
	}{Cases: cases})
}

func (h CasesHandler) get(w http.ResponseWriter, r *http.Request, reqID, caseID string) {
	c, err := h.Engine.GetCase(r.Context(), caseID)
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h CasesHandler) history(w http.ResponseWriter, r *http.Request, reqID, caseID string) {
	sessions, err := h.Engine.History(r.Context(), caseID, ownerID(r))
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Sessions any `json:"sessions"`
	}{Sessions: sessions})
}

func ownerID(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return p.UserID
	}
	return ""
}
