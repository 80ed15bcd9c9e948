package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newCasesHandler(t *testing.T) (CasesHandler, string) {
	t.Helper()
	eng, caseID := newTestEngine(t)
	return CasesHandler{Engine: eng, Logger: slog.New(slog.DiscardHandler)}, caseID
}

func TestCasesHandler_Create(t *testing.T) {
	h, _ := newCasesHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/cases",
		jsonBody(`{"title":"People v. Ortiz","text":"Alleged embezzlement of city funds."}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var c struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.ID == "" || c.Title != "People v. Ortiz" {
		t.Fatalf("case = %+v", c)
	}
	if c.Summary == "" {
		t.Fatal("summary is empty")
	}
}

func TestCasesHandler_CreateMissingTitle(t *testing.T) {
	h, _ := newCasesHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/cases", jsonBody(`{"text":"no title"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestCasesHandler_CreateBadBase64(t *testing.T) {
	h, _ := newCasesHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/cases",
		jsonBody(`{"title":"t","document_b64":"not base64!!"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestCasesHandler_Get(t *testing.T) {
	h, caseID := newCasesHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cases/"+caseID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cases/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestCasesHandler_List(t *testing.T) {
	h, _ := newCasesHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cases", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var resp struct {
		Cases []json.RawMessage `json:"cases"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Cases) != 1 {
		t.Fatalf("cases=%d, want 1", len(resp.Cases))
	}
}

func TestCasesHandler_History(t *testing.T) {
	h, caseID := newCasesHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cases/"+caseID+"/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Sessions []json.RawMessage `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Sessions) != 0 {
		t.Fatalf("sessions=%d, want 0", len(resp.Sessions))
	}
}

func TestCasesHandler_MethodNotAllowed(t *testing.T) {
	h, caseID := newCasesHandler(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/cases/"+caseID, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", rec.Code)
	}
}
