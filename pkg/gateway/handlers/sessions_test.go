package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newSessionsHandler(t *testing.T) (SessionsHandler, string) {
	t.Helper()
	eng, caseID := newTestEngine(t)
	return SessionsHandler{Engine: eng, Logger: slog.New(slog.DiscardHandler)}, caseID
}

func createSession(t *testing.T, h SessionsHandler, caseID string) (id, code string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions",
		jsonBody(`{"case_id":"`+caseID+`"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var sess struct {
		ID   string `json:"id"`
		Code string `json:"code"`
		Seq  int    `json:"seq"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.ID == "" || len(sess.Code) != 6 || sess.Seq != 1 {
		t.Fatalf("session = %+v", sess)
	}
	return sess.ID, sess.Code
}

func TestSessionsHandler_CreateAndGet(t *testing.T) {
	h, caseID := newSessionsHandler(t)
	id, _ := createSession(t, h, caseID)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestSessionsHandler_CreateUnknownCase(t *testing.T) {
	h, _ := newSessionsHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", jsonBody(`{"case_id":"nope"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestSessionsHandler_Join(t *testing.T) {
	h, caseID := newSessionsHandler(t)
	id, code := createSession(t, h, caseID)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/join",
		jsonBody(`{"code":"`+code+`"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var joined struct {
		SessionID string `json:"session_id"`
		CaseTitle string `json:"case_title"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &joined); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if joined.SessionID != id {
		t.Fatalf("session_id=%q, want %q", joined.SessionID, id)
	}
	if joined.CaseTitle == "" {
		t.Fatal("case_title is empty")
	}
}

func TestSessionsHandler_JoinUnknownCode(t *testing.T) {
	h, _ := newSessionsHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/join", jsonBody(`{"code":"000000"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestSessionsHandler_EndIsIdempotent(t *testing.T) {
	h, caseID := newSessionsHandler(t)
	id, _ := createSession(t, h, caseID)

	end := func() (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/v1/sessions/end",
			jsonBody(`{"session_id":"`+id+`"}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		return rec.Code, body
	}

	status, body := end()
	if status != http.StatusOK {
		t.Fatalf("first end status=%d", status)
	}
	if body["already_ended"] != false {
		t.Fatalf("already_ended=%v on first end", body["already_ended"])
	}
	if body["summary"] != "Strong opening." || body["score"] != float64(7) {
		t.Fatalf("report = %+v", body)
	}

	status, body = end()
	if status != http.StatusOK {
		t.Fatalf("second end status=%d", status)
	}
	if body["already_ended"] != true {
		t.Fatalf("already_ended=%v on repeat end", body["already_ended"])
	}
	if body["summary"] != "Strong opening." {
		t.Fatalf("repeat end lost the stored report: %+v", body)
	}
}

func TestSessionsHandler_EndByCodeThenJoinRejected(t *testing.T) {
	h, caseID := newSessionsHandler(t)
	_, code := createSession(t, h, caseID)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/end",
		jsonBody(`{"code":"`+code+`"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("end status=%d body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/sessions/join",
		jsonBody(`{"code":"`+code+`"}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("join status=%d, want 409", rec.Code)
	}
}

func TestSessionsHandler_EndRequiresIdentifier(t *testing.T) {
	h, _ := newSessionsHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/end", jsonBody(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}
