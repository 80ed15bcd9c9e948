package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/verdictech/gavel/pkg/core/ai"
)

func TestDeepgramTranscribe(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		if string(body) != "audio-bytes" {
			t.Errorf("body = %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":" your honor, I object "}]}]}}`))
	}))
	defer srv.Close()

	p := NewDeepgram("dg-key").WithBaseURL(srv.URL)
	text, err := p.Transcribe(context.Background(), strings.NewReader("audio-bytes"),
		ai.TranscribeOptions{Language: "en", Format: "wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "your honor, I object" {
		t.Fatalf("text = %q", text)
	}
	if gotAuth != "Token dg-key" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if !strings.Contains(gotQuery, "language=en") || !strings.Contains(gotQuery, "model=nova-2") {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestDeepgramTranscribe_EmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	p := NewDeepgram("dg-key").WithBaseURL(srv.URL)
	text, err := p.Transcribe(context.Background(), strings.NewReader("x"), ai.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
}

func TestDeepgramTranscribe_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewDeepgram("dg-key").WithBaseURL(srv.URL)
	if _, err := p.Transcribe(context.Background(), strings.NewReader("x"), ai.TranscribeOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeepgramTranscribe_MissingKey(t *testing.T) {
	p := NewDeepgram("")
	if _, err := p.Transcribe(context.Background(), strings.NewReader("x"), ai.TranscribeOptions{}); err == nil {
		t.Fatal("expected error")
	}
}
