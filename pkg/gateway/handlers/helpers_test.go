package handlers

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/verdictech/gavel/pkg/core/ai"
	"github.com/verdictech/gavel/pkg/core/engine"
	"github.com/verdictech/gavel/pkg/core/types"
	"github.com/verdictech/gavel/pkg/gateway/config"
	"github.com/verdictech/gavel/pkg/store"
)

type fakeSTT struct {
	text string
	err  error
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func (f *fakeSTT) Transcribe(_ context.Context, audio io.Reader, _ ai.TranscribeOptions) (string, error) {
	_, _ = io.ReadAll(audio)
	return f.text, f.err
}

type fakeGen struct {
	reply ai.Reply
	err   error
}

func (f *fakeGen) Name() string { return "fake-gen" }

func (f *fakeGen) GenerateReply(context.Context, ai.GenerateRequest) (ai.Reply, error) {
	return f.reply, f.err
}

type fakeTTS struct {
	audio []byte
	err   error
}

func (f *fakeTTS) Name() string { return "fake-tts" }

func (f *fakeTTS) Synthesize(context.Context, string, types.Role) ([]byte, error) {
	return f.audio, f.err
}

type fakeAnalyzer struct {
	analysis types.Analysis
	summary  string
	err      error
}

func (f *fakeAnalyzer) Name() string { return "fake-analyzer" }

func (f *fakeAnalyzer) Analyze(context.Context, []types.TranscriptEntry) (types.Analysis, error) {
	return f.analysis, f.err
}

func (f *fakeAnalyzer) SummarizeCase(context.Context, string, string) (string, error) {
	return f.summary, f.err
}

// newTestEngine wires an engine over the in-memory store with one
// seeded case. The returned case ID belongs to owner "u1".
func newTestEngine(t *testing.T) (*engine.Engine, string) {
	t.Helper()

	st := store.NewMemory()
	caseID := "case-1"
	err := st.CreateCase(context.Background(), &types.Case{
		ID:      caseID,
		OwnerID: "u1",
		Title:   "State v. Harlow",
		Text:    "The defendant is accused of wire fraud.",
		Summary: "A wire fraud prosecution.",
	})
	if err != nil {
		t.Fatalf("seed case: %v", err)
	}

	eng, err := engine.New(engine.Deps{
		Store:       st,
		Transcriber: &fakeSTT{text: "I move to dismiss."},
		Generator: &fakeGen{reply: ai.Reply{
			Persona: types.RoleJudge,
			Text:    "Motion denied.",
			Emotion: "stern",
		}},
		Synthesizer: &fakeTTS{audio: []byte("audio-bytes")},
		Analyzer: &fakeAnalyzer{
			analysis: types.Analysis{Summary: "Strong opening.", Feedback: "Cite precedent.", Score: 7},
			summary:  "A wire fraud prosecution.",
		},
		Logger: slog.New(slog.DiscardHandler),
	}, engine.Config{})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng, caseID
}

func testConfig() config.Config {
	return config.Config{
		AuthMode:             config.AuthModeDisabled,
		StoreDriver:          config.StoreDriverMemory,
		CacheDriver:          config.CacheDriverMemory,
		CodeAttempts:         5,
		TranscribeTimeout:    time.Second,
		GenerateTimeout:      time.Second,
		SynthesizeTimeout:    time.Second,
		AnalyzeTimeout:       time.Second,
		MaxBodyBytes:         1 << 20,
		ReadHeaderTimeout:    time.Second,
		ReadTimeout:          time.Second,
		LiveMaxFrameBytes:    1 << 20,
		LiveWSPingInterval:   20 * time.Second,
		LiveWSWriteTimeout:   2 * time.Second,
		LiveHandshakeTimeout: 2 * time.Second,
	}
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}
