package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/verdictech/gavel/pkg/casecache"
	"github.com/verdictech/gavel/pkg/core"
	"github.com/verdictech/gavel/pkg/evidence"
	"github.com/verdictech/gavel/pkg/store"
)

type fakeExtractor struct {
	text  string
	pages int
	err   error
}

func (f *fakeExtractor) Name() string { return "fake-extractor" }

func (f *fakeExtractor) Extract(ctx context.Context, document []byte) (string, int, error) {
	return f.text, f.pages, f.err
}

func newCaseFixture(t *testing.T, extractor *fakeExtractor) (*Engine, *fakeAnalyzer, *evidence.MemoryStore) {
	t.Helper()
	analyzer := &fakeAnalyzer{summary: "strategy summary"}
	ev := evidence.NewMemory()
	cache, err := casecache.New(casecache.CacheTypeMemory)
	if err != nil {
		t.Fatalf("casecache.New: %v", err)
	}

	eng, err := New(Deps{
		Store:       store.NewMemory(),
		Cache:       cache,
		Evidence:    ev,
		Transcriber: &fakeSTT{},
		Generator:   &fakeGen{},
		Synthesizer: &fakeTTS{},
		Analyzer:    analyzer,
		Extractor:   extractor,
		Logger:      slog.New(slog.DiscardHandler),
	}, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, analyzer, ev
}

func TestCreateCaseFromDocument(t *testing.T) {
	eng, _, _ := newCaseFixture(t, &fakeExtractor{text: "extracted case text", pages: 3})

	c, err := eng.CreateCase(context.Background(), CreateCaseInput{
		OwnerID:  "U1",
		Title:    "State v. Doe",
		Document: []byte("%PDF"),
	})
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	if c.Text != "extracted case text" {
		t.Fatalf("text = %q", c.Text)
	}
	if c.Summary != "strategy summary" {
		t.Fatalf("summary = %q, want analyzer summary", c.Summary)
	}
	if len(c.EvidenceRefs) != 3 {
		t.Fatalf("evidence refs = %d, want 3", len(c.EvidenceRefs))
	}

	// The cache serves subsequent reads.
	got, err := eng.GetCase(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	if got.ID != c.ID {
		t.Fatalf("GetCase = %+v", got)
	}
}

func TestJoinByCodeListsEvidence(t *testing.T) {
	eng, _, ev := newCaseFixture(t, &fakeExtractor{text: "extracted case text", pages: 2})

	c, err := eng.CreateCase(context.Background(), CreateCaseInput{
		OwnerID:  "U1",
		Title:    "State v. Doe",
		Document: []byte("%PDF"),
	})
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}

	// References registered after ingestion are visible to joiners.
	if _, err := ev.Add(context.Background(), c.ID, []string{"exhibit-a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	sess, err := eng.CreateSession(context.Background(), c.ID, "U1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	result, err := eng.JoinByCode(context.Background(), sess.Code)
	if err != nil {
		t.Fatalf("JoinByCode: %v", err)
	}
	if len(result.EvidenceRefs) != 3 {
		t.Fatalf("evidence refs = %v, want 3", result.EvidenceRefs)
	}
	if result.EvidenceRefs[2] != "exhibit-a" {
		t.Fatalf("refs = %v", result.EvidenceRefs)
	}
}

func TestCreateCaseSummaryFallback(t *testing.T) {
	eng, analyzer, _ := newCaseFixture(t, nil)
	analyzer.summary = ""

	c, err := eng.CreateCase(context.Background(), CreateCaseInput{
		OwnerID: "U1",
		Title:   "State v. Doe",
		Text:    "plain text case",
	})
	if err != nil {
		t.Fatalf("CreateCase: %v", err)
	}
	if c.Summary != summaryPlaceholder {
		t.Fatalf("summary = %q, want placeholder", c.Summary)
	}
}

func TestCreateCaseValidation(t *testing.T) {
	eng, _, _ := newCaseFixture(t, nil)

	var coreErr *core.Error
	_, err := eng.CreateCase(context.Background(), CreateCaseInput{OwnerID: "U1", Text: "text"})
	if !errors.As(err, &coreErr) || coreErr.Param != "title" {
		t.Fatalf("missing title err = %v", err)
	}

	_, err = eng.CreateCase(context.Background(), CreateCaseInput{OwnerID: "U1", Title: "t"})
	if !errors.As(err, &coreErr) || coreErr.Type != core.ErrInvalidRequest {
		t.Fatalf("missing body err = %v", err)
	}
}

func TestListCasesNewestFirst(t *testing.T) {
	eng, _, _ := newCaseFixture(t, nil)

	var ids []string
	for _, title := range []string{"first", "second", "third"} {
		c, err := eng.CreateCase(context.Background(), CreateCaseInput{
			OwnerID: "U1", Title: title, Text: "text",
		})
		if err != nil {
			t.Fatalf("CreateCase: %v", err)
		}
		ids = append(ids, c.ID)
	}

	cases, err := eng.ListCases(context.Background(), "U1")
	if err != nil {
		t.Fatalf("ListCases: %v", err)
	}
	if len(cases) != 3 {
		t.Fatalf("cases = %d, want 3", len(cases))
	}
	if cases[0].ID != ids[2] || cases[2].ID != ids[0] {
		t.Fatalf("order = %q,%q,%q, want newest first", cases[0].Title, cases[1].Title, cases[2].Title)
	}
}
