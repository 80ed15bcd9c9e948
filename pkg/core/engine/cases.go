package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verdictech/gavel/pkg/core"
	"github.com/verdictech/gavel/pkg/core/types"
)

// summaryPlaceholder is stored until the strategy summary comes back.
const summaryPlaceholder = "Processing..."

// CreateCaseInput carries an ingestion request. Either Text or
// Document must be set; a document goes through the extractor
// collaborator first.
type CreateCaseInput struct {
	OwnerID  string
	Title    string
	Text     string
	Document []byte
}

// CreateCase ingests a case document, registers its evidence pages,
// and asks the analysis capability for a strategy summary. Summary
// generation is best-effort; the case is usable with the placeholder.
func (e *Engine) CreateCase(ctx context.Context, in CreateCaseInput) (*types.Case, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("title is required", "title")
	}

	text := strings.TrimSpace(in.Text)
	pages := 0
	if text == "" {
		if len(in.Document) == 0 {
			return nil, core.NewInvalidRequestError("either text or document is required")
		}
		if e.extract == nil {
			return nil, core.NewInvalidRequestError("document ingestion is not configured")
		}
		var err error
		text, pages, err = e.extract.Extract(ctx, in.Document)
		if err != nil {
			return nil, core.NewUpstreamError("extract", err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, core.NewInvalidRequestError("document contains no extractable text")
		}
	}

	c := &types.Case{
		ID:        uuid.NewString(),
		OwnerID:   in.OwnerID,
		Title:     strings.TrimSpace(in.Title),
		Text:      text,
		Summary:   summaryPlaceholder,
		CreatedAt: time.Now(),
	}

	if e.evidence != nil && pages > 0 {
		refs := make([]string, 0, pages)
		for i := 1; i <= pages; i++ {
			refs = append(refs, fmt.Sprintf("cases/%s/pages/%d.png", c.ID, i))
		}
		stored, err := e.evidence.Add(ctx, c.ID, refs)
		if err != nil {
			e.logger.Warn("evidence registration failed", "case_id", c.ID, "error", err)
		} else {
			c.EvidenceRefs = stored
		}
	}

	if err := e.store.CreateCase(ctx, c); err != nil {
		return nil, err
	}

	if summary, err := e.summarizeCase(ctx, c.ID, text); err != nil {
		e.logger.Warn("case summary failed, keeping placeholder",
			"case_id", c.ID, "error", err)
	} else if summary != "" {
		if err := e.store.UpdateCaseSummary(ctx, c.ID, summary); err != nil {
			e.logger.Warn("case summary update failed", "case_id", c.ID, "error", err)
		} else {
			c.Summary = summary
		}
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, c); err != nil {
			e.logger.Warn("case cache write failed", "case_id", c.ID, "error", err)
		}
	}

	e.logger.Info("case ingested", "case_id", c.ID, "pages", pages, "chars", len(text))
	return c, nil
}

func (e *Engine) summarizeCase(ctx context.Context, caseID, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AnalyzeTimeout)
	defer cancel()
	return e.analyzer.SummarizeCase(ctx, caseID, text)
}

// GetCase returns the case, reading through the cache when wired.
func (e *Engine) GetCase(ctx context.Context, caseID string) (*types.Case, error) {
	return e.fetchCase(ctx, caseID)
}

// ListCases returns the owner's cases, newest first.
func (e *Engine) ListCases(ctx context.Context, ownerID string) ([]*types.Case, error) {
	cases, err := e.store.ListCases(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(cases)-1; i < j; i, j = i+1, j-1 {
		cases[i], cases[j] = cases[j], cases[i]
	}
	return cases, nil
}
