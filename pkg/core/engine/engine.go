// Package engine implements the deliberation session core: session
// creation and lookup, the audio turn pipeline, and the idempotent
// finalization state machine. All session mutations go through a
// per-session exclusive section; different sessions proceed in
// parallel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/verdictech/gavel/pkg/casecache"
	"github.com/verdictech/gavel/pkg/core"
	"github.com/verdictech/gavel/pkg/core/ai"
	"github.com/verdictech/gavel/pkg/core/types"
	"github.com/verdictech/gavel/pkg/evidence"
	"github.com/verdictech/gavel/pkg/store"
)

// ClosingText is spoken by the Judge when a session is finalized.
const ClosingText = "The court is adjourned. We will review your arguments in the next session."

// Fallback analysis used when the analysis capability is unavailable.
// Finalization always completes; it never waits on a healthy upstream.
var fallbackAnalysis = types.Analysis{
	Summary:  "Error generating summary",
	Feedback: "Please try again.",
	Score:    0,
}

// Config tunes the engine. Zero values take defaults.
type Config struct {
	// CodeAttempts bounds join-code collision retries.
	CodeAttempts int

	// Timeouts for external capability calls. Expiry degrades to the
	// same fallback as an upstream error.
	TranscribeTimeout time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration
	AnalyzeTimeout    time.Duration

	// HistoryLimit caps how many transcript entries are sent as
	// generation context. Zero sends the full transcript. The stored
	// ledger is never truncated.
	HistoryLimit int

	// AudioDir is where per-turn audio is staged. Empty uses the OS
	// temp directory.
	AudioDir string
}

func (c Config) withDefaults() Config {
	if c.CodeAttempts <= 0 {
		c.CodeAttempts = 5
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = 30 * time.Second
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 30 * time.Second
	}
	if c.SynthesizeTimeout <= 0 {
		c.SynthesizeTimeout = 30 * time.Second
	}
	if c.AnalyzeTimeout <= 0 {
		c.AnalyzeTimeout = 60 * time.Second
	}
	return c
}

// Deps are the engine's collaborators.
type Deps struct {
	Store       store.Store
	Cache       casecache.Cache
	Evidence    evidence.Store
	Transcriber ai.Transcriber
	Generator   ai.Generator
	Synthesizer ai.Synthesizer
	Analyzer    ai.Analyzer
	Extractor   ai.DocumentExtractor
	Logger      *slog.Logger
}

// Engine is the deliberation session core.
type Engine struct {
	store    store.Store
	cache    casecache.Cache
	evidence evidence.Store

	stt      ai.Transcriber
	gen      ai.Generator
	tts      ai.Synthesizer
	analyzer ai.Analyzer
	extract  ai.DocumentExtractor

	locks  *sessionLocks
	cfg    Config
	logger *slog.Logger

	// newCode is swapped in tests to force collisions.
	newCode func() string
}

// New creates an engine. Store, Transcriber, Generator, Synthesizer,
// and Analyzer are required; Cache, Evidence, and Extractor are
// optional.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Transcriber == nil || deps.Generator == nil || deps.Synthesizer == nil || deps.Analyzer == nil {
		return nil, fmt.Errorf("all model capabilities are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    deps.Store,
		cache:    deps.Cache,
		evidence: deps.Evidence,
		stt:      deps.Transcriber,
		gen:      deps.Generator,
		tts:      deps.Synthesizer,
		analyzer: deps.Analyzer,
		extract:  deps.Extractor,
		locks:    newSessionLocks(),
		cfg:      cfg.withDefaults(),
		logger:   logger,
		newCode:  newJoinCode,
	}, nil
}

// newJoinCode draws a 6-digit numeric code.
func newJoinCode() string {
	return fmt.Sprintf("%06d", rand.IntN(1000000))
}

// CreateSession registers a new active session for the case and owner.
// The join code is drawn from the numeric space with bounded collision
// retries.
func (e *Engine) CreateSession(ctx context.Context, caseID, ownerID string) (*types.Session, error) {
	if _, err := e.fetchCase(ctx, caseID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < e.cfg.CodeAttempts; attempt++ {
		sess := &types.Session{
			ID:      uuid.NewString(),
			Code:    e.newCode(),
			CaseID:  caseID,
			OwnerID: ownerID,
		}
		err := e.store.CreateSession(ctx, sess)
		if errors.Is(err, store.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		e.logger.Info("session created",
			"session_id", sess.ID, "case_id", caseID, "seq", sess.Seq)
		return sess, nil
	}
	return nil, core.NewCodeSpaceExhaustedError(e.cfg.CodeAttempts)
}

// ResolveByID returns the session or NotFound.
func (e *Engine) ResolveByID(ctx context.Context, id string) (*types.Session, error) {
	sess, err := e.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NewNotFoundError("session not found")
	}
	return sess, err
}

// ResolveByCode returns the session holding the join code or NotFound.
// When the code has been recycled, the active holder wins.
func (e *Engine) ResolveByCode(ctx context.Context, code string) (*types.Session, error) {
	sess, err := e.store.FindByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NewNotFoundError("session not found")
	}
	return sess, err
}

// JoinResult is the payload handed to a client joining by code.
type JoinResult struct {
	SessionID    string   `json:"session_id"`
	CaseID       string   `json:"case_id"`
	CaseTitle    string   `json:"case_title"`
	EvidenceRefs []string `json:"evidence_refs"`
	CaseSummary  string   `json:"case_summary"`
}

// JoinByCode resolves a join code to a joinable session and its case
// context. A completed session's code yields SessionEnded.
func (e *Engine) JoinByCode(ctx context.Context, code string) (*JoinResult, error) {
	sess, err := e.ResolveByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if sess.Completed() {
		return nil, core.NewInvalidStateError("session has ended", core.CodeSessionEnded)
	}

	c, err := e.fetchCase(ctx, sess.CaseID)
	if err != nil {
		return nil, err
	}

	// The evidence store is authoritative for page references; the case
	// record only carries the snapshot taken at ingestion.
	refs := c.EvidenceRefs
	if e.evidence != nil {
		listed, err := e.evidence.List(ctx, sess.CaseID)
		if err != nil {
			e.logger.Warn("evidence lookup failed", "case_id", sess.CaseID, "error", err)
		} else if len(listed) > 0 {
			refs = listed
		}
	}

	return &JoinResult{
		SessionID:    sess.ID,
		CaseID:       c.ID,
		CaseTitle:    c.Title,
		EvidenceRefs: refs,
		CaseSummary:  c.Summary,
	}, nil
}

// GetSession returns the full session record for its owner.
func (e *Engine) GetSession(ctx context.Context, id, ownerID string) (*types.Session, error) {
	sess, err := e.ResolveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && sess.OwnerID != ownerID {
		return nil, core.NewNotFoundError("session not found")
	}
	return sess, nil
}

// History lists the owner's sessions for a case, newest first.
func (e *Engine) History(ctx context.Context, caseID, ownerID string) ([]*types.Session, error) {
	sessions, err := e.store.History(ctx, caseID, ownerID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(sessions)-1; i < j; i, j = i+1, j-1 {
		sessions[i], sessions[j] = sessions[j], sessions[i]
	}
	return sessions, nil
}

// EndResult is the finalization payload.
type EndResult struct {
	SessionID    string `json:"session_id"`
	Summary      string `json:"summary"`
	Feedback     string `json:"feedback"`
	Score        int    `json:"score"`
	ClosingText  string `json:"closing_text,omitempty"`
	ClosingAudio []byte `json:"closing_audio,omitempty"`
	AlreadyEnded bool   `json:"-"`
}

// EndByCode finalizes the session holding code.
func (e *Engine) EndByCode(ctx context.Context, code string) (*EndResult, error) {
	sess, err := e.ResolveByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return e.end(ctx, sess.ID)
}

// EndByID finalizes the session with the given ID.
func (e *Engine) EndByID(ctx context.Context, id string) (*EndResult, error) {
	sess, err := e.ResolveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.end(ctx, sess.ID)
}

// end drives the active -> completed transition. Repeat calls return
// the persisted result without touching any external capability. The
// per-session lock makes the transition at-most-once under racing end
// requests.
func (e *Engine) end(ctx context.Context, sessionID string) (*EndResult, error) {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	sess, err := e.ResolveByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Completed() {
		return endResultFrom(sess, nil, true), nil
	}

	analysis, err := e.analyze(ctx, sess.Transcript)
	if err != nil {
		e.logger.Warn("analysis failed, using fallback",
			"session_id", sessionID, "error", err)
		analysis = fallbackAnalysis
	}

	closingAudio := e.synthesize(ctx, ClosingText, types.RoleJudge)

	if err := e.store.Finalize(ctx, sessionID, analysis, ClosingText); err != nil {
		if errors.Is(err, store.ErrCompleted) {
			sess, err = e.ResolveByID(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return endResultFrom(sess, nil, true), nil
		}
		return nil, err
	}

	e.logger.Info("session completed", "session_id", sessionID, "score", analysis.Score)

	return &EndResult{
		SessionID:    sessionID,
		Summary:      analysis.Summary,
		Feedback:     analysis.Feedback,
		Score:        analysis.Score,
		ClosingText:  ClosingText,
		ClosingAudio: closingAudio,
	}, nil
}

func endResultFrom(sess *types.Session, closingAudio []byte, alreadyEnded bool) *EndResult {
	res := &EndResult{
		SessionID:    sess.ID,
		ClosingText:  sess.ClosingText,
		ClosingAudio: closingAudio,
		AlreadyEnded: alreadyEnded,
	}
	if sess.Analysis != nil {
		res.Summary = sess.Analysis.Summary
		res.Feedback = sess.Analysis.Feedback
		res.Score = sess.Analysis.Score
	}
	return res
}

func (e *Engine) analyze(ctx context.Context, transcript []types.TranscriptEntry) (types.Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AnalyzeTimeout)
	defer cancel()
	return e.analyzer.Analyze(ctx, transcript)
}

// synthesize renders speech best-effort; nil audio is a valid degraded
// outcome.
func (e *Engine) synthesize(ctx context.Context, text string, persona types.Role) []byte {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.SynthesizeTimeout)
	defer cancel()

	audio, err := e.tts.Synthesize(ctx, text, persona)
	if err != nil {
		e.logger.Warn("synthesis failed", "provider", e.tts.Name(), "error", err)
		return nil
	}
	return audio
}

// fetchCase reads case context through the cache when one is wired.
func (e *Engine) fetchCase(ctx context.Context, caseID string) (*types.Case, error) {
	if e.cache != nil {
		c, err := e.cache.Get(ctx, caseID)
		if err != nil {
			e.logger.Warn("case cache read failed", "case_id", caseID, "error", err)
		} else if c != nil {
			return c, nil
		}
	}

	c, err := e.store.GetCase(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.NewNotFoundError("case not found")
	}
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, c); err != nil {
			e.logger.Warn("case cache write failed", "case_id", caseID, "error", err)
		}
	}
	return c, nil
}
