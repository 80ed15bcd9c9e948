// Package store persists cases and deliberation sessions. The package
// declares the Store contract and an in-memory driver; the pg
// subpackage provides the PostgreSQL driver.
package store

import (
	"context"
	"errors"

	"github.com/verdictech/gavel/pkg/core/types"
)

var (
	// ErrNotFound indicates the case or session does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrCodeTaken indicates another non-completed session already holds
	// the join code. Callers retry with a fresh code.
	ErrCodeTaken = errors.New("store: join code taken")

	// ErrCompleted indicates a write against an already-finalized
	// session.
	ErrCompleted = errors.New("store: session completed")
)

// Store is the persistence contract for cases and sessions.
//
// CreateSession assigns the sequence number: 1-based, gap-free, scoped
// to the (case, owner) pair. The transcript is append-only; entries are
// never rewritten after AppendTurns.
type Store interface {
	CreateCase(ctx context.Context, c *types.Case) error
	GetCase(ctx context.Context, id string) (*types.Case, error)
	ListCases(ctx context.Context, ownerID string) ([]*types.Case, error)
	UpdateCaseSummary(ctx context.Context, id, summary string) error

	// CreateSession persists the session, filling Seq, Status, and
	// CreatedAt. Returns ErrCodeTaken when a non-completed session
	// already holds s.Code.
	CreateSession(ctx context.Context, s *types.Session) error

	GetSession(ctx context.Context, id string) (*types.Session, error)

	// FindByCode resolves a join code. When both an active and completed
	// sessions carry the code, the active one wins; otherwise the most
	// recently created match is returned.
	FindByCode(ctx context.Context, code string) (*types.Session, error)

	// AppendTurns appends entries to an active session's transcript in
	// one atomic write. Returns ErrCompleted for finalized sessions.
	AppendTurns(ctx context.Context, sessionID string, entries []types.TranscriptEntry) error

	// Finalize moves an active session to completed, recording the
	// analysis, closing text, and end time. Returns ErrCompleted when
	// the session was already finalized.
	Finalize(ctx context.Context, sessionID string, analysis types.Analysis, closingText string) error

	// History lists an owner's sessions for a case, ordered by Seq.
	History(ctx context.Context, caseID, ownerID string) ([]*types.Session, error)

	Close() error
}
