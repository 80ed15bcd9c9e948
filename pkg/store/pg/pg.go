// Package pg implements the session store on PostgreSQL via pgx.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdictech/gavel/pkg/core/types"
	"github.com/verdictech/gavel/pkg/store"
)

const (
	liveCodeIndex     = "sessions_live_code"
	caseOwnerSeqIndex = "sessions_case_owner_seq"
	seqRetries        = 3
)

// Store implements store.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a PostgreSQL-backed store over an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// CreateCase implements store.Store.
func (s *Store) CreateCase(ctx context.Context, c *types.Case) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO cases (id, owner_id, title, doc_text, summary, evidence_refs)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		c.ID, c.OwnerID, c.Title, c.Text, c.Summary, c.EvidenceRefs)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

// GetCase implements store.Store.
func (s *Store) GetCase(ctx context.Context, id string) (*types.Case, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, doc_text, summary, evidence_refs, created_at
		FROM cases WHERE id = $1`, id)
	return scanCase(row)
}

// ListCases implements store.Store.
func (s *Store) ListCases(ctx context.Context, ownerID string) ([]*types.Case, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, title, doc_text, summary, evidence_refs, created_at
		FROM cases WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	out := make([]*types.Case, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCaseSummary implements store.Store.
func (s *Store) UpdateCaseSummary(ctx context.Context, id, summary string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE cases SET summary = $2 WHERE id = $1`, id, summary)
	if err != nil {
		return fmt.Errorf("update case summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateSession implements store.Store. The sequence number is assigned
// in the insert itself; a concurrent insert for the same (case, owner)
// pair trips the unique index and is retried with a recomputed value.
func (s *Store) CreateSession(ctx context.Context, sess *types.Session) error {
	for attempt := 0; ; attempt++ {
		row := s.pool.QueryRow(ctx, `
			INSERT INTO sessions (id, code, case_id, owner_id, seq, status, transcript)
			SELECT $1, $2, $3, $4, COALESCE(MAX(seq), 0) + 1, 'active', '[]'::jsonb
			FROM sessions WHERE case_id = $3 AND owner_id = $4
			RETURNING seq, created_at`,
			sess.ID, sess.Code, sess.CaseID, sess.OwnerID)

		err := row.Scan(&sess.Seq, &sess.CreatedAt)
		if err == nil {
			sess.Status = types.StatusActive
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case liveCodeIndex:
				return store.ErrCodeTaken
			case caseOwnerSeqIndex:
				if attempt < seqRetries {
					continue
				}
			}
		}
		return fmt.Errorf("insert session: %w", err)
	}
}

// GetSession implements store.Store.
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.pool.QueryRow(ctx, sessionSelect+` WHERE id = $1`, id)
	return scanSession(row)
}

// FindByCode implements store.Store. An active holder of the code wins
// over completed ones; ties break to the most recent session.
func (s *Store) FindByCode(ctx context.Context, code string) (*types.Session, error) {
	row := s.pool.QueryRow(ctx, sessionSelect+`
		WHERE code = $1
		ORDER BY (status <> 'completed') DESC, created_at DESC
		LIMIT 1`, code)
	return scanSession(row)
}

// AppendTurns implements store.Store.
func (s *Store) AppendTurns(ctx context.Context, sessionID string, entries []types.TranscriptEntry) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET transcript = transcript || $2::jsonb
		WHERE id = $1 AND status = 'active'`,
		sessionID, entries)
	if err != nil {
		return fmt.Errorf("append turns: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleWriteError(ctx, sessionID)
	}
	return nil
}

// Finalize implements store.Store.
func (s *Store) Finalize(ctx context.Context, sessionID string, analysis types.Analysis, closingText string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET status = 'completed', summary = $2, feedback = $3, score = $4,
		    closing_text = $5, ended_at = now()
		WHERE id = $1 AND status = 'active'`,
		sessionID, analysis.Summary, analysis.Feedback, analysis.Score, closingText)
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.staleWriteError(ctx, sessionID)
	}
	return nil
}

// History implements store.Store.
func (s *Store) History(ctx context.Context, caseID, ownerID string) ([]*types.Session, error) {
	rows, err := s.pool.Query(ctx, sessionSelect+`
		WHERE case_id = $1 AND owner_id = $2 ORDER BY seq`, caseID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	defer rows.Close()

	out := make([]*types.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// staleWriteError distinguishes a missing session from an
// already-completed one after a zero-row guarded update.
func (s *Store) staleWriteError(ctx context.Context, sessionID string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM sessions WHERE id = $1`, sessionID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check session status: %w", err)
	}
	return store.ErrCompleted
}

const sessionSelect = `
	SELECT id, code, case_id, owner_id, seq, status, transcript,
	       summary, feedback, score, closing_text, created_at, ended_at
	FROM sessions`

func scanSession(row pgx.Row) (*types.Session, error) {
	var (
		sess     types.Session
		summary  *string
		feedback *string
		score    *int
	)
	err := row.Scan(&sess.ID, &sess.Code, &sess.CaseID, &sess.OwnerID, &sess.Seq,
		&sess.Status, &sess.Transcript, &summary, &feedback, &score,
		&sess.ClosingText, &sess.CreatedAt, &sess.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if summary != nil || feedback != nil || score != nil {
		sess.Analysis = &types.Analysis{}
		if summary != nil {
			sess.Analysis.Summary = *summary
		}
		if feedback != nil {
			sess.Analysis.Feedback = *feedback
		}
		if score != nil {
			sess.Analysis.Score = *score
		}
	}
	return &sess, nil
}

func scanCase(row pgx.Row) (*types.Case, error) {
	var c types.Case
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Text, &c.Summary, &c.EvidenceRefs, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan case: %w", err)
	}
	return &c, nil
}
