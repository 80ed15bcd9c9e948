// Package types holds the persisted domain model for deliberation
// sessions and their owning cases.
package types

import "time"

// Role identifies who spoke a transcript entry. User is the human
// participant; every other role is an AI persona.
type Role string

const (
	RoleUser   Role = "User"
	RoleJudge  Role = "Judge"
	RoleLawyer Role = "Lawyer"
)

// IsPersona reports whether the role is an AI persona rather than the
// human participant.
func (r Role) IsPersona() bool {
	return r != RoleUser && r != ""
}

// Status is the session lifecycle state. The only transition is
// active -> completed, exactly once.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// TranscriptEntry is one spoken turn half. Entries are immutable once
// appended; append order equals timestamp order.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Analysis is the post-session report produced at finalization.
type Analysis struct {
	Summary  string `json:"summary"`
	Feedback string `json:"feedback"`
	Score    int    `json:"score"`
}

// Session is the aggregate root for one deliberation exchange.
//
// Code is the short numeric join code, unique among sessions that are
// not yet completed. Seq is 1-based and scoped to the (case, owner)
// pair. Analysis fields are zero until the session completes.
type Session struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	CaseID  string `json:"case_id"`
	OwnerID string `json:"owner_id"`
	Seq     int    `json:"seq"`

	Status     Status            `json:"status"`
	Transcript []TranscriptEntry `json:"transcript"`

	Analysis    *Analysis  `json:"analysis,omitempty"`
	ClosingText string     `json:"closing_text,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// Completed reports whether the session has been finalized.
func (s *Session) Completed() bool {
	return s != nil && s.Status == StatusCompleted
}

// Case is the ingested legal case a session deliberates over. Sessions
// reference it by ID and treat it as read-only.
type Case struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	Text         string    `json:"text"`
	Summary      string    `json:"summary"`
	EvidenceRefs []string  `json:"evidence_refs"`
	CreatedAt    time.Time `json:"created_at"`
}
