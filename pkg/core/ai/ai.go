// Package ai declares the external model capabilities the gateway
// consumes. Every capability is a network collaborator: implementations
// live in the stt, tts, and brain subpackages, and callers always pass
// a bounded context.
package ai

import (
	"context"
	"io"
	"strings"

	"github.com/verdictech/gavel/pkg/core/types"
)

// Transcriber converts recorded audio to text. An empty transcript is a
// normal outcome (silence), not an error.
type Transcriber interface {
	// Name returns the provider identifier.
	Name() string

	// Transcribe converts audio to text.
	Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (string, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model    string // Provider-specific model
	Language string // ISO language code (default: "en")
	Format   string // Audio format hint (wav, mp3, webm, etc.)
}

// Turn is one role-tagged entry of the generation context.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"content"`
}

// HistoryFromTranscript maps a session transcript to generation
// context: the human participant becomes "user", every persona becomes
// "assistant". Order is preserved.
func HistoryFromTranscript(entries []types.TranscriptEntry) []Turn {
	out := make([]Turn, 0, len(entries))
	for _, e := range entries {
		role := "assistant"
		if e.Role == types.RoleUser {
			role = "user"
		}
		out = append(out, Turn{Role: role, Text: e.Text})
	}
	return out
}

// GenerateRequest is the input to one dialogue-generation call.
type GenerateRequest struct {
	CaseID   string
	CaseText string
	UserText string
	History  []Turn
}

// Reply is the structured dialogue-generation result. Upstream replies
// vary in shape; WithDefaults normalizes them once at the pipeline
// boundary so downstream code never special-cases missing fields.
type Reply struct {
	Persona types.Role `json:"persona"`
	Text    string     `json:"text"`
	Emotion string     `json:"emotion"`
}

// WithDefaults fills missing persona and emotion fields.
func (r Reply) WithDefaults() Reply {
	if !r.Persona.IsPersona() {
		r.Persona = types.RoleLawyer
	}
	if strings.TrimSpace(r.Emotion) == "" {
		r.Emotion = "neutral"
	}
	return r
}

// Generator produces the next persona reply for a turn.
type Generator interface {
	Name() string

	// GenerateReply returns the next persona utterance. Errors are
	// absorbed by the caller into a fallback reply.
	GenerateReply(ctx context.Context, req GenerateRequest) (Reply, error)
}

// Synthesizer renders persona speech. A nil audio payload is a valid
// degraded outcome.
type Synthesizer interface {
	Name() string

	// Synthesize converts reply text to encoded audio for the persona.
	Synthesize(ctx context.Context, text string, persona types.Role) ([]byte, error)
}

// Analyzer produces the post-session report and the initial case
// summary.
type Analyzer interface {
	Name() string

	// Analyze reviews a full session transcript.
	Analyze(ctx context.Context, transcript []types.TranscriptEntry) (types.Analysis, error)

	// SummarizeCase produces the strategy summary stored on a freshly
	// ingested case.
	SummarizeCase(ctx context.Context, caseID, text string) (string, error)
}

// DocumentExtractor turns an uploaded case document into plain text.
// The actual parsing runs in an external document service.
type DocumentExtractor interface {
	Name() string

	// Extract returns the document text and page count.
	Extract(ctx context.Context, document []byte) (text string, pages int, err error)
}
