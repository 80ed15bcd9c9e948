package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/verdictech/gavel/pkg/core"
	"github.com/verdictech/gavel/pkg/core/ai"
	"github.com/verdictech/gavel/pkg/core/types"
	"github.com/verdictech/gavel/pkg/store"
)

// TurnResult is what a non-silent turn emits back to the submitting
// connection. Audio is nil when synthesis was unavailable.
type TurnResult struct {
	Text    string     `json:"text"`
	Audio   []byte     `json:"audio,omitempty"`
	Persona types.Role `json:"persona"`
	Emotion string     `json:"emotion"`
}

// SubmitTurn runs one audio turn against the session: transcribe,
// generate, synthesize, and append the two ledger entries. A silent
// turn (empty or failed transcription) returns (nil, nil) and leaves
// the ledger untouched.
//
// The whole turn runs inside the session's exclusive section so the
// two-entry append of one turn never interleaves with another turn on
// the same session, even from different connections.
func (e *Engine) SubmitTurn(ctx context.Context, sessionID string, audio []byte, format string) (*TurnResult, error) {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	sess, err := e.ResolveByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Completed() {
		return nil, core.NewInvalidStateError("session has ended", core.CodeSessionEnded)
	}

	text, err := e.transcribe(ctx, audio, format)
	if err != nil {
		e.logger.Warn("transcription failed, dropping turn",
			"session_id", sessionID, "provider", e.stt.Name(), "error", err)
		return nil, nil
	}
	if text == "" {
		return nil, nil
	}

	reply := e.generate(ctx, sess, text)
	replyAudio := e.synthesize(ctx, reply.Text, reply.Persona)

	userAt := time.Now()
	if n := len(sess.Transcript); n > 0 && userAt.Before(sess.Transcript[n-1].Timestamp) {
		userAt = sess.Transcript[n-1].Timestamp
	}
	personaAt := time.Now()
	if personaAt.Before(userAt) {
		personaAt = userAt
	}

	entries := []types.TranscriptEntry{
		{Role: types.RoleUser, Text: text, Timestamp: userAt},
		{Role: reply.Persona, Text: reply.Text, Timestamp: personaAt},
	}
	if err := e.store.AppendTurns(ctx, sessionID, entries); err != nil {
		switch {
		case errors.Is(err, store.ErrCompleted):
			return nil, core.NewInvalidStateError("session has ended", core.CodeSessionEnded)
		case errors.Is(err, store.ErrNotFound):
			return nil, core.NewNotFoundError("session not found")
		}
		return nil, err
	}

	e.logger.Info("turn processed",
		"session_id", sessionID, "persona", reply.Persona, "chars", len(reply.Text))

	return &TurnResult{
		Text:    reply.Text,
		Audio:   replyAudio,
		Persona: reply.Persona,
		Emotion: reply.Emotion,
	}, nil
}

// transcribe stages the payload in a temp file and runs speech-to-text
// on it. The file is removed on every exit path.
func (e *Engine) transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	f, err := os.CreateTemp(e.cfg.AudioDir, "turn-*.audio")
	if err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(f.Name())
	}()

	if _, err := f.Write(audio); err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.TranscribeTimeout)
	defer cancel()

	return e.stt.Transcribe(ctx, f, ai.TranscribeOptions{Format: format, Language: "en"})
}

// generate asks the dialogue capability for the next persona reply.
// Upstream failure degrades to the structured echo fallback; a turn is
// never failed by a generation outage.
func (e *Engine) generate(ctx context.Context, sess *types.Session, userText string) ai.Reply {
	history := ai.HistoryFromTranscript(sess.Transcript)
	if limit := e.cfg.HistoryLimit; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	var caseText string
	if c, err := e.fetchCase(ctx, sess.CaseID); err == nil {
		caseText = c.Text
	}

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	defer cancel()

	reply, err := e.gen.GenerateReply(genCtx, ai.GenerateRequest{
		CaseID:   sess.CaseID,
		CaseText: caseText,
		UserText: userText,
		History:  history,
	})
	if err != nil {
		e.logger.Warn("generation failed, using fallback",
			"session_id", sess.ID, "provider", e.gen.Name(), "error", err)
		return fallbackReply(userText)
	}
	return reply.WithDefaults()
}

// fallbackReply is the canonical degraded reply: fixed persona,
// neutral emotion, text echoing the participant.
func fallbackReply(userText string) ai.Reply {
	return ai.Reply{
		Persona: types.RoleJudge,
		Text:    "The court notes your statement: " + userText,
		Emotion: "neutral",
	}
}
