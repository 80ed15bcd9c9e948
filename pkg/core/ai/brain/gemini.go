package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/verdictech/gavel/pkg/core/ai"
	"github.com/verdictech/gavel/pkg/core/types"
)

const (
	geminiDefaultModel = "gemini-2.0-flash"

	geminiTurnSystemPrompt = "You are role-playing a courtroom deliberation. " +
		"Reply as either the Judge or the opposing Lawyer, whichever fits the moment. " +
		"Answer as strict JSON: {\"speaker\": \"Judge\"|\"Lawyer\", \"reply_text\": string, \"emotion\": string}. " +
		"Keep replies short and speakable; no markdown."

	geminiAnalysisSystemPrompt = "You grade a courtroom practice session. " +
		"Given the transcript, answer as strict JSON: " +
		"{\"summary\": string, \"feedback\": string, \"score\": integer 0-100}."

	geminiCaseSystemPrompt = "Summarize this legal case file into a short strategy " +
		"briefing for the participant. Plain text, a few sentences."
)

// Gemini implements ai.Generator and ai.Analyzer on the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini-backed brain.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = geminiDefaultModel
	}
	return &Gemini{client: client, model: model}, nil
}

// Name returns the provider identifier.
func (g *Gemini) Name() string {
	return "gemini"
}

// GenerateReply produces the next persona utterance.
func (g *Gemini) GenerateReply(ctx context.Context, req ai.GenerateRequest) (ai.Reply, error) {
	contents := make([]*genai.Content, 0, len(req.History)+2)
	if strings.TrimSpace(req.CaseText) != "" {
		contents = append(contents, genai.NewContentFromText("Case file:\n"+req.CaseText, genai.RoleUser))
	}
	for _, turn := range req.History {
		var role genai.Role = genai.RoleModel
		if turn.Role == "user" {
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.UserText, genai.RoleUser))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(geminiTurnSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return ai.Reply{}, fmt.Errorf("gemini turn: %w", err)
	}

	var decoded turnResponse
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text())), &decoded); err != nil {
		return ai.Reply{}, fmt.Errorf("gemini turn: parse reply: %w", err)
	}
	return ai.Reply{
		Persona: types.Role(strings.TrimSpace(decoded.Speaker)),
		Text:    strings.TrimSpace(decoded.ReplyText),
		Emotion: strings.TrimSpace(decoded.Emotion),
	}.WithDefaults(), nil
}

// Analyze produces the post-session report.
func (g *Gemini) Analyze(ctx context.Context, transcript []types.TranscriptEntry) (types.Analysis, error) {
	var b strings.Builder
	for _, e := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Text)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(b.String()), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(geminiAnalysisSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return types.Analysis{}, fmt.Errorf("gemini analysis: %w", err)
	}

	var decoded types.Analysis
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Text())), &decoded); err != nil {
		return types.Analysis{}, fmt.Errorf("gemini analysis: parse report: %w", err)
	}
	return decoded, nil
}

// SummarizeCase produces the strategy summary for a new case.
func (g *Gemini) SummarizeCase(ctx context.Context, caseID, text string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(geminiCaseSystemPrompt, genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini case summary: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// stripCodeFence removes a ```json ... ``` wrapper if the model added one
// despite the JSON response mime type.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
