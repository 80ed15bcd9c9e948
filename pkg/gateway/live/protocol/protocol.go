// Package protocol defines the JSON frames exchanged on the live
// deliberation channel.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// ClientJoin binds the connection to the session holding the code.
type ClientJoin struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// ClientAudioFrame submits one recorded utterance. Format is an
// optional hint (wav, mp3, webm).
type ClientAudioFrame struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
	Format  string `json:"format,omitempty"`
}

// Audio returns the decoded payload.
func (f ClientAudioFrame) Audio() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(f.DataB64)
	if err != nil {
		return nil, badRequest("audio_frame.data_b64 is not valid base64", "data_b64")
	}
	return data, nil
}

// ClientEndSession finalizes the bound session.
type ClientEndSession struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one inbound frame into its typed form.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "join":
		var msg ClientJoin
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid join frame", "")
		}
		msg.Code = strings.TrimSpace(msg.Code)
		if msg.Code == "" {
			return nil, badRequest("join.code is required", "code")
		}
		return msg, nil
	case "audio_frame":
		var msg ClientAudioFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio_frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio_frame.data_b64 is required", "data_b64")
		}
		return msg, nil
	case "end_session":
		var msg ClientEndSession
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid end_session frame", "")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

// ServerJoined acknowledges a join.
type ServerJoined struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	CaseID      string `json:"case_id"`
	CaseTitle   string `json:"case_title,omitempty"`
	CaseSummary string `json:"case_summary,omitempty"`
}

// ServerTurn carries one persona reply. AudioB64 is empty when speech
// synthesis was unavailable.
type ServerTurn struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	AudioB64 string `json:"audio_b64,omitempty"`
	Persona  string `json:"persona"`
	Emotion  string `json:"emotion"`
}

// ServerSessionEnded carries the finalization report.
type ServerSessionEnded struct {
	Type            string `json:"type"`
	Summary         string `json:"summary"`
	Feedback        string `json:"feedback"`
	Score           int    `json:"score"`
	ClosingText     string `json:"closing_text,omitempty"`
	ClosingAudioB64 string `json:"closing_audio_b64,omitempty"`
}

// ServerError is an explicit error event; the channel never drops a
// failed operation silently.
type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Close   bool   `json:"close,omitempty"`
}

func NewServerError(code, message string, closeConn bool) ServerError {
	return ServerError{Type: "error", Code: code, Message: message, Close: closeConn}
}
