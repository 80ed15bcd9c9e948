package protocol

import (
	"encoding/base64"
	"testing"
)

func TestDecodeJoin(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"join","code":" 482913 "}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	join, ok := msg.(ClientJoin)
	if !ok {
		t.Fatalf("message type = %T, want ClientJoin", msg)
	}
	if join.Code != "482913" {
		t.Fatalf("code = %q, want trimmed", join.Code)
	}
}

func TestDecodeJoinMissingCode(t *testing.T) {
	_, err := DecodeClientMessage([]byte(`{"type":"join"}`))
	decodeErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err = %v, want DecodeError", err)
	}
	if decodeErr.Param != "code" {
		t.Fatalf("param = %q, want code", decodeErr.Param)
	}
}

func TestDecodeAudioFrame(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("audio-bytes"))
	msg, err := DecodeClientMessage([]byte(`{"type":"audio_frame","data_b64":"` + payload + `","format":"wav"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	frame, ok := msg.(ClientAudioFrame)
	if !ok {
		t.Fatalf("message type = %T", msg)
	}
	audio, err := frame.Audio()
	if err != nil {
		t.Fatalf("Audio: %v", err)
	}
	if string(audio) != "audio-bytes" {
		t.Fatalf("audio = %q", audio)
	}
}

func TestDecodeAudioFrameBadBase64(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"audio_frame","data_b64":"not base64!!"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := msg.(ClientAudioFrame).Audio(); err == nil {
		t.Fatal("expected base64 error")
	}
}

func TestDecodeEndSession(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"end_session"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := msg.(ClientEndSession); !ok {
		t.Fatalf("message type = %T", msg)
	}
}

func TestDecodeRejectsUnknown(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`{"type":"shout"}`,
		`{"type":"audio_frame"}`,
	}
	for _, raw := range cases {
		if _, err := DecodeClientMessage([]byte(raw)); err == nil {
			t.Fatalf("decode %q succeeded, want error", raw)
		}
	}
}
