package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageTurnText(t *testing.T) {
	raw := []byte(`{"type":"turn_text","text":"Hello","language":"Chinese","tts_style":"Soft Female Voice"}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	text, ok := msg.(TurnText)
	if !ok {
		t.Fatalf("message type = %T, want TurnText", msg)
	}
	if text.Text != "Hello" || text.Language != "Chinese" || text.TTSStyle != "Soft Female Voice" {
		t.Fatalf("unexpected turn_text: %+v", text)
	}
}

func TestParseClientMessageTurnAudio(t *testing.T) {
	raw := []byte(`{"type":"turn_audio","pcm16_base64":"AQID","sample_rate":44100,"channels":2}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	audio, ok := msg.(TurnAudio)
	if !ok {
		t.Fatalf("message type = %T, want TurnAudio", msg)
	}
	if audio.SampleRate != 44100 || audio.Channels != 2 {
		t.Fatalf("unexpected turn_audio: %+v", audio)
	}
}

func TestParseClientMessageRejectsBadAudio(t *testing.T) {
	cases := []string{
		`{"type":"turn_audio"}`,
		`{"type":"turn_audio","pcm16_base64":"AQID"}`,
		`{"type":"turn_audio","pcm16_base64":"AQID","audio_base64":"UklGRg==","sample_rate":16000}`,
		`{"type":"turn_audio","audio_base64":"UklGRg==","channels":-1}`,
		`{"type":"turn_audio","pcm16_base64":"AQID","sample_rate":63}`,
		`{"type":"turn_audio","pcm16_base64":"AQID","sample_rate":10000000}`,
		`{"type":"turn_audio","pcm16_base64":"AQID","sample_rate":16000,"channels":64}`,
	}
	for _, raw := range cases {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%s) expected error", raw)
		}
	}
}

func TestParseClientMessageClear(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"clear"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, ok := msg.(Clear); !ok {
		t.Fatalf("message type = %T, want Clear", msg)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}
