package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/mbtivoice/internal/audio"
	"github.com/ent0n29/mbtivoice/internal/session"
	"github.com/ent0n29/mbtivoice/internal/voice"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeTurnText      MessageType = "turn_text"
	TypeTurnAudio     MessageType = "turn_audio"
	TypeClear         MessageType = "clear"
	TypeDisplayUpdate MessageType = "display_update"
	TypeTurnResult    MessageType = "turn_result"
	TypeCleared       MessageType = "history_cleared"
	TypeErrorEvent    MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// TurnOptions override the session's persona, style and language for one turn.
type TurnOptions struct {
	LoraPath     string `json:"lora_path,omitempty"`
	PromptChoice string `json:"prompt_choice,omitempty"`
	FormatChoice string `json:"promptFormat_choice,omitempty"`
	TTSStyle     string `json:"tts_style,omitempty"`
	Language     string `json:"language,omitempty"`
}

type TurnText struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
	TurnOptions
}

// TurnAudio carries either raw PCM16 samples or an encoded WAV/MP3 file.
type TurnAudio struct {
	Type        MessageType `json:"type"`
	PCM16Base64 string      `json:"pcm16_base64,omitempty"`
	SampleRate  int         `json:"sample_rate,omitempty"`
	Channels    int         `json:"channels,omitempty"`
	AudioBase64 string      `json:"audio_base64,omitempty"`
	TurnOptions
}

type Clear struct {
	Type MessageType `json:"type"`
}

type DisplayUpdate struct {
	Type      MessageType          `json:"type"`
	SessionID string               `json:"session_id"`
	Stage     voice.Stage          `json:"stage"`
	Entry     session.DisplayEntry `json:"entry"`
}

type TurnResult struct {
	Type   MessageType      `json:"type"`
	Result voice.TurnResult `json:"result"`
}

type Cleared struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeTurnText:
		var msg TurnText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeTurnAudio:
		var msg TurnAudio
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		hasPCM := strings.TrimSpace(msg.PCM16Base64) != ""
		hasFile := strings.TrimSpace(msg.AudioBase64) != ""
		if hasPCM == hasFile {
			return nil, errors.New("invalid turn_audio: need exactly one of pcm16_base64 or audio_base64")
		}
		if hasPCM && msg.SampleRate <= 0 {
			return nil, errors.New("invalid turn_audio: sample_rate required with pcm16_base64")
		}
		if hasPCM && (msg.SampleRate < audio.MinSampleRate || msg.SampleRate > audio.MaxSampleRate) {
			return nil, fmt.Errorf("invalid turn_audio: sample_rate %d outside %d..%d", msg.SampleRate, audio.MinSampleRate, audio.MaxSampleRate)
		}
		if msg.Channels < 0 || msg.Channels > audio.MaxChannels {
			return nil, fmt.Errorf("invalid turn_audio: channels %d outside 0..%d", msg.Channels, audio.MaxChannels)
		}
		return msg, nil
	case TypeClear:
		return Clear{Type: TypeClear}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
