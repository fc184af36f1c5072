package session

import (
	"time"

	"github.com/ent0n29/mbtivoice/internal/chat"
)

// CreateRequest defines payload for creating a new session.
type CreateRequest struct {
	LoraPath     string `json:"lora_path"`
	PromptChoice string `json:"prompt_choice"`
	FormatChoice string `json:"promptFormat_choice"`
	TTSStyle     string `json:"tts_style"`
	Language     string `json:"language"`
}

// Persona returns the persona selectors of the request.
func (r CreateRequest) Persona() chat.Persona {
	return chat.Persona{LoraPath: r.LoraPath, PromptChoice: r.PromptChoice, FormatChoice: r.FormatChoice}
}

// Turn is one committed exchange of Session History.
type Turn struct {
	User      string    `json:"user"`
	Reply     string    `json:"reply"`
	AudioURL  string    `json:"audio_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayEntry is one row of Display History. Pending rows await a reply;
// Failed rows carry a retry prompt and never reach Session History.
type DisplayEntry struct {
	Seq       int       `json:"seq"`
	User      string    `json:"user"`
	Reply     string    `json:"reply,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	InputURL  string    `json:"input_url,omitempty"`
	Pending   bool      `json:"pending,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is a copy of both histories.
type Transcript struct {
	History []Turn         `json:"history"`
	Display []DisplayEntry `json:"display"`
}
