package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TurnRecord is one archived exchange.
type TurnRecord struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	LoraPath    string    `json:"lora_path"`
	Language    string    `json:"language"`
	Source      string    `json:"source"`
	UserText    string    `json:"user_text"`
	ReplyText   string    `json:"reply_text"`
	AudioURL    string    `json:"audio_url,omitempty"`
	Degraded    bool      `json:"degraded"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists completed turns. It is write-behind audit data; live
// Session History never reads from it.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)
	Close() error
}

// stamp fills the generated fields of a record about to be stored.
func stamp(r TurnRecord, now time.Time) TurnRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
	return r
}
