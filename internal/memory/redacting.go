package memory

import (
	"context"

	"github.com/ent0n29/mbtivoice/internal/policy"
)

// RedactingStore masks PII in user and reply text before saving.
type RedactingStore struct {
	next Store
}

func NewRedactingStore(next Store) *RedactingStore {
	return &RedactingStore{next: next}
}

func (s *RedactingStore) SaveTurn(ctx context.Context, record TurnRecord) error {
	user, userChanged := policy.RedactPII(record.UserText)
	reply, replyChanged := policy.RedactPII(record.ReplyText)
	record.UserText = user
	record.ReplyText = reply
	record.PIIRedacted = record.PIIRedacted || userChanged || replyChanged
	return s.next.SaveTurn(ctx, record)
}

func (s *RedactingStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	return s.next.RecentTurns(ctx, sessionID, limit)
}

func (s *RedactingStore) Close() error { return s.next.Close() }
