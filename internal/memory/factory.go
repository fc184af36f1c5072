package memory

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
// With redact set, text is masked before it reaches the backend.
func NewStore(ctx context.Context, databaseURL string, redact bool) (Store, error) {
	var store Store
	if strings.TrimSpace(databaseURL) == "" {
		store = NewInMemoryStore()
	} else {
		pg, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		store = pg
	}
	if redact {
		store = NewRedactingStore(store)
	}
	return store, nil
}
