package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ent0n29/mbtivoice/internal/chat"
)

var testDefaults = Defaults{
	Persona:  chat.Persona{LoraPath: "estj", PromptChoice: "assist_estj", FormatChoice: "ordinary"},
	Style:    "Standard Voice",
	Language: "English",
}

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute, testDefaults)
	s := m.Create(CreateRequest{LoraPath: "infp", Language: "chinese"})
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Persona.LoraPath != "infp" || got.Persona.PromptChoice != "assist_estj" || got.Status != StatusActive {
		t.Fatalf("unexpected session state: %+v", got)
	}
	if got.Language != "Chinese" {
		t.Fatalf("Language = %q, want %q", got.Language, "Chinese")
	}
	if got.Style != "Standard Voice" {
		t.Fatalf("Style = %q, want default", got.Style)
	}

	ended, err := m.End(s.ID)
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if ended.Status != StatusEnded {
		t.Fatalf("ended status = %q, want %q", ended.Status, StatusEnded)
	}
	if _, err := m.Acquire(context.Background(), s.ID); !errors.Is(err, ErrEnded) {
		t.Fatalf("Acquire() after End error = %v, want %v", err, ErrEnded)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want %v", err, ErrNotFound)
	}
}

func TestManagerCommitReplacesPendingEntry(t *testing.T) {
	m := NewManager(time.Minute, testDefaults)
	s := m.Create(CreateRequest{})

	seq, err := m.AppendDisplay(s.ID, DisplayEntry{User: "Hello", Pending: true})
	if err != nil {
		t.Fatalf("AppendDisplay() error = %v", err)
	}
	tr, _ := m.Transcript(s.ID)
	if len(tr.Display) != 1 || !tr.Display[0].Pending || len(tr.History) != 0 {
		t.Fatalf("transcript before commit = %+v, want one pending entry", tr)
	}

	err = m.Commit(s.ID, seq,
		DisplayEntry{User: "Hello", Reply: "Hi there!", AudioURL: "/static/a.mp3", Pending: true},
		Turn{User: "Hello", Reply: "Hi there!", AudioURL: "/static/a.mp3"})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	tr, _ = m.Transcript(s.ID)
	if len(tr.Display) != 1 || tr.Display[0].Pending || tr.Display[0].Reply != "Hi there!" {
		t.Fatalf("Display = %+v, want resolved entry", tr.Display)
	}
	if len(tr.History) != 1 || tr.History[0].User != "Hello" {
		t.Fatalf("History = %+v, want one turn", tr.History)
	}
	got, _ := m.Get(s.ID)
	if got.TurnCount != 1 {
		t.Fatalf("TurnCount = %d, want 1", got.TurnCount)
	}

	if err := m.Commit(s.ID, 99, DisplayEntry{}, Turn{}); !errors.Is(err, ErrUnknownEntry) {
		t.Fatalf("Commit(unknown) error = %v, want %v", err, ErrUnknownEntry)
	}
}

func TestManagerTranscriptIsACopy(t *testing.T) {
	m := NewManager(time.Minute, testDefaults)
	s := m.Create(CreateRequest{})
	seq, _ := m.AppendDisplay(s.ID, DisplayEntry{User: "a", Pending: true})
	_ = m.Commit(s.ID, seq, DisplayEntry{User: "a", Reply: "b"}, Turn{User: "a", Reply: "b"})

	h, _ := m.History(s.ID)
	h[0].Reply = "mutated"
	again, _ := m.History(s.ID)
	if again[0].Reply != "b" {
		t.Fatalf("History() leaked internal slice: %+v", again)
	}
}

func TestManagerClear(t *testing.T) {
	m := NewManager(time.Minute, testDefaults)
	s := m.Create(CreateRequest{})
	for i := 0; i < 3; i++ {
		seq, _ := m.AppendDisplay(s.ID, DisplayEntry{User: "q", Pending: true})
		_ = m.Commit(s.ID, seq, DisplayEntry{User: "q", Reply: "r"}, Turn{User: "q", Reply: "r"})
	}
	_, _ = m.AppendDisplay(s.ID, DisplayEntry{User: "bad audio", Failed: true})

	if err := m.Clear(s.ID); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	tr, _ := m.Transcript(s.ID)
	if len(tr.History) != 0 || len(tr.Display) != 0 {
		t.Fatalf("transcript after Clear = %+v, want empty", tr)
	}
	got, _ := m.Get(s.ID)
	if got.TurnCount != 0 {
		t.Fatalf("TurnCount = %d, want 0", got.TurnCount)
	}
}

func TestManagerAcquireSerializesTurns(t *testing.T) {
	m := NewManager(time.Minute, testDefaults)
	s := m.Create(CreateRequest{})

	release, err := m.Acquire(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := m.Acquire(ctx, s.ID); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second Acquire() error = %v, want deadline exceeded", err)
	}

	release()
	release()
	again, err := m.Acquire(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	again()
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30*time.Millisecond, testDefaults)
	s := m.Create(CreateRequest{})
	expired := make(chan string, 1)
	m.SetExpireHook(func(s *Session) { expired <- s.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != s.ID {
			t.Fatalf("expired id = %q, want %q", id, s.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("session was not expired")
	}
	if got := m.ActiveCount(); got != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", got)
	}
}
