package voice

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ent0n29/mbtivoice/internal/artifact"
	"github.com/ent0n29/mbtivoice/internal/audio"
	"github.com/ent0n29/mbtivoice/internal/chat"
	"github.com/ent0n29/mbtivoice/internal/memory"
	"github.com/ent0n29/mbtivoice/internal/observability"
	"github.com/ent0n29/mbtivoice/internal/session"
)

// Retry prompts shown in place of a transcript.
const (
	PromptFormatError = "Recording format error, please try again"
	PromptASRFailed   = "Speech recognition failed, please try again"
)

const archiveTimeout = 2 * time.Second

type Stage string

const (
	StageIdle               Stage = "idle"
	StageAwaitingTranscript Stage = "awaiting_transcript"
	StageAwaitingReply      Stage = "awaiting_reply"
	StageAwaitingSpeech     Stage = "awaiting_speech"
	StageComplete           Stage = "complete"
	StageTranscriptFailed   Stage = "transcript_failed"
)

type Recognizer interface {
	Transcribe(ctx context.Context, wav []byte, language string) Transcript
}

type Dialogue interface {
	Complete(ctx context.Context, req chat.Request) chat.Result
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string, cfg VoiceConfig) Speech
}

// TurnRequest carries either Text or Audio; with neither the turn stays
// idle. Blank persona, style and
// language fields fall back to the session's choices.
type TurnRequest struct {
	Text     string
	Audio    audio.Input
	Persona  chat.Persona
	Style    string
	Language string
}

// DisplayUpdate is emitted when Display History changes during a turn.
type DisplayUpdate struct {
	SessionID string               `json:"session_id"`
	Stage     Stage                `json:"stage"`
	Entry     session.DisplayEntry `json:"entry"`
}

type TurnResult struct {
	SessionID string               `json:"session_id"`
	Stage     Stage                `json:"stage"`
	UserText  string               `json:"user_text,omitempty"`
	Reply     string               `json:"reply,omitempty"`
	Degraded  bool                 `json:"degraded,omitempty"`
	AudioURL  string               `json:"audio_url,omitempty"`
	InputURL  string               `json:"input_url,omitempty"`
	Provider  Provider             `json:"provider,omitempty"`
	Prompt    string               `json:"prompt,omitempty"`
	ASRError  string               `json:"asr_error,omitempty"`
	Language  string               `json:"language"`
	Style     string               `json:"tts_style"`
	Entry     session.DisplayEntry `json:"entry"`
}

// Components are the collaborators of an Orchestrator. Artifacts and Archive may be nil.
type Components struct {
	Sessions      *session.Manager
	Recognizer    Recognizer
	Dialogue      Dialogue
	Synthesizer   Synthesizer
	Artifacts     ArtifactSaver
	Archive       memory.Store
	Metrics       *observability.Metrics
	VoiceDefaults VoiceDefaults
}

// Orchestrator runs one turn at a time per session through
// normalize, transcribe, reply and synthesize.
type Orchestrator struct {
	sessions    *session.Manager
	recognizer  Recognizer
	dialogue    Dialogue
	synthesizer Synthesizer
	artifacts   ArtifactSaver
	archive     memory.Store
	metrics     *observability.Metrics
	voice       VoiceDefaults
	now         func() time.Time
}

func NewOrchestrator(c Components) *Orchestrator {
	return &Orchestrator{
		sessions:    c.Sessions,
		recognizer:  c.Recognizer,
		dialogue:    c.Dialogue,
		synthesizer: c.Synthesizer,
		artifacts:   c.Artifacts,
		archive:     c.Archive,
		metrics:     c.Metrics,
		voice:       c.VoiceDefaults,
		now:         time.Now,
	}
}

// Submit runs a turn. onUpdate, when set, sees the pending entry before the
// dialogue call and the final entry after it. Errors are returned only for
// unknown or ended sessions and cancelled waits; stage failures are reported
// in the result.
func (o *Orchestrator) Submit(ctx context.Context, sessionID string, req TurnRequest, onUpdate func(DisplayUpdate)) (TurnResult, error) {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	release, err := o.sessions.Acquire(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	started := o.now()
	o.metrics.ObserveSessionEvent("turn_started")
	language := chat.CanonicalLanguage(req.Language, sess.Language)
	style := strings.TrimSpace(req.Style)
	if style == "" {
		style = sess.Style
	}
	persona := req.Persona.WithDefaults(sess.Persona)
	res := TurnResult{SessionID: sessionID, Stage: StageIdle, Language: language, Style: style}
	emit := func(stage Stage, entry session.DisplayEntry) {
		if onUpdate != nil {
			onUpdate(DisplayUpdate{SessionID: sessionID, Stage: stage, Entry: entry})
		}
	}

	text := strings.TrimSpace(req.Text)
	if req.Audio != nil {
		res.Stage = StageAwaitingTranscript
		t0 := o.now()
		wav, err := audio.Normalize(req.Audio)
		o.metrics.ObserveStage(observability.StageNormalize, o.now().Sub(t0))
		if err != nil {
			slog.Warn("audio normalization failed", "session_id", sessionID, "error", err)
			return o.failTranscript(sessionID, res, PromptFormatError, "format_error", emit), nil
		}
		res.InputURL = o.saveInput(ctx, sessionID, wav)

		t0 = o.now()
		tr := o.recognizer.Transcribe(ctx, wav, language)
		o.metrics.ObserveStage(observability.StageTranscribe, o.now().Sub(t0))
		if !tr.OK() {
			return o.failTranscript(sessionID, res, PromptASRFailed, tr.Err.String(), emit), nil
		}
		text = strings.TrimSpace(tr.Text)
	}
	if text == "" {
		o.metrics.ObserveOutcome(observability.OutcomeEmptyInput)
		res.Stage = StageIdle
		return res, nil
	}
	res.UserText = text

	// Snapshot history before the pending row is shown.
	history, err := o.sessions.History(sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	pending := session.DisplayEntry{User: text, InputURL: res.InputURL, Pending: true, CreatedAt: o.now().UTC()}
	seq, err := o.sessions.AppendDisplay(sessionID, pending)
	if err != nil {
		return TurnResult{}, err
	}
	pending.Seq = seq
	res.Stage = StageAwaitingReply
	emit(StageAwaitingReply, pending)

	t0 := o.now()
	reply := o.dialogue.Complete(ctx, chat.Request{
		Message: text + chat.LanguageInstruction(language),
		History: exchanges(history),
		Persona: persona,
	})
	o.metrics.ObserveStage(observability.StageReply, o.now().Sub(t0))
	if reply.Degraded {
		o.metrics.ObserveIndicator("degraded_reply")
	}
	res.Reply = reply.Reply
	res.Degraded = reply.Degraded

	res.Stage = StageAwaitingSpeech
	cfg := ResolveStyle(style, language, o.voice)
	t0 = o.now()
	speech := o.synthesizer.Synthesize(ctx, reply.Reply, cfg)
	o.metrics.ObserveStage(observability.StageSynthesize, o.now().Sub(t0))
	if !speech.OK() {
		o.metrics.ObserveIndicator("no_audio")
	}
	res.AudioURL = speech.URL
	res.Provider = cfg.Provider

	final := session.DisplayEntry{User: text, Reply: reply.Reply, AudioURL: speech.URL, InputURL: res.InputURL}
	turn := session.Turn{User: text, Reply: reply.Reply, AudioURL: speech.URL}
	if err := o.sessions.Commit(sessionID, seq, final, turn); err != nil {
		slog.Warn("commit turn failed", "session_id", sessionID, "seq", seq, "error", err)
		// Never leave the row pending when the commit did not land.
		_ = o.sessions.UpdateDisplay(sessionID, seq, session.DisplayEntry{User: text, InputURL: res.InputURL, Failed: true})
		return TurnResult{}, err
	}
	final.Seq = seq
	final.CreatedAt = pending.CreatedAt
	res.Stage = StageComplete
	res.Entry = final
	emit(StageComplete, final)

	source := "text"
	if req.Audio != nil {
		source = "audio"
	}
	o.archiveTurn(ctx, memory.TurnRecord{
		SessionID: sessionID,
		LoraPath:  persona.LoraPath,
		Language:  language,
		Source:    source,
		UserText:  text,
		ReplyText: reply.Reply,
		AudioURL:  speech.URL,
		Degraded:  reply.Degraded,
	})
	o.metrics.ObserveOutcome(observability.OutcomeComplete)
	o.metrics.ObserveStage(observability.StageTurnTotal, o.now().Sub(started))
	return res, nil
}

// Clear empties both histories once any in-flight turn has finished.
func (o *Orchestrator) Clear(ctx context.Context, sessionID string) error {
	release, err := o.sessions.Acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()
	if err := o.sessions.Clear(sessionID); err != nil {
		return err
	}
	o.metrics.ObserveSessionEvent("history_cleared")
	return nil
}

func (o *Orchestrator) failTranscript(sessionID string, res TurnResult, prompt, kind string, emit func(Stage, session.DisplayEntry)) TurnResult {
	entry := session.DisplayEntry{InputURL: res.InputURL, Reply: prompt, Failed: true}
	if seq, err := o.sessions.AppendDisplay(sessionID, entry); err == nil {
		entry.Seq = seq
	}
	res.Stage = StageTranscriptFailed
	res.Prompt = prompt
	res.ASRError = kind
	res.Entry = entry
	emit(StageTranscriptFailed, entry)
	o.metrics.ObserveOutcome(observability.OutcomeTranscriptFailed)
	o.metrics.ObserveIndicator("transcript_failed_" + kind)
	return res
}

func (o *Orchestrator) saveInput(ctx context.Context, sessionID string, wav []byte) string {
	if o.artifacts == nil {
		return ""
	}
	a, err := o.artifacts.Save(ctx, artifact.KindInput, "wav", wav)
	if err != nil {
		slog.Warn("save input audio failed", "session_id", sessionID, "error", err)
		return ""
	}
	return a.URL
}

func (o *Orchestrator) archiveTurn(ctx context.Context, rec memory.TurnRecord) {
	if o.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := o.archive.SaveTurn(ctx, rec); err != nil {
		slog.Warn("archive turn failed", "session_id", rec.SessionID, "error", err)
	}
}

func exchanges(turns []session.Turn) []chat.Exchange {
	out := make([]chat.Exchange, 0, len(turns))
	for _, t := range turns {
		out = append(out, chat.Exchange{User: t.User, Reply: t.Reply})
	}
	return out
}
