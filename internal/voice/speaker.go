package voice

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/ent0n29/mbtivoice/internal/artifact"
	"github.com/ent0n29/mbtivoice/internal/baidu"
	"github.com/ent0n29/mbtivoice/internal/observability"
	"github.com/ent0n29/mbtivoice/internal/reliability"
	"github.com/ent0n29/mbtivoice/internal/volcano"
)

var errNoArtifactStore = errors.New("no artifact store configured")

type BaiduSynthesizer interface {
	Synthesize(ctx context.Context, p baidu.SynthesisParams) ([]byte, error)
}

type VolcanoSynthesizer interface {
	Synthesize(ctx context.Context, req volcano.Request) ([]byte, error)
}

// ArtifactSaver persists generated audio and returns where it is served.
type ArtifactSaver interface {
	Save(ctx context.Context, kind, ext string, data []byte) (artifact.Artifact, error)
}

// Speech is the outcome of one synthesis. An empty URL means no audio.
type Speech struct {
	Path     string   `json:"-"`
	URL      string   `json:"url,omitempty"`
	Provider Provider `json:"provider,omitempty"`
	Err      error    `json:"-"`
}

func (s Speech) OK() bool { return s.URL != "" }

// Speaker routes text to the provider chosen by ResolveStyle.
type Speaker struct {
	baidu     BaiduSynthesizer
	volcano   VolcanoSynthesizer
	artifacts ArtifactSaver
	metrics   *observability.Metrics
}

func NewSpeaker(b BaiduSynthesizer, v VolcanoSynthesizer, artifacts ArtifactSaver, metrics *observability.Metrics) *Speaker {
	return &Speaker{baidu: b, volcano: v, artifacts: artifacts, metrics: metrics}
}

// Synthesize speaks text with cfg. Failures are logged and yield a Speech without audio.
func (s *Speaker) Synthesize(ctx context.Context, text string, cfg VoiceConfig) Speech {
	text = sanitizeSpeechText(text)
	if text == "" {
		return Speech{}
	}

	var data []byte
	var err error
	for _, seg := range splitForSynthesis(text, maxSegmentBytes) {
		var part []byte
		part, err = s.synthesizeSegment(ctx, seg, cfg)
		if err != nil {
			break
		}
		// MP3 frames concatenate into one playable stream.
		data = append(data, part...)
	}
	if err == nil && len(data) == 0 {
		err = errors.New("provider returned no audio")
	}
	if err != nil {
		s.metrics.ObserveProviderError(string(cfg.Provider)+"_tts", synthesisErrorCode(err))
		slog.Warn("speech synthesis failed", "provider", cfg.Provider, "language", cfg.Language, "error", err)
		return Speech{Provider: cfg.Provider, Err: err}
	}

	if s.artifacts == nil {
		return Speech{Provider: cfg.Provider, Err: errNoArtifactStore}
	}
	a, err := s.artifacts.Save(ctx, artifact.KindOutput, "mp3", data)
	if err != nil {
		slog.Warn("save synthesized audio failed", "provider", cfg.Provider, "error", err)
		return Speech{Provider: cfg.Provider, Err: err}
	}
	return Speech{Path: a.Path, URL: a.URL, Provider: cfg.Provider}
}

func (s *Speaker) synthesizeSegment(ctx context.Context, text string, cfg VoiceConfig) ([]byte, error) {
	switch cfg.Provider {
	case ProviderBaidu:
		if s.baidu == nil {
			return nil, errors.New("baidu synthesis not configured")
		}
		return s.baidu.Synthesize(ctx, baidu.SynthesisParams{
			Text:   text,
			Lang:   cfg.LangCode,
			Speed:  cfg.Speed,
			Pitch:  cfg.Pitch,
			Volume: cfg.Volume,
			Person: cfg.Person,
		})
	case ProviderVolcano:
		if s.volcano == nil {
			return nil, errors.New("volcano synthesis not configured")
		}
		return s.volcano.Synthesize(ctx, volcano.Request{
			Text:       text,
			VoiceType:  cfg.VoiceID,
			Language:   cfg.LangCode,
			SpeedRatio: cfg.SpeedRatio,
			PitchRatio: cfg.PitchRatio,
		})
	default:
		return nil, errors.New("unknown synthesis provider " + string(cfg.Provider))
	}
}

func synthesisErrorCode(err error) string {
	if e, ok := volcano.AsError(err); ok {
		return strconv.Itoa(e.Code)
	}
	if e, ok := baidu.AsAPIError(err); ok {
		return strconv.Itoa(e.Code)
	}
	var httpErr *baidu.HTTPError
	if errors.As(err, &httpErr) {
		return "http_" + strconv.Itoa(httpErr.Status)
	}
	switch {
	case errors.Is(err, baidu.ErrNoCredentials), errors.Is(err, baidu.ErrTokenUnavailable):
		return "credentials"
	case reliability.IsTimeout(err):
		return "timeout"
	default:
		return "transport"
	}
}
