package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ent0n29/mbtivoice/internal/artifact"
	"github.com/ent0n29/mbtivoice/internal/baidu"
	"github.com/ent0n29/mbtivoice/internal/chat"
	"github.com/ent0n29/mbtivoice/internal/config"
	"github.com/ent0n29/mbtivoice/internal/httpapi"
	"github.com/ent0n29/mbtivoice/internal/memory"
	"github.com/ent0n29/mbtivoice/internal/observability"
	"github.com/ent0n29/mbtivoice/internal/session"
	"github.com/ent0n29/mbtivoice/internal/voice"
	"github.com/ent0n29/mbtivoice/internal/volcano"
)

// ProviderInfo summarises which external backends are active.
type ProviderInfo struct {
	Baidu      bool
	Volcano    bool
	TokenCache string
	Mirror     string
	Archive    string
}

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *voice.Orchestrator
	Artifacts    *artifact.Store
	Metrics      *observability.Metrics
	Providers    ProviderInfo

	// Cleanup should be called on shutdown to release external resources (DB, Redis, NATS).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	info := ProviderInfo{
		Baidu:      cfg.BaiduConfigured(),
		Volcano:    cfg.VolcanoConfigured(),
		TokenCache: "memory",
		Mirror:     "none",
		Archive:    "in-memory",
	}
	var closers []func() error

	cleanup := func() error {
		var errs []string
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}
	fail := func(err error) (*BuildResult, error) {
		_ = cleanup()
		return nil, err
	}

	archive, err := memory.NewStore(ctx, cfg.DatabaseURL, cfg.ArchiveRedactPII)
	if err != nil {
		return fail(fmt.Errorf("turn archive init failed: %w", err))
	}
	closers = append(closers, archive.Close)
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		info.Archive = "postgres"
	}

	var tokenCache baidu.TokenCache = baidu.NewMemoryTokenCache()
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rc, err := baidu.NewRedisTokenCacheFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("redis token cache init failed: %w", err))
		}
		closers = append(closers, rc.Close)
		tokenCache = rc
		info.TokenCache = "redis"
	}
	tokens := baidu.NewTokenSource(baidu.TokenSourceConfig{
		APIKey:    cfg.BaiduAPIKey,
		SecretKey: cfg.BaiduSecretKey,
		URL:       cfg.BaiduTokenURL,
		Cache:     tokenCache,
	})

	storeOpts := []artifact.Option{
		artifact.WithTTL(cfg.ArtifactTTL),
		artifact.WithSweepHook(metrics.ObserveSwept),
	}
	if strings.TrimSpace(cfg.NATSURL) != "" {
		mirror, err := artifact.DialNATSMirror(cfg.NATSURL, cfg.NATSArtifactBucket)
		if err != nil {
			return fail(fmt.Errorf("nats artifact mirror init failed: %w", err))
		}
		closers = append(closers, mirror.Close)
		storeOpts = append(storeOpts, artifact.WithMirror(mirror))
		info.Mirror = "nats:" + cfg.NATSArtifactBucket
	}
	artifacts, err := artifact.New(cfg.ArtifactDir, "/static/", storeOpts...)
	if err != nil {
		return fail(fmt.Errorf("artifact store init failed: %w", err))
	}

	// Unconfigured providers stay nil interfaces so their stage reports unavailable.
	var recognizer voice.RecognitionBackend
	var baiduTTS voice.BaiduSynthesizer
	if info.Baidu {
		recognizer = baidu.NewASRClient(tokens, baidu.ASRConfig{
			URL:     cfg.BaiduASRURL,
			CUID:    cfg.BaiduCUID,
			Timeout: cfg.BaiduASRTimeout,
		})
		baiduTTS = baidu.NewTTSClient(tokens, baidu.TTSConfig{
			URL:     cfg.BaiduTTSURL,
			CUID:    cfg.BaiduCUID,
			Timeout: cfg.BaiduTTSTimeout,
		})
	}
	var volcanoTTS voice.VolcanoSynthesizer
	if info.Volcano {
		volcanoTTS = volcano.NewClient(volcano.Config{
			AppID:        cfg.VolcanoAppID,
			AccessToken:  cfg.VolcanoAccessToken,
			URL:          cfg.VolcanoTTSURL,
			Cluster:      cfg.VolcanoCluster,
			SuccessCodes: cfg.VolcanoSuccessCodes,
			SampleRate:   cfg.VolcanoSampleRate,
			Timeout:      cfg.VolcanoTTSTimeout,
		})
	}

	dialogue := chat.NewClient(chat.Config{
		BaseURL:           cfg.APIBaseURL,
		Timeout:           cfg.ChatTimeout,
		Stream:            cfg.ChatStream,
		HistoryMaxTurns:   cfg.ChatHistoryMaxTurns,
		HistoryTokenLimit: cfg.ChatHistoryTokenLimit,
	})

	voiceDefaults := voice.VoiceDefaults{
		Speed:  cfg.DefaultVoiceSpeed,
		Pitch:  cfg.DefaultVoicePitch,
		Volume: cfg.DefaultVoiceVolume,
		Person: cfg.DefaultVoicePerson,
	}
	if _, ok := voice.LookupStyle(cfg.DefaultTTSStyle, voiceDefaults); !ok {
		return fail(errors.New("invalid DEFAULT_TTS_STYLE: " + cfg.DefaultTTSStyle))
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout, session.Defaults{
		Persona: chat.Persona{
			LoraPath:     cfg.DefaultLoraPath,
			PromptChoice: cfg.DefaultPromptChoice,
			FormatChoice: cfg.DefaultFormatChoice,
		},
		Style:    cfg.DefaultTTSStyle,
		Language: cfg.DefaultLanguage,
	})
	sessions.SetExpireHook(func(s *session.Session) {
		slog.Info("session expired", "session_id", s.ID, "turns", s.TurnCount)
		metrics.ObserveSessionEvent("expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
	})

	orchestrator := voice.NewOrchestrator(voice.Components{
		Sessions:      sessions,
		Recognizer:    voice.NewTranscriber(recognizer, metrics),
		Dialogue:      dialogue,
		Synthesizer:   voice.NewSpeaker(baiduTTS, volcanoTTS, artifacts, metrics),
		Artifacts:     artifacts,
		Archive:       archive,
		Metrics:       metrics,
		VoiceDefaults: voiceDefaults,
	})

	api := httpapi.New(cfg, sessions, orchestrator, dialogue, artifacts, metrics)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Artifacts:    artifacts,
		Metrics:      metrics,
		Providers:    info,
		Cleanup:      cleanup,
	}, nil
}
