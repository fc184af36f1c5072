package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config as TOML sections. Unset keys keep the current value.
type fileConfig struct {
	Server struct {
		BindAddr                 string `toml:"bind_addr"`
		ShutdownTimeout          string `toml:"shutdown_timeout"`
		SessionInactivityTimeout string `toml:"session_inactivity_timeout"`
		MetricsNamespace         string `toml:"metrics_namespace"`
		AllowAnyOrigin           *bool  `toml:"allow_any_origin"`
		LogLevel                 string `toml:"log_level"`
		LogFormat                string `toml:"log_format"`
	} `toml:"server"`

	Chat struct {
		APIBaseURL        string `toml:"api_base_url"`
		Timeout           string `toml:"timeout"`
		Stream            *bool  `toml:"stream"`
		DefaultLoraPath   string `toml:"default_lora_path"`
		DefaultPrompt     string `toml:"default_prompt_choice"`
		DefaultFormat     string `toml:"default_format_choice"`
		HistoryMaxTurns   *int   `toml:"history_max_turns"`
		HistoryTokenLimit *int   `toml:"history_token_limit"`
	} `toml:"chat"`

	Baidu struct {
		APIKey     string `toml:"api_key"`
		SecretKey  string `toml:"secret_key"`
		TokenURL   string `toml:"token_url"`
		ASRURL     string `toml:"asr_url"`
		TTSURL     string `toml:"tts_url"`
		CUID       string `toml:"cuid"`
		ASRTimeout string `toml:"asr_timeout"`
		TTSTimeout string `toml:"tts_timeout"`
		Speed      *int   `toml:"speed"`
		Pitch      *int   `toml:"pitch"`
		Volume     *int   `toml:"volume"`
		Person     *int   `toml:"person"`
	} `toml:"baidu"`

	Volcano struct {
		AppID        string `toml:"app_id"`
		AccessToken  string `toml:"access_token"`
		TTSURL       string `toml:"tts_url"`
		Cluster      string `toml:"cluster"`
		SuccessCodes []int  `toml:"success_codes"`
		SampleRate   *int   `toml:"sample_rate"`
		Timeout      string `toml:"timeout"`
	} `toml:"volcano"`

	Voice struct {
		DefaultLanguage string `toml:"default_language"`
		DefaultStyle    string `toml:"default_style"`
	} `toml:"voice"`

	Artifacts struct {
		Dir           string `toml:"dir"`
		TTL           string `toml:"ttl"`
		SweepInterval string `toml:"sweep_interval"`
		NATSURL       string `toml:"nats_url"`
		NATSBucket    string `toml:"nats_bucket"`
	} `toml:"artifacts"`

	Storage struct {
		RedisURL    string `toml:"redis_url"`
		DatabaseURL string `toml:"database_url"`
		RedactPII   *bool  `toml:"redact_pii"`
	} `toml:"storage"`
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return applyTOML(cfg, raw)
}

func applyTOML(cfg *Config, raw []byte) error {
	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.BindAddr, fc.Server.BindAddr)
	setString(&cfg.MetricsNamespace, fc.Server.MetricsNamespace)
	setString(&cfg.LogLevel, strings.ToLower(fc.Server.LogLevel))
	setString(&cfg.LogFormat, strings.ToLower(fc.Server.LogFormat))
	setBool(&cfg.AllowAnyOrigin, fc.Server.AllowAnyOrigin)

	setString(&cfg.APIBaseURL, strings.TrimRight(fc.Chat.APIBaseURL, "/"))
	setBool(&cfg.ChatStream, fc.Chat.Stream)
	setString(&cfg.DefaultLoraPath, fc.Chat.DefaultLoraPath)
	setString(&cfg.DefaultPromptChoice, fc.Chat.DefaultPrompt)
	setString(&cfg.DefaultFormatChoice, fc.Chat.DefaultFormat)
	setInt(&cfg.ChatHistoryMaxTurns, fc.Chat.HistoryMaxTurns)
	setInt(&cfg.ChatHistoryTokenLimit, fc.Chat.HistoryTokenLimit)

	setString(&cfg.BaiduAPIKey, fc.Baidu.APIKey)
	setString(&cfg.BaiduSecretKey, fc.Baidu.SecretKey)
	setString(&cfg.BaiduTokenURL, fc.Baidu.TokenURL)
	setString(&cfg.BaiduASRURL, fc.Baidu.ASRURL)
	setString(&cfg.BaiduTTSURL, fc.Baidu.TTSURL)
	setString(&cfg.BaiduCUID, fc.Baidu.CUID)
	setInt(&cfg.DefaultVoiceSpeed, fc.Baidu.Speed)
	setInt(&cfg.DefaultVoicePitch, fc.Baidu.Pitch)
	setInt(&cfg.DefaultVoiceVolume, fc.Baidu.Volume)
	setInt(&cfg.DefaultVoicePerson, fc.Baidu.Person)

	setString(&cfg.VolcanoAppID, fc.Volcano.AppID)
	setString(&cfg.VolcanoAccessToken, fc.Volcano.AccessToken)
	setString(&cfg.VolcanoTTSURL, fc.Volcano.TTSURL)
	setString(&cfg.VolcanoCluster, fc.Volcano.Cluster)
	setInt(&cfg.VolcanoSampleRate, fc.Volcano.SampleRate)
	if len(fc.Volcano.SuccessCodes) > 0 {
		cfg.VolcanoSuccessCodes = append([]int(nil), fc.Volcano.SuccessCodes...)
	}

	setString(&cfg.DefaultLanguage, fc.Voice.DefaultLanguage)
	setString(&cfg.DefaultTTSStyle, fc.Voice.DefaultStyle)

	setString(&cfg.ArtifactDir, fc.Artifacts.Dir)
	setString(&cfg.NATSURL, fc.Artifacts.NATSURL)
	setString(&cfg.NATSArtifactBucket, fc.Artifacts.NATSBucket)

	setString(&cfg.RedisURL, fc.Storage.RedisURL)
	setString(&cfg.DatabaseURL, fc.Storage.DatabaseURL)
	setBool(&cfg.ArchiveRedactPII, fc.Storage.RedactPII)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"server.shutdown_timeout", fc.Server.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"server.session_inactivity_timeout", fc.Server.SessionInactivityTimeout, &cfg.SessionInactivityTimeout},
		{"chat.timeout", fc.Chat.Timeout, &cfg.ChatTimeout},
		{"baidu.asr_timeout", fc.Baidu.ASRTimeout, &cfg.BaiduASRTimeout},
		{"baidu.tts_timeout", fc.Baidu.TTSTimeout, &cfg.BaiduTTSTimeout},
		{"volcano.timeout", fc.Volcano.Timeout, &cfg.VolcanoTTSTimeout},
		{"artifacts.ttl", fc.Artifacts.TTL, &cfg.ArtifactTTL},
		{"artifacts.sweep_interval", fc.Artifacts.SweepInterval, &cfg.ArtifactSweepInterval},
	}
	for _, d := range durations {
		v := strings.TrimSpace(d.raw)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s parse error: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
