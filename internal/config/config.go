package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the persona voice chat service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string
	AllowAnyOrigin           bool
	LogLevel                 string
	LogFormat                string

	// Dialogue backend.
	APIBaseURL            string
	ChatTimeout           time.Duration
	ChatStream            bool
	DefaultLoraPath       string
	DefaultPromptChoice   string
	DefaultFormatChoice   string
	ChatHistoryMaxTurns   int
	ChatHistoryTokenLimit int

	// Provider A: recognition and Chinese synthesis.
	BaiduAPIKey     string
	BaiduSecretKey  string
	BaiduTokenURL   string
	BaiduASRURL     string
	BaiduTTSURL     string
	BaiduCUID       string
	BaiduASRTimeout time.Duration
	BaiduTTSTimeout time.Duration

	DefaultVoiceSpeed  int
	DefaultVoicePitch  int
	DefaultVoiceVolume int
	DefaultVoicePerson int

	// Provider B: multi-language synthesis.
	VolcanoAppID        string
	VolcanoAccessToken  string
	VolcanoTTSURL       string
	VolcanoCluster      string
	VolcanoSuccessCodes []int
	VolcanoSampleRate   int
	VolcanoTTSTimeout   time.Duration

	DefaultLanguage string
	DefaultTTSStyle string

	ArtifactDir           string
	ArtifactTTL           time.Duration
	ArtifactSweepInterval time.Duration
	NATSURL               string
	NATSArtifactBucket    string

	RedisURL         string
	DatabaseURL      string
	ArchiveRedactPII bool
}

// Defaults returns the built-in configuration before any file or environment overlay.
func Defaults() Config {
	return Config{
		BindAddr:                 ":8080",
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		MetricsNamespace:         "mbtivoice",
		LogLevel:                 "info",
		LogFormat:                "text",

		APIBaseURL:          "http://127.0.0.1:8717",
		ChatTimeout:         60 * time.Second,
		DefaultLoraPath:     "estj",
		DefaultPromptChoice: "assist_estj",
		DefaultFormatChoice: "ordinary",
		ChatHistoryMaxTurns: 20,

		BaiduTokenURL:   "https://aip.baidubce.com/oauth/2.0/token",
		BaiduASRURL:     "https://vop.baidu.com/server_api",
		BaiduTTSURL:     "https://tsn.baidu.com/text2audio",
		BaiduCUID:       "mbtivoice",
		BaiduASRTimeout: 30 * time.Second,
		BaiduTTSTimeout: 30 * time.Second,

		DefaultVoiceSpeed:  5,
		DefaultVoicePitch:  5,
		DefaultVoiceVolume: 5,
		DefaultVoicePerson: 0,

		VolcanoTTSURL:       "https://openspeech.bytedance.com/api/v1/tts",
		VolcanoCluster:      "volcano_tts",
		VolcanoSuccessCodes: []int{0, 3000},
		VolcanoSampleRate:   24000,
		VolcanoTTSTimeout:   30 * time.Second,

		DefaultLanguage: "English",
		DefaultTTSStyle: "Standard Voice",

		ArtifactDir:           "static",
		ArtifactTTL:           time.Hour,
		ArtifactSweepInterval: 5 * time.Minute,
		NATSArtifactBucket:    "AUDIO_ARTIFACTS",

		ArchiveRedactPII: true,
	}
}

// Load reads the optional APP_CONFIG_FILE and environment variables on top of Defaults.
func Load() (Config, error) {
	cfg := Defaults()

	if path := stringsTrimSpace("APP_CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("LOG_FORMAT", cfg.LogFormat))

	cfg.APIBaseURL = strings.TrimRight(envOrDefault("API_BASE_URL", cfg.APIBaseURL), "/")
	cfg.DefaultLoraPath = envOrDefault("DEFAULT_LORA_PATH", cfg.DefaultLoraPath)
	cfg.DefaultPromptChoice = envOrDefault("DEFAULT_PROMPT_CHOICE", cfg.DefaultPromptChoice)
	cfg.DefaultFormatChoice = envOrDefault("DEFAULT_FORMAT_CHOICE", cfg.DefaultFormatChoice)

	cfg.BaiduAPIKey = envOrDefault("BAIDU_API_KEY", cfg.BaiduAPIKey)
	cfg.BaiduSecretKey = envOrDefault("BAIDU_SECRET_KEY", cfg.BaiduSecretKey)
	cfg.BaiduTokenURL = envOrDefault("BAIDU_TOKEN_URL", cfg.BaiduTokenURL)
	cfg.BaiduASRURL = envOrDefault("BAIDU_ASR_URL", cfg.BaiduASRURL)
	cfg.BaiduTTSURL = envOrDefault("BAIDU_TTS_URL", cfg.BaiduTTSURL)
	cfg.BaiduCUID = envOrDefault("BAIDU_CUID", cfg.BaiduCUID)

	cfg.VolcanoAppID = envOrDefault("VOLCANO_APP_ID", cfg.VolcanoAppID)
	cfg.VolcanoAccessToken = envOrDefault("VOLCANO_ACCESS_TOKEN", cfg.VolcanoAccessToken)
	cfg.VolcanoTTSURL = envOrDefault("VOLCANO_TTS_URL", cfg.VolcanoTTSURL)
	cfg.VolcanoCluster = envOrDefault("VOLCANO_CLUSTER", cfg.VolcanoCluster)

	cfg.DefaultLanguage = envOrDefault("DEFAULT_LANGUAGE", cfg.DefaultLanguage)
	cfg.DefaultTTSStyle = envOrDefault("DEFAULT_TTS_STYLE", cfg.DefaultTTSStyle)

	cfg.ArtifactDir = envOrDefault("ARTIFACT_DIR", cfg.ArtifactDir)
	cfg.NATSURL = envOrDefault("NATS_URL", cfg.NATSURL)
	cfg.NATSArtifactBucket = envOrDefault("NATS_ARTIFACT_BUCKET", cfg.NATSArtifactBucket)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"APP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"APP_SESSION_INACTIVITY_TIMEOUT", &cfg.SessionInactivityTimeout},
		{"CHAT_TIMEOUT", &cfg.ChatTimeout},
		{"BAIDU_ASR_TIMEOUT", &cfg.BaiduASRTimeout},
		{"BAIDU_TTS_TIMEOUT", &cfg.BaiduTTSTimeout},
		{"VOLCANO_TTS_TIMEOUT", &cfg.VolcanoTTSTimeout},
		{"ARTIFACT_TTL", &cfg.ArtifactTTL},
		{"ARTIFACT_SWEEP_INTERVAL", &cfg.ArtifactSweepInterval},
	}
	for _, d := range durations {
		*d.dst, err = durationFromEnv(d.key, *d.dst)
		if err != nil {
			return Config{}, err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CHAT_HISTORY_MAX_TURNS", &cfg.ChatHistoryMaxTurns},
		{"CHAT_HISTORY_TOKEN_LIMIT", &cfg.ChatHistoryTokenLimit},
		{"DEFAULT_VOICE_SPEED", &cfg.DefaultVoiceSpeed},
		{"DEFAULT_VOICE_PITCH", &cfg.DefaultVoicePitch},
		{"DEFAULT_VOICE_VOLUME", &cfg.DefaultVoiceVolume},
		{"DEFAULT_VOICE_PERSON", &cfg.DefaultVoicePerson},
		{"VOLCANO_SAMPLE_RATE", &cfg.VolcanoSampleRate},
	}
	for _, n := range ints {
		*n.dst, err = intFromEnv(n.key, *n.dst)
		if err != nil {
			return Config{}, err
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"APP_ALLOW_ANY_ORIGIN", &cfg.AllowAnyOrigin},
		{"CHAT_STREAM", &cfg.ChatStream},
		{"ARCHIVE_REDACT_PII", &cfg.ArchiveRedactPII},
	}
	for _, b := range bools {
		*b.dst, err = boolFromEnv(b.key, *b.dst)
		if err != nil {
			return Config{}, err
		}
	}

	cfg.VolcanoSuccessCodes, err = intListFromEnv("VOLCANO_SUCCESS_CODES", cfg.VolcanoSuccessCodes)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("API_BASE_URL must not be empty")
	}
	if c.ChatTimeout <= 0 {
		return fmt.Errorf("CHAT_TIMEOUT must be positive")
	}
	if c.BaiduASRTimeout <= 0 || c.BaiduTTSTimeout <= 0 || c.VolcanoTTSTimeout <= 0 {
		return fmt.Errorf("provider timeouts must be positive")
	}
	if c.ChatHistoryMaxTurns < 0 {
		return fmt.Errorf("CHAT_HISTORY_MAX_TURNS must be >= 0")
	}
	if c.ChatHistoryTokenLimit < 0 {
		return fmt.Errorf("CHAT_HISTORY_TOKEN_LIMIT must be >= 0")
	}
	if !between(c.DefaultVoiceSpeed, 0, 15) || !between(c.DefaultVoicePitch, 0, 15) || !between(c.DefaultVoiceVolume, 0, 15) {
		return fmt.Errorf("DEFAULT_VOICE_SPEED, DEFAULT_VOICE_PITCH and DEFAULT_VOICE_VOLUME must be within 0..15")
	}
	if c.VolcanoSampleRate <= 0 {
		return fmt.Errorf("VOLCANO_SAMPLE_RATE must be positive")
	}
	if len(c.VolcanoSuccessCodes) == 0 {
		return fmt.Errorf("VOLCANO_SUCCESS_CODES must list at least one code")
	}
	if strings.TrimSpace(c.ArtifactDir) == "" {
		return fmt.Errorf("ARTIFACT_DIR must not be empty")
	}
	if c.ArtifactTTL < 0 {
		return fmt.Errorf("ARTIFACT_TTL must be >= 0")
	}
	if c.ArtifactTTL > 0 && c.ArtifactSweepInterval <= 0 {
		return fmt.Errorf("ARTIFACT_SWEEP_INTERVAL must be positive when ARTIFACT_TTL is set")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	return nil
}

// BaiduConfigured reports whether provider A credentials are present.
func (c Config) BaiduConfigured() bool {
	return strings.TrimSpace(c.BaiduAPIKey) != "" && strings.TrimSpace(c.BaiduSecretKey) != ""
}

// VolcanoConfigured reports whether provider B credentials are present.
func (c Config) VolcanoConfigured() bool {
	return strings.TrimSpace(c.VolcanoAppID) != "" && strings.TrimSpace(c.VolcanoAccessToken) != ""
}

func between(v, lo, hi int) bool {
	return v >= lo && v <= hi
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func intListFromEnv(key string, fallback []int) ([]int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	return parseIntList(key, v)
}

func parseIntList(key, v string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%s parse error: %w", key, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
