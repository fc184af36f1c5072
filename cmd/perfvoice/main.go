package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/mbtivoice/internal/observability"
	"github.com/ent0n29/mbtivoice/internal/protocol"
)

type options struct {
	baseURL        string
	loraPath       string
	ttsStyle       string
	language       string
	wavPath        string
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type createSessionRequest struct {
	LoraPath string `json:"lora_path,omitempty"`
	TTSStyle string `json:"tts_style,omitempty"`
	Language string `json:"language,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
	Result struct {
		Stage    string `json:"stage"`
		Reply    string `json:"reply"`
		AudioURL string `json:"audio_url"`
		Provider string `json:"provider"`
		Prompt   string `json:"prompt"`
	} `json:"result"`
}

type turnSample struct {
	latency  time.Duration
	stage    string
	provider string
	hasAudio bool
}

var defaultUtterances = []string{
	"Describe your ideal weekend in one sentence.",
	"What do you do when a plan falls apart?",
	"Give me one tip for staying organised.",
	"How do you recharge after a long day?",
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfvoice: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	fs := flag.NewFlagSet("perfvoice", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "mbtivoice base URL")
	fs.StringVar(&cfg.loraPath, "lora-path", "", "personality model for the synthetic session")
	fs.StringVar(&cfg.ttsStyle, "tts-style", "", "voice style for the synthetic session")
	fs.StringVar(&cfg.language, "language", "English", "reply language")
	fs.StringVar(&cfg.wavPath, "wav", "", "replay this recording as every turn instead of text")
	fs.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	fs.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	fs.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for turn_result per turn in milliseconds")
	fs.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	texts, err := splitTexts(textsRaw)
	if err != nil {
		return options{}, err
	}
	cfg.texts = texts
	return cfg, nil
}

func splitTexts(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultUtterances...), nil
	}
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("texts produced no non-empty utterances")
	}
	return out, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	var recording string
	if cfg.wavPath != "" {
		data, err := os.ReadFile(cfg.wavPath)
		if err != nil {
			return fmt.Errorf("read recording: %w", err)
		}
		recording = base64.StdEncoding.EncodeToString(data)
	}

	httpClient := &http.Client{Timeout: 45 * time.Second}
	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	if cfg.verbose {
		fmt.Printf("perfvoice: session=%s turns=%d language=%s\n", sessionID, cfg.turns, cfg.language)
	}

	wsURL, err := wsURLForSession(cfg.baseURL, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	resultCh := make(chan wsEnvelope, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, resultCh, readErrCh, cfg.verbose)

	opts := protocol.TurnOptions{Language: cfg.language}
	samples := make([]turnSample, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		var msg any
		if recording != "" {
			msg = protocol.TurnAudio{Type: protocol.TypeTurnAudio, AudioBase64: recording, TurnOptions: opts}
		} else {
			text := cfg.texts[i%len(cfg.texts)]
			if cfg.verbose {
				fmt.Printf("perfvoice: turn %d/%d text=%q\n", i+1, cfg.turns, text)
			}
			msg = protocol.TurnText{Type: protocol.TypeTurnText, Text: text, TurnOptions: opts}
		}

		started := time.Now()
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		res, err := awaitTurnResult(resultCh, readErrCh, cfg.turnTimeout)
		if err != nil {
			return fmt.Errorf("turn %d await turn_result: %w", i+1, err)
		}
		sample := turnSample{
			latency:  time.Since(started),
			stage:    res.Result.Stage,
			provider: res.Result.Provider,
			hasAudio: res.Result.AudioURL != "",
		}
		samples = append(samples, sample)
		if cfg.verbose {
			fmt.Printf("perfvoice: turn %d stage=%s provider=%s audio=%t latency=%s\n", i+1, sample.stage, sample.provider, sample.hasAudio, sample.latency.Round(time.Millisecond))
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	fmt.Println(summarize(samples))
	if snap, err := fetchStageSnapshot(ctx, httpClient, cfg.baseURL); err == nil {
		for _, st := range snap.Stages {
			fmt.Printf("perfvoice: server stage=%s samples=%d p50=%.0fms p95=%.0fms target=%.0fms\n", st.Stage, st.Samples, st.P50MS, st.P95MS, st.TargetP95MS)
		}
	} else if cfg.verbose {
		fmt.Fprintf(os.Stderr, "perfvoice: fetch stage snapshot: %v\n", err)
	}
	return nil
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(createSessionRequest{
		LoraPath: strings.TrimSpace(cfg.loraPath),
		TTSStyle: strings.TrimSpace(cfg.ttsStyle),
		Language: strings.TrimSpace(cfg.language),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/sessions/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func fetchStageSnapshot(ctx context.Context, client *http.Client, baseURL string) (observability.TurnStageSnapshot, error) {
	var snap observability.TurnStageSnapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return snap, err
	}
	res, err := client.Do(req)
	if err != nil {
		return snap, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("HTTP %d", res.StatusCode)
	}
	err = json.NewDecoder(res.Body).Decode(&snap)
	return snap, err
}

func wsURLForSession(baseURL, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/sessions/" + url.PathEscape(sessionID) + "/ws"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, resultCh chan<- wsEnvelope, readErrCh chan<- error, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case string(protocol.TypeTurnResult):
			select {
			case resultCh <- env:
			default:
			}
		case string(protocol.TypeErrorEvent):
			if verbose {
				fmt.Fprintf(os.Stderr, "perfvoice: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

func awaitTurnResult(resultCh <-chan wsEnvelope, readErrCh <-chan error, timeout time.Duration) (wsEnvelope, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case env := <-resultCh:
		return env, nil
	case err := <-readErrCh:
		return wsEnvelope{}, err
	case <-timer.C:
		return wsEnvelope{}, fmt.Errorf("timeout after %s", timeout)
	}
}

func summarize(samples []turnSample) string {
	if len(samples) == 0 {
		return "perfvoice: no turns completed"
	}
	latencies := make([]time.Duration, len(samples))
	complete, withAudio := 0, 0
	for i, s := range samples {
		latencies[i] = s.latency
		if s.stage == "complete" {
			complete++
		}
		if s.hasAudio {
			withAudio++
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	return fmt.Sprintf("perfvoice: turns=%d complete=%d with_audio=%d p50=%s p95=%s max=%s",
		len(samples), complete, withAudio,
		percentile(latencies, 0.50).Round(time.Millisecond),
		percentile(latencies, 0.95).Round(time.Millisecond),
		latencies[len(latencies)-1].Round(time.Millisecond))
}

// percentile expects sorted input and uses nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted))*p+0.999999) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
