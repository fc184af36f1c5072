// Package chat is the client of the persona dialogue backend.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// User-presentable replies returned instead of errors.
const (
	ReplyStatusFailure  = "API request failed, please try again later"
	ReplyNetworkFailure = "Error occurred while sending request, please check network connection"
	ReplyMissing        = "Sorry, the server did not return a valid reply"
)

// Persona selects the model adapter, prompt template and prompt format.
type Persona struct {
	LoraPath     string `json:"lora_path"`
	PromptChoice string `json:"prompt_choice"`
	FormatChoice string `json:"promptFormat_choice"`
}

// WithDefaults fills empty fields from def.
func (p Persona) WithDefaults(def Persona) Persona {
	if strings.TrimSpace(p.LoraPath) == "" {
		p.LoraPath = def.LoraPath
	}
	if strings.TrimSpace(p.PromptChoice) == "" {
		p.PromptChoice = def.PromptChoice
	}
	if strings.TrimSpace(p.FormatChoice) == "" {
		p.FormatChoice = def.FormatChoice
	}
	return p
}

// Exchange is one committed (user, reply) pair.
type Exchange struct {
	User  string `json:"user"`
	Reply string `json:"reply"`
}

// Request is a single dialogue call.
type Request struct {
	Message string
	History []Exchange
	Persona Persona
}

// Result is always returned; Degraded marks a fallback reply.
type Result struct {
	Reply     string    `json:"reply"`
	Degraded  bool      `json:"degraded"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

type Config struct {
	BaseURL           string
	Timeout           time.Duration
	Stream            bool
	HistoryMaxTurns   int
	HistoryTokenLimit int
}

type Client struct {
	baseURL    string
	stream     bool
	maxTurns   int
	tokenLimit int
	client     *http.Client
	now        func() time.Time
}

type wireRequest struct {
	Message      string      `json:"message"`
	History      [][2]string `json:"history"`
	LoraPath     string      `json:"lora_path"`
	PromptChoice string      `json:"prompt_choice"`
	FormatChoice string      `json:"promptFormat_choice"`
	SessionID    string      `json:"session_id"`
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		stream:     cfg.Stream,
		maxTurns:   cfg.HistoryMaxTurns,
		tokenLimit: cfg.HistoryTokenLimit,
		client:     &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Complete sends req to the dialogue backend. It never fails: transport and
// protocol problems produce one of the fixed fallback replies.
func (c *Client) Complete(ctx context.Context, req Request) Result {
	now := c.now()
	res := Result{
		SessionID: now.Format("20060102150405"),
		Timestamp: now.UTC(),
	}

	history := TrimHistory(answered(req.History), c.maxTurns, c.tokenLimit)
	wire := wireRequest{
		Message:      req.Message,
		History:      make([][2]string, 0, len(history)),
		LoraPath:     req.Persona.LoraPath,
		PromptChoice: req.Persona.PromptChoice,
		FormatChoice: req.Persona.FormatChoice,
		SessionID:    res.SessionID,
	}
	for _, ex := range history {
		wire.History = append(wire.History, [2]string{ex.User, ex.Reply})
	}

	reply, status, err := c.send(ctx, wire)
	switch {
	case err != nil:
		slog.Warn("chat request failed", "error", err, "lora_path", wire.LoraPath)
		res.Reply = ReplyNetworkFailure
		res.Degraded = true
	case status < 200 || status >= 300:
		slog.Warn("chat request rejected", "status", status, "lora_path", wire.LoraPath)
		res.Reply = ReplyStatusFailure
		res.Degraded = true
	case strings.TrimSpace(reply) == "":
		res.Reply = ReplyMissing
		res.Degraded = true
	default:
		res.Reply = reply
	}
	return res
}

func (c *Client) send(ctx context.Context, wire wireRequest) (string, int, error) {
	payload, err := json.Marshal(wire)
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/chat"
	if c.stream {
		endpoint = c.baseURL + "/chat_stream"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		slog.Debug("chat error body", "status", res.StatusCode, "body", string(body))
		return "", res.StatusCode, nil
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "application/x-ndjson") {
		reply, err := consumeStream(res.Body)
		if err != nil {
			return "", res.StatusCode, err
		}
		return reply, res.StatusCode, nil
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", res.StatusCode, fmt.Errorf("read response: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		if c.stream {
			return strings.TrimSpace(string(body)), res.StatusCode, nil
		}
		return "", res.StatusCode, nil
	}
	reply, _ := obj["reply"].(string)
	return reply, res.StatusCode, nil
}

func answered(history []Exchange) []Exchange {
	out := make([]Exchange, 0, len(history))
	for _, ex := range history {
		if strings.TrimSpace(ex.Reply) == "" {
			continue
		}
		out = append(out, ex)
	}
	return out
}
