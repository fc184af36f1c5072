package baidu

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Recognition model ids.
const (
	DevPIDMandarin = 1537
	DevPIDEnglish  = 1737
)

// DevPID maps a language name to its recognition model.
// Languages without a dedicated model fall back to English.
func DevPID(language string) int {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "chinese", "zh", "mandarin":
		return DevPIDMandarin
	default:
		return DevPIDEnglish
	}
}

// ASRConfig configures the short speech recognition client.
type ASRConfig struct {
	URL     string
	CUID    string
	Timeout time.Duration
}

type ASRClient struct {
	tokens *TokenSource
	url    string
	cuid   string
	client *http.Client
}

type asrRequest struct {
	Format  string `json:"format"`
	Rate    int    `json:"rate"`
	Channel int    `json:"channel"`
	Token   string `json:"token"`
	CUID    string `json:"cuid"`
	Len     int    `json:"len"`
	Speech  string `json:"speech"`
	DevPID  int    `json:"dev_pid"`
}

type asrResponse struct {
	ErrNo  int      `json:"err_no"`
	ErrMsg string   `json:"err_msg"`
	SN     string   `json:"sn"`
	Result []string `json:"result"`
}

func NewASRClient(tokens *TokenSource, cfg ASRConfig) *ASRClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ASRClient{
		tokens: tokens,
		url:    strings.TrimSpace(cfg.URL),
		cuid:   cfg.CUID,
		client: &http.Client{Timeout: timeout},
	}
}

// Recognize transcribes a mono 16 kHz 16-bit WAV and returns the first candidate.
func (c *ASRClient) Recognize(ctx context.Context, wav []byte, language string) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(asrRequest{
		Format:  "wav",
		Rate:    16000,
		Channel: 1,
		Token:   token,
		CUID:    c.cuid,
		Len:     len(wav),
		Speech:  base64.StdEncoding.EncodeToString(wav),
		DevPID:  DevPID(language),
	})
	if err != nil {
		return "", fmt.Errorf("marshal asr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create asr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send asr request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read asr response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &HTTPError{Endpoint: "asr", Status: res.StatusCode, Body: bodyExcerpt(body)}
	}

	var out asrResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &APIError{Endpoint: "asr", Code: -1, Message: "malformed response: " + err.Error()}
	}
	if out.ErrNo != 0 {
		return "", &APIError{Endpoint: "asr", Code: out.ErrNo, Message: out.ErrMsg}
	}
	if len(out.Result) == 0 || strings.TrimSpace(out.Result[0]) == "" {
		return "", ErrEmptyResult
	}
	return out.Result[0], nil
}
