package baidu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TTSConfig configures the synthesis client.
type TTSConfig struct {
	URL     string
	CUID    string
	Timeout time.Duration
}

// SynthesisParams are the provider voice knobs, each on the 0..15 scale.
type SynthesisParams struct {
	Text   string
	Lang   string
	Speed  int
	Pitch  int
	Volume int
	Person int
}

type TTSClient struct {
	tokens *TokenSource
	url    string
	cuid   string
	client *http.Client
}

func NewTTSClient(tokens *TokenSource, cfg TTSConfig) *TTSClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TTSClient{
		tokens: tokens,
		url:    strings.TrimSpace(cfg.URL),
		cuid:   cfg.CUID,
		client: &http.Client{Timeout: timeout},
	}
}

// LangCode maps a language name to the synthesis lan parameter.
func LangCode(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "chinese", "zh", "mandarin":
		return "zh"
	default:
		return "en"
	}
}

// Synthesize returns MP3 audio for p.Text.
func (c *TTSClient) Synthesize(ctx context.Context, p SynthesisParams) ([]byte, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil, fmt.Errorf("baidu tts: empty text")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	lang := p.Lang
	if lang == "" {
		lang = "zh"
	}

	q := url.Values{}
	q.Set("tex", text)
	q.Set("tok", token)
	q.Set("cuid", c.cuid)
	q.Set("ctp", "1")
	q.Set("lan", lang)
	q.Set("spd", strconv.Itoa(clampScale(p.Speed)))
	q.Set("pit", strconv.Itoa(clampScale(p.Pitch)))
	q.Set("vol", strconv.Itoa(clampScale(p.Volume)))
	q.Set("per", strconv.Itoa(p.Person))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create tts request: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send tts request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{Endpoint: "tts", Status: res.StatusCode, Body: bodyExcerpt(body)}
	}

	ct := strings.ToLower(res.Header.Get("Content-Type"))
	if strings.HasPrefix(ct, "audio/") {
		if len(body) == 0 {
			return nil, fmt.Errorf("baidu tts: empty audio body")
		}
		return body, nil
	}

	var apiErr struct {
		ErrNo  int    `json:"err_no"`
		ErrMsg string `json:"err_msg"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrNo != 0 {
		return nil, &APIError{Endpoint: "tts", Code: apiErr.ErrNo, Message: apiErr.ErrMsg}
	}
	return nil, fmt.Errorf("baidu tts: unexpected content type %q: %s", ct, bodyExcerpt(body))
}

func clampScale(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 15:
		return 15
	default:
		return v
	}
}
