// Package volcano is a client for the Volcano Engine v1 HTTP speech synthesis API.
package volcano

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyText = errors.New("volcano: empty text")

// Error is a provider reply that was not a success.
type Error struct {
	Code       int
	Message    string
	ReqID      string
	HTTPStatus int
}

func (e *Error) Error() string {
	return fmt.Sprintf("volcano: %s (code=%d, reqid=%s, http_status=%d)", e.Message, e.Code, e.ReqID, e.HTTPStatus)
}

// AsError unwraps err into *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Config configures the client.
type Config struct {
	AppID        string
	AccessToken  string
	URL          string
	Cluster      string
	SuccessCodes []int
	SampleRate   int
	Timeout      time.Duration
}

// Request is one synthesis call.
type Request struct {
	Text       string
	VoiceType  string
	Language   string
	SpeedRatio float64
	PitchRatio float64
}

type Client struct {
	cfg     Config
	success map[int]struct{}
	client  *http.Client
	now     func() time.Time
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	if cfg.Cluster == "" {
		cfg.Cluster = "volcano_tts"
	}
	codes := cfg.SuccessCodes
	if len(codes) == 0 {
		codes = []int{0, 3000}
	}
	success := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		success[c] = struct{}{}
	}
	return &Client{
		cfg:     cfg,
		success: success,
		client:  &http.Client{Timeout: cfg.Timeout},
		now:     time.Now,
	}
}

type appInfo struct {
	AppID   string `json:"appid"`
	Token   string `json:"token"`
	Cluster string `json:"cluster"`
}

type userInfo struct {
	UID string `json:"uid"`
}

type audioParams struct {
	VoiceType   string  `json:"voice_type"`
	Encoding    string  `json:"encoding"`
	Rate        int     `json:"rate"`
	SpeedRatio  float64 `json:"speed_ratio"`
	VolumeRatio float64 `json:"volume_ratio"`
	PitchRatio  float64 `json:"pitch_ratio"`
	Language    string  `json:"language"`
}

type requestParams struct {
	ReqID           string `json:"reqid"`
	Text            string `json:"text"`
	TextType        string `json:"text_type"`
	Operation       string `json:"operation"`
	SilenceDuration int    `json:"silence_duration"`
}

type envelope struct {
	App     appInfo       `json:"app"`
	User    userInfo      `json:"user"`
	Audio   audioParams   `json:"audio"`
	Request requestParams `json:"request"`
}

type apiResponse struct {
	ReqID   string `json:"reqid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
	Payload struct {
		AudioData string `json:"audio_data"`
	} `json:"payload"`
}

var controlChars = regexp.MustCompile(`[\x00-\x1F\x7F-\x9F]`)

// CleanText trims text and strips control characters.
func CleanText(text string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(text, ""))
}

// Synthesize returns MP3 audio for req.
func (c *Client) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	text := CleanText(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	speed := req.SpeedRatio
	if speed <= 0 {
		speed = 1.0
	}
	pitch := req.PitchRatio
	if pitch <= 0 {
		pitch = 1.0
	}

	body := envelope{
		App: appInfo{
			AppID: c.cfg.AppID,
			// The token travels in the Authorization header only.
			Token:   "",
			Cluster: c.cfg.Cluster,
		},
		User: userInfo{UID: "user_" + strconv.FormatInt(c.now().Unix(), 10)},
		Audio: audioParams{
			VoiceType:   req.VoiceType,
			Encoding:    "mp3",
			Rate:        c.cfg.SampleRate,
			SpeedRatio:  speed,
			VolumeRatio: 1.0,
			PitchRatio:  pitch,
			Language:    req.Language,
		},
		Request: requestParams{
			ReqID:           uuid.NewString(),
			Text:            text,
			TextType:        "plain",
			Operation:       "query",
			SilenceDuration: 125,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Format is "Bearer;{token}", not "Bearer {token}".
	httpReq.Header.Set("Authorization", "Bearer;"+c.cfg.AccessToken)

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return c.decode(res, raw, body.Request.ReqID)
}

func (c *Client) decode(res *http.Response, raw []byte, reqID string) ([]byte, error) {
	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		ct := strings.ToLower(res.Header.Get("Content-Type"))
		if res.StatusCode >= 200 && res.StatusCode < 300 && strings.HasPrefix(ct, "audio/") && len(raw) > 0 {
			return raw, nil
		}
		return nil, &Error{
			Code:       -1,
			Message:    fmt.Sprintf("unexpected %q response: %s", ct, excerpt(raw)),
			ReqID:      reqID,
			HTTPStatus: res.StatusCode,
		}
	}
	if out.ReqID == "" {
		out.ReqID = reqID
	}
	if _, ok := c.success[out.Code]; !ok || res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := out.Message
		if msg == "" {
			msg = "synthesis failed"
		}
		return nil, &Error{Code: out.Code, Message: msg, ReqID: out.ReqID, HTTPStatus: res.StatusCode}
	}

	encoded := out.Data
	if encoded == "" {
		encoded = out.Payload.AudioData
	}
	if encoded == "" {
		return nil, &Error{Code: out.Code, Message: "success reply carried no audio", ReqID: out.ReqID, HTTPStatus: res.StatusCode}
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode audio data: %w", err)
	}
	return audio, nil
}

func excerpt(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
