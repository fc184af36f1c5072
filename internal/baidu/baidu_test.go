package baidu

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBaidu struct {
	tokenCalls atomic.Int32
	tokenFails atomic.Int32
	asr        func(w http.ResponseWriter, req asrRequest)
	tts        func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeBaidu) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if f.tokenFails.Load() > 0 {
			f.tokenFails.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Query().Get("grant_type") != "client_credentials" || r.URL.Query().Get("client_id") != "key" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"unknown client id"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 2592000})
	})
	mux.HandleFunc("/asr", func(w http.ResponseWriter, r *http.Request) {
		var req asrRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.asr(w, req)
	})
	mux.HandleFunc("/tts", func(w http.ResponseWriter, r *http.Request) {
		f.tts(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTokens(srv *httptest.Server, key string) *TokenSource {
	return NewTokenSource(TokenSourceConfig{APIKey: key, SecretKey: "secret", URL: srv.URL + "/token"})
}

func TestTokenSourceCachesToken(t *testing.T) {
	f := &fakeBaidu{}
	srv := f.server(t)
	tokens := newTokens(srv, "key")

	for i := 0; i < 3; i++ {
		tok, err := tokens.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", tok)
	}
	assert.Equal(t, int32(1), f.tokenCalls.Load())
}

func TestTokenSourceRetriesTransientFailures(t *testing.T) {
	f := &fakeBaidu{}
	f.tokenFails.Store(2)
	srv := f.server(t)

	tok, err := newTokens(srv, "key").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(3), f.tokenCalls.Load())
}

func TestTokenSourceFailures(t *testing.T) {
	f := &fakeBaidu{}
	srv := f.server(t)

	_, err := NewTokenSource(TokenSourceConfig{URL: srv.URL + "/token"}).Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)

	_, err = newTokens(srv, "wrong").Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenUnavailable)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
}

func TestMemoryTokenCacheExpires(t *testing.T) {
	c := NewMemoryTokenCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	got, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisTokenCache(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedisTokenCacheFromURL(ctx, redisURL)
	require.NoError(t, err)
	defer c.Close()

	key := "test-" + time.Now().Format("150405.000000000")
	require.NoError(t, c.Set(ctx, key, "tok", time.Minute))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", got)

	_, ok, err = c.Get(ctx, key+"-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDevPID(t *testing.T) {
	assert.Equal(t, DevPIDMandarin, DevPID("Chinese"))
	assert.Equal(t, DevPIDEnglish, DevPID("English"))
	assert.Equal(t, DevPIDEnglish, DevPID("Japanese"))
	assert.Equal(t, DevPIDEnglish, DevPID(""))
}

func TestRecognize(t *testing.T) {
	wav := []byte("RIFF....WAVEfake")
	f := &fakeBaidu{}
	f.asr = func(w http.ResponseWriter, req asrRequest) {
		assert.Equal(t, "wav", req.Format)
		assert.Equal(t, 16000, req.Rate)
		assert.Equal(t, 1, req.Channel)
		assert.Equal(t, "tok-1", req.Token)
		assert.Equal(t, len(wav), req.Len)
		assert.Equal(t, base64.StdEncoding.EncodeToString(wav), req.Speech)
		switch req.DevPID {
		case DevPIDMandarin:
			_, _ = w.Write([]byte(`{"err_no":0,"err_msg":"success.","result":["你好"]}`))
		default:
			_, _ = w.Write([]byte(`{"err_no":0,"err_msg":"success.","result":["hello there","hello their"]}`))
		}
	}
	srv := f.server(t)
	client := NewASRClient(newTokens(srv, "key"), ASRConfig{URL: srv.URL + "/asr", CUID: "test"})

	text, err := client.Recognize(context.Background(), wav, "English")
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)

	text, err = client.Recognize(context.Background(), wav, "Chinese")
	require.NoError(t, err)
	assert.Equal(t, "你好", text)
}

func TestRecognizeFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"empty result", 200, `{"err_no":0,"result":[]}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrEmptyResult)
		}},
		{"provider rejected", 200, `{"err_no":3302,"err_msg":"authentication failed"}`, func(t *testing.T, err error) {
			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, 3302, apiErr.Code)
			assert.False(t, apiErr.NoSpeech())
		}},
		{"no speech", 200, `{"err_no":3301,"err_msg":"speech quality error"}`, func(t *testing.T, err error) {
			apiErr, ok := AsAPIError(err)
			require.True(t, ok)
			assert.True(t, apiErr.NoSpeech())
		}},
		{"http failure", 502, `bad gateway`, func(t *testing.T, err error) {
			var httpErr *HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, 502, httpErr.Status)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := &fakeBaidu{}
			f.asr = func(w http.ResponseWriter, _ asrRequest) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}
			srv := f.server(t)
			client := NewASRClient(newTokens(srv, "key"), ASRConfig{URL: srv.URL + "/asr"})
			_, err := client.Recognize(context.Background(), []byte("wav"), "English")
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestRecognizeTimeout(t *testing.T) {
	f := &fakeBaidu{}
	f.asr = func(w http.ResponseWriter, _ asrRequest) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"err_no":0,"result":["late"]}`))
	}
	srv := f.server(t)
	client := NewASRClient(newTokens(srv, "key"), ASRConfig{URL: srv.URL + "/asr", Timeout: 20 * time.Millisecond})
	_, err := client.Recognize(context.Background(), []byte("wav"), "English")
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestSynthesize(t *testing.T) {
	f := &fakeBaidu{}
	f.tts = func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "你好", q.Get("tex"))
		assert.Equal(t, "tok-1", q.Get("tok"))
		assert.Equal(t, "1", q.Get("ctp"))
		assert.Equal(t, "zh", q.Get("lan"))
		assert.Equal(t, "4", q.Get("spd"))
		assert.Equal(t, "6", q.Get("pit"))
		assert.Equal(t, "15", q.Get("vol"))
		assert.Equal(t, "4", q.Get("per"))
		w.Header().Set("Content-Type", "audio/mp3")
		_, _ = w.Write([]byte("ID3mp3bytes"))
	}
	srv := f.server(t)
	client := NewTTSClient(newTokens(srv, "key"), TTSConfig{URL: srv.URL + "/tts"})

	audio, err := client.Synthesize(context.Background(), SynthesisParams{
		Text: " 你好 ", Lang: "zh", Speed: 4, Pitch: 6, Volume: 20, Person: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3mp3bytes"), audio)
}

func TestSynthesizeRejectsNonAudio(t *testing.T) {
	f := &fakeBaidu{}
	f.tts = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"err_no":502,"err_msg":"access token invalid"}`))
	}
	srv := f.server(t)
	client := NewTTSClient(newTokens(srv, "key"), TTSConfig{URL: srv.URL + "/tts"})

	_, err := client.Synthesize(context.Background(), SynthesisParams{Text: "hi"})
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 502, apiErr.Code)

	_, err = client.Synthesize(context.Background(), SynthesisParams{Text: "   "})
	assert.Error(t, err)
}
