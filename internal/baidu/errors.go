// Package baidu talks to the Baidu speech endpoints: access-token exchange,
// short speech recognition and text-to-speech.
package baidu

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredentials means the API key or secret is not configured.
	ErrNoCredentials = errors.New("baidu credentials not configured")
	// ErrTokenUnavailable wraps any failure to obtain an access token.
	ErrTokenUnavailable = errors.New("baidu access token unavailable")
	// ErrEmptyResult means recognition succeeded but produced no candidate.
	ErrEmptyResult = errors.New("baidu recognition returned no result")
)

// Error codes documented by the speech API.
const (
	CodeNoSpeech = 3301
)

// HTTPError is a non-2xx reply.
type HTTPError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("baidu %s http status %d: %s", e.Endpoint, e.Status, e.Body)
}

// APIError is a 2xx reply that carries a non-zero err_no.
type APIError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("baidu %s: %s (err_no=%d)", e.Endpoint, e.Message, e.Code)
}

// NoSpeech reports whether the provider found no usable speech in the audio.
func (e *APIError) NoSpeech() bool {
	return e.Code == CodeNoSpeech
}

// AsAPIError unwraps err into *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var e *APIError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func bodyExcerpt(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
