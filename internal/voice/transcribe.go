package voice

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/ent0n29/mbtivoice/internal/baidu"
	"github.com/ent0n29/mbtivoice/internal/observability"
	"github.com/ent0n29/mbtivoice/internal/reliability"
)

// ASRErrorKind is the closed set of recognition failures.
type ASRErrorKind int

const (
	ASRNone ASRErrorKind = iota
	ASRCredentialUnavailable
	ASRTimeout
	ASRNetworkFailure
	ASRProviderRejected
	ASREmptyResult
)

func (k ASRErrorKind) String() string {
	switch k {
	case ASRNone:
		return "none"
	case ASRCredentialUnavailable:
		return "credential_unavailable"
	case ASRTimeout:
		return "timeout"
	case ASRNetworkFailure:
		return "network_failure"
	case ASRProviderRejected:
		return "provider_rejected"
	case ASREmptyResult:
		return "empty_result"
	default:
		return "unknown"
	}
}

// Transcript is either recognized text or a failure kind, never both.
type Transcript struct {
	Text string
	Err  ASRErrorKind
}

func (t Transcript) OK() bool { return t.Err == ASRNone }

// RecognitionBackend turns canonical WAV bytes into text.
type RecognitionBackend interface {
	Recognize(ctx context.Context, wav []byte, language string) (string, error)
}

// ClassifyASRError maps a backend error onto an ASRErrorKind.
func ClassifyASRError(err error) ASRErrorKind {
	if err == nil {
		return ASRNone
	}
	if errors.Is(err, baidu.ErrNoCredentials) || errors.Is(err, baidu.ErrTokenUnavailable) {
		return ASRCredentialUnavailable
	}
	if reliability.IsTimeout(err) {
		return ASRTimeout
	}
	if errors.Is(err, baidu.ErrEmptyResult) {
		return ASREmptyResult
	}
	if apiErr, ok := baidu.AsAPIError(err); ok {
		if apiErr.NoSpeech() {
			return ASREmptyResult
		}
		return ASRProviderRejected
	}
	return ASRNetworkFailure
}

// Transcriber wraps a RecognitionBackend so callers only ever see a Transcript.
type Transcriber struct {
	backend RecognitionBackend
	metrics *observability.Metrics
}

func NewTranscriber(backend RecognitionBackend, metrics *observability.Metrics) *Transcriber {
	return &Transcriber{backend: backend, metrics: metrics}
}

func (t *Transcriber) Transcribe(ctx context.Context, wav []byte, language string) Transcript {
	if t.backend == nil {
		return Transcript{Err: ASRCredentialUnavailable}
	}
	text, err := t.backend.Recognize(ctx, wav, language)
	if err == nil {
		if text == "" {
			return Transcript{Err: ASREmptyResult}
		}
		return Transcript{Text: text}
	}
	kind := ClassifyASRError(err)
	code := kind.String()
	if apiErr, ok := baidu.AsAPIError(err); ok {
		code = strconv.Itoa(apiErr.Code)
	}
	t.metrics.ObserveProviderError("baidu_asr", code)
	slog.Warn("speech recognition failed", "kind", kind.String(), "language", language, "error", err)
	return Transcript{Err: kind}
}
