package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

var (
	ErrEmptyAudio       = errors.New("audio is empty")
	ErrUnsupportedCodec = errors.New("unsupported audio codec")
	ErrUnreadable       = errors.New("audio is unreadable")
)

// Accepted source formats. Anything outside is rejected before any buffer is
// sized from it.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxChannels   = 8
)

// FormatError is returned for any input the normalizer cannot turn into recognizer audio.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return "audio format: " + e.Reason
	}
	return fmt.Sprintf("audio format: %s: %v", e.Reason, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err came from the normalizer.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

func formatErr(reason string, err error) error {
	return &FormatError{Reason: reason, Err: err}
}

// Input is one of PathInput, SampledInput or BytesInput.
type Input interface {
	isInput()
}

// PathInput names an audio file on disk.
type PathInput struct {
	Path string
}

// SampledInput is raw interleaved PCM16 captured by the caller.
type SampledInput struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// BytesInput is an encoded container (WAV or MP3) held in memory.
type BytesInput struct {
	Data []byte
}

func (PathInput) isInput()    {}
func (SampledInput) isInput() {}
func (BytesInput) isInput()   {}

// Normalize converts in to a mono 16 kHz 16-bit PCM WAV.
func Normalize(in Input) ([]byte, error) {
	switch v := in.(type) {
	case PathInput:
		data, err := readAudioFile(v.Path)
		if err != nil {
			return nil, err
		}
		return normalizeEncoded(data)
	case BytesInput:
		return normalizeEncoded(v.Data)
	case SampledInput:
		channels := v.Channels
		if channels == 0 {
			channels = 1
		}
		if err := checkFormat(v.SampleRate, channels); err != nil {
			return nil, err
		}
		if len(v.Samples) == 0 {
			return nil, formatErr("sampled input has no samples", ErrEmptyAudio)
		}
		return finish(pcm{rate: v.SampleRate, channels: channels, samples: v.Samples})
	case nil:
		return nil, formatErr("no audio input", ErrEmptyAudio)
	default:
		return nil, formatErr(fmt.Sprintf("unknown input %T", in), ErrUnsupportedCodec)
	}
}

// Sniff names the container of data: "wav", "mp3" or "".
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	default:
		return ""
	}
}

func readAudioFile(path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, formatErr("empty audio path", ErrUnreadable)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, formatErr("stat audio file", errors.Join(ErrUnreadable, err))
	}
	if !st.Mode().IsRegular() {
		return nil, formatErr(path+" is not a regular file", ErrUnreadable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, formatErr("read audio file", errors.Join(ErrUnreadable, err))
	}
	return data, nil
}

func normalizeEncoded(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, formatErr("zero-length audio", ErrEmptyAudio)
	}
	switch Sniff(data) {
	case "wav":
		p, canonical, err := decodeWAV(data)
		if err != nil {
			return nil, err
		}
		if canonical {
			return data, nil
		}
		return finish(p)
	case "mp3":
		p, err := decodeMP3(data)
		if err != nil {
			return nil, err
		}
		return finish(p)
	default:
		return nil, formatErr("container not recognized", ErrUnsupportedCodec)
	}
}

func decodeMP3(data []byte) (pcm, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return pcm{}, formatErr("decode mp3", errors.Join(ErrUnsupportedCodec, err))
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return pcm{}, formatErr("read mp3 frames", err)
	}
	// go-mp3 always yields stereo 16-bit little endian.
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}
	if len(samples) < 2 {
		return pcm{}, formatErr("mp3 has no samples", ErrEmptyAudio)
	}
	return pcm{rate: dec.SampleRate(), channels: 2, samples: samples}, nil
}

// finish downmixes, resamples and encodes p as the canonical WAV.
func finish(p pcm) ([]byte, error) {
	if err := checkFormat(p.rate, p.channels); err != nil {
		return nil, err
	}
	mono := downmix(p.samples, p.channels)
	if len(mono) == 0 {
		return nil, formatErr("audio has no complete frames", ErrEmptyAudio)
	}
	out, err := resample(mono, p.rate, TargetSampleRate)
	if err != nil {
		return nil, formatErr("resample", err)
	}
	if len(out) == 0 {
		return nil, formatErr("normalized audio is empty", ErrEmptyAudio)
	}
	wav, err := EncodeMonoPCM16(out, TargetSampleRate)
	if err != nil {
		return nil, formatErr("encode wav", err)
	}
	return wav, nil
}

func checkFormat(rate, channels int) error {
	if rate < MinSampleRate || rate > MaxSampleRate || channels <= 0 || channels > MaxChannels {
		return formatErr(fmt.Sprintf("unsupported format rate=%d channels=%d", rate, channels), ErrUnsupportedCodec)
	}
	return nil
}

func downmix(samples []int16, channels int) []int16 {
	if channels == 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
