package audio

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sine(rate, channels int, seconds float64) []int16 {
	frames := int(float64(rate) * seconds)
	out := make([]int16, 0, frames*channels)
	for i := 0; i < frames; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		for c := 0; c < channels; c++ {
			out = append(out, v)
		}
	}
	return out
}

func assertCanonical(t *testing.T, wav []byte) Info {
	t.Helper()
	info, err := Describe(wav)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if info.SampleRate != TargetSampleRate {
		t.Fatalf("SampleRate = %d, want %d", info.SampleRate, TargetSampleRate)
	}
	if info.Channels != 1 {
		t.Fatalf("Channels = %d, want 1", info.Channels)
	}
	if info.BitDepth != 16 {
		t.Fatalf("BitDepth = %d, want 16", info.BitDepth)
	}
	if info.Frames == 0 {
		t.Fatalf("Frames = 0, want non-empty audio")
	}
	return info
}

func TestNormalizeCanonicalWAVPassesThrough(t *testing.T) {
	src, err := EncodeMonoPCM16(sine(16000, 1, 0.25), 16000)
	if err != nil {
		t.Fatalf("EncodeMonoPCM16() error = %v", err)
	}
	out, err := Normalize(BytesInput{Data: src})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Fatalf("canonical wav was re-encoded")
	}
}

func TestNormalizeStereoSampledInput(t *testing.T) {
	out, err := Normalize(SampledInput{SampleRate: 44100, Channels: 2, Samples: sine(44100, 2, 0.5)})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	info := assertCanonical(t, out)
	if info.Frames != 8000 {
		t.Fatalf("Frames = %d, want half a second at 16 kHz", info.Frames)
	}
}

func TestNormalizeStereoWAVFile(t *testing.T) {
	src, err := encodePCM16(sine(48000, 2, 0.25), 48000, 2)
	if err != nil {
		t.Fatalf("encodePCM16() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "input.wav")
	if err := os.WriteFile(path, src, 0o600); err != nil {
		t.Fatalf("write input: %v", err)
	}

	out, err := Normalize(PathInput{Path: path})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	assertCanonical(t, out)
}

func TestNormalizeMonoOtherRate(t *testing.T) {
	out, err := Normalize(SampledInput{SampleRate: 8000, Channels: 1, Samples: sine(8000, 1, 0.5)})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if info := assertCanonical(t, out); info.Frames != 8000 {
		t.Fatalf("Frames = %d, want 8000", info.Frames)
	}
}

func TestNormalizeKeepsFullDuration(t *testing.T) {
	cases := []struct {
		rate, frames int
	}{
		{44100, 132300},
		{44100, 4410},
		{44100, 441},
		{48000, 480},
		{22050, 22050},
	}
	for _, tc := range cases {
		out, err := Normalize(SampledInput{SampleRate: tc.rate, Channels: 1, Samples: make([]int16, tc.frames)})
		if err != nil {
			t.Fatalf("Normalize(%d frames at %d Hz) error = %v", tc.frames, tc.rate, err)
		}
		info := assertCanonical(t, out)
		want := int(math.Round(float64(tc.frames) * TargetSampleRate / float64(tc.rate)))
		if info.Frames != want {
			t.Fatalf("Frames for %d at %d Hz = %d, want %d", tc.frames, tc.rate, info.Frames, want)
		}
	}
}

func TestNormalizeRejectsOutOfRangeFormats(t *testing.T) {
	cases := []SampledInput{
		{SampleRate: 63, Channels: 1, Samples: make([]int16, 2000)},
		{SampleRate: MinSampleRate - 1, Channels: 1, Samples: make([]int16, 2000)},
		{SampleRate: MaxSampleRate + 1, Channels: 1, Samples: make([]int16, 2000)},
		{SampleRate: 16000, Channels: MaxChannels + 1, Samples: make([]int16, 2000)},
	}
	for _, in := range cases {
		out, err := Normalize(in)
		if !errors.Is(err, ErrUnsupportedCodec) {
			t.Fatalf("Normalize(rate=%d channels=%d) = %d bytes, %v; want ErrUnsupportedCodec", in.SampleRate, in.Channels, len(out), err)
		}
	}

	wav, err := encodePCM16(make([]int16, 200), 100, 1)
	if err != nil {
		t.Fatalf("encodePCM16() error = %v", err)
	}
	if _, err := Normalize(BytesInput{Data: wav}); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("Normalize(100 Hz wav) error = %v, want ErrUnsupportedCodec", err)
	}
}

func TestNormalizeFailures(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		in   Input
		want error
	}{
		{"nil", nil, ErrEmptyAudio},
		{"empty bytes", BytesInput{}, ErrEmptyAudio},
		{"not audio", BytesInput{Data: []byte("definitely not a recording")}, ErrUnsupportedCodec},
		{"truncated riff", BytesInput{Data: []byte("RIFF\x00\x00\x00\x00WAVE")}, ErrUnsupportedCodec},
		{"no samples", SampledInput{SampleRate: 16000, Channels: 1}, ErrEmptyAudio},
		{"bad rate", SampledInput{SampleRate: 0, Channels: 1, Samples: []int16{1, 2}}, ErrUnsupportedCodec},
		{"missing file", PathInput{Path: filepath.Join(dir, "missing.wav")}, ErrUnreadable},
		{"directory", PathInput{Path: dir}, ErrUnreadable},
		{"empty path", PathInput{}, ErrUnreadable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Normalize(tc.in)
			if err == nil {
				t.Fatalf("Normalize() = %d bytes, want error", len(out))
			}
			if !IsFormatError(err) {
				t.Fatalf("Normalize() error = %T %v, want *FormatError", err, err)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Normalize() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSniff(t *testing.T) {
	cases := map[string]string{
		"RIFF\x24\x00\x00\x00WAVEfmt ": "wav",
		"ID3\x04\x00":                  "mp3",
		"\xff\xfb\x90\x00":             "mp3",
		"OggS":                         "",
	}
	for in, want := range cases {
		if got := Sniff([]byte(in)); got != want {
			t.Fatalf("Sniff(%q) = %q, want %q", in, got, want)
		}
	}
}
