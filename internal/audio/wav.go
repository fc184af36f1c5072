package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const (
	// TargetSampleRate is the rate the recognition backend expects.
	TargetSampleRate = 16000
	targetBitDepth   = 16

	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Info describes a decoded WAV container.
type Info struct {
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bit_depth"`
	Frames     int           `json:"frames"`
	Duration   time.Duration `json:"duration"`
}

// pcm holds interleaved 16-bit samples.
type pcm struct {
	rate     int
	channels int
	samples  []int16
}

func (p pcm) frames() int {
	if p.channels <= 0 {
		return 0
	}
	return len(p.samples) / p.channels
}

// EncodeMonoPCM16 wraps mono 16-bit samples in a WAV container.
func EncodeMonoPCM16(samples []int16, sampleRate int) ([]byte, error) {
	return encodePCM16(samples, sampleRate, 1)
}

func encodePCM16(samples []int16, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid wav format: rate=%d channels=%d", sampleRate, channels)
	}
	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, targetBitDepth, channels, wavFormatPCM)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: targetBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}

	out, err := io.ReadAll(ws.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading wav into memory: %w", err)
	}
	return out, nil
}

// Describe decodes the WAV header and sample count.
func Describe(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, formatErr("invalid wav container", ErrUnsupportedCodec)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, formatErr("decode wav samples", err)
	}
	channels := int(dec.NumChans)
	frames := 0
	if channels > 0 {
		frames = len(buf.Data) / channels
	}
	rate := int(dec.SampleRate)
	info := Info{
		SampleRate: rate,
		Channels:   channels,
		BitDepth:   int(dec.BitDepth),
		Frames:     frames,
	}
	if rate > 0 {
		info.Duration = time.Duration(frames) * time.Second / time.Duration(rate)
	}
	return info, nil
}

// isCanonical reports whether a WAV is already PCM mono 16 kHz 16-bit.
func isCanonical(dec *wav.Decoder) bool {
	return dec.WavAudioFormat == wavFormatPCM &&
		dec.NumChans == 1 &&
		dec.SampleRate == TargetSampleRate &&
		dec.BitDepth == targetBitDepth
}

func decodeWAV(data []byte) (pcm, bool, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return pcm{}, false, formatErr("invalid or empty wav container", ErrUnsupportedCodec)
	}
	if dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible {
		return pcm{}, false, formatErr(fmt.Sprintf("wav codec %d is not pcm", dec.WavAudioFormat), ErrUnsupportedCodec)
	}
	canonical := isCanonical(dec)

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm{}, false, formatErr("decode wav samples", err)
	}
	if len(buf.Data) == 0 {
		return pcm{}, false, formatErr("wav has no samples", ErrEmptyAudio)
	}

	depth := int(dec.BitDepth)
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = toInt16(v, depth)
	}
	return pcm{
		rate:     int(dec.SampleRate),
		channels: int(dec.NumChans),
		samples:  samples,
	}, canonical, nil
}

func toInt16(v, depth int) int16 {
	switch {
	case depth == 8:
		return int16((v - 128) << 8)
	case depth <= 16:
		return int16(v)
	default:
		return int16(v >> (depth - 16))
	}
}
