package voice

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/ent0n29/mbtivoice/internal/artifact"
	"github.com/ent0n29/mbtivoice/internal/baidu"
	"github.com/ent0n29/mbtivoice/internal/volcano"
)

type fakeBaiduTTS struct {
	mu    sync.Mutex
	calls []baidu.SynthesisParams
	err   error
}

func (f *fakeBaiduTTS) Synthesize(_ context.Context, p baidu.SynthesisParams) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("baidu-mp3:" + p.Text), nil
}

type fakeVolcanoTTS struct {
	mu    sync.Mutex
	calls []volcano.Request
	err   error
}

func (f *fakeVolcanoTTS) Synthesize(_ context.Context, req volcano.Request) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("volcano-mp3:" + req.Text), nil
}

func newTestArtifacts(t *testing.T) *artifact.Store {
	t.Helper()
	store, err := artifact.New(t.TempDir(), "static")
	if err != nil {
		t.Fatalf("artifact.New() error = %v", err)
	}
	return store
}

func TestSpeakerRoutesToVolcano(t *testing.T) {
	b, v := &fakeBaiduTTS{}, &fakeVolcanoTTS{}
	sp := NewSpeaker(b, v, newTestArtifacts(t), nil)

	speech := sp.Synthesize(context.Background(), "Hi there!", ResolveStyle(StyleStandard, "English", testVoiceDefaults))
	if !speech.OK() || speech.Provider != ProviderVolcano {
		t.Fatalf("Synthesize() = %+v, want volcano audio", speech)
	}
	if len(b.calls) != 0 || len(v.calls) != 1 {
		t.Fatalf("calls baidu=%d volcano=%d, want 0/1", len(b.calls), len(v.calls))
	}
	if v.calls[0].Language != "en" || v.calls[0].VoiceType != volcano.VoiceStefan {
		t.Fatalf("volcano request = %+v, want en with Stefan voice", v.calls[0])
	}
	if !strings.HasPrefix(speech.URL, "/static/tts_output_") {
		t.Fatalf("URL = %q, want served artifact", speech.URL)
	}
	data, err := os.ReadFile(speech.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(data) != "volcano-mp3:Hi there!" {
		t.Fatalf("artifact = %q", data)
	}
}

func TestSpeakerRoutesChineseToBaidu(t *testing.T) {
	b, v := &fakeBaiduTTS{}, &fakeVolcanoTTS{}
	sp := NewSpeaker(b, v, newTestArtifacts(t), nil)

	speech := sp.Synthesize(context.Background(), "你好", ResolveStyle(StyleVolcano, "Chinese", testVoiceDefaults))
	if !speech.OK() || speech.Provider != ProviderBaidu {
		t.Fatalf("Synthesize() = %+v, want baidu audio", speech)
	}
	if len(v.calls) != 0 || len(b.calls) != 1 {
		t.Fatalf("calls baidu=%d volcano=%d, want 1/0", len(b.calls), len(v.calls))
	}
	want := baidu.SynthesisParams{Text: "你好", Lang: "zh", Speed: 5, Pitch: 5, Volume: 15, Person: 0}
	if b.calls[0] != want {
		t.Fatalf("baidu params = %+v, want %+v", b.calls[0], want)
	}
}

func TestSpeakerEmptyTextSkipsProviders(t *testing.T) {
	b, v := &fakeBaiduTTS{}, &fakeVolcanoTTS{}
	sp := NewSpeaker(b, v, newTestArtifacts(t), nil)
	speech := sp.Synthesize(context.Background(), "   ", ResolveStyle(StyleStandard, "English", testVoiceDefaults))
	if speech.OK() || speech.Err != nil {
		t.Fatalf("Synthesize(blank) = %+v, want empty speech", speech)
	}
	if len(b.calls)+len(v.calls) != 0 {
		t.Fatalf("providers were called for blank text")
	}
}

func TestSpeakerFailureYieldsNoAudio(t *testing.T) {
	v := &fakeVolcanoTTS{err: &volcano.Error{Code: 3001, Message: "invalid param"}}
	sp := NewSpeaker(&fakeBaiduTTS{}, v, newTestArtifacts(t), nil)
	speech := sp.Synthesize(context.Background(), "Hi", ResolveStyle(StyleStandard, "English", testVoiceDefaults))
	if speech.OK() {
		t.Fatalf("Synthesize() = %+v, want no audio", speech)
	}
	var verr *volcano.Error
	if !errors.As(speech.Err, &verr) || verr.Code != 3001 {
		t.Fatalf("Err = %v, want volcano error 3001", speech.Err)
	}
	if got := synthesisErrorCode(speech.Err); got != "3001" {
		t.Fatalf("synthesisErrorCode() = %q, want 3001", got)
	}
}

func TestSpeakerSegmentsLongText(t *testing.T) {
	v := &fakeVolcanoTTS{}
	sp := NewSpeaker(nil, v, newTestArtifacts(t), nil)
	long := strings.Repeat("This sentence is part of a long reply. ", 60)
	speech := sp.Synthesize(context.Background(), long, ResolveStyle(StyleVolcano, "English", testVoiceDefaults))
	if !speech.OK() {
		t.Fatalf("Synthesize() = %+v, want audio", speech)
	}
	if len(v.calls) < 2 {
		t.Fatalf("volcano calls = %d, want text split into segments", len(v.calls))
	}
	for _, c := range v.calls {
		if len(c.Text) > maxSegmentBytes {
			t.Fatalf("segment of %d bytes exceeds limit", len(c.Text))
		}
	}
}
