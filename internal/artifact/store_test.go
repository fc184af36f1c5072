package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMirror struct {
	mu      sync.Mutex
	keys    []string
	objects map[string][]byte
	err     error
}

func (m *recordingMirror) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *recordingMirror) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

var namePattern = regexp.MustCompile(`^tts_output_\d+_[0-9a-f]{32}\.mp3$`)

func TestSaveWritesUniqueNames(t *testing.T) {
	store, err := New(t.TempDir(), "static")
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		a, err := store.Save(context.Background(), KindOutput, ".MP3", []byte("audio"))
		require.NoError(t, err)
		assert.Regexp(t, namePattern, a.Name)
		assert.Equal(t, "/static/"+a.Name, a.URL)
		assert.False(t, seen[a.Name], "duplicate name %s", a.Name)
		seen[a.Name] = true

		data, err := os.ReadFile(a.Path)
		require.NoError(t, err)
		assert.Equal(t, "audio", string(data))
	}

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 20, "no partial files left behind")
}

func TestSaveRejectsEmpty(t *testing.T) {
	store, err := New(t.TempDir(), "static")
	require.NoError(t, err)
	_, err = store.Save(context.Background(), KindInput, "wav", nil)
	require.Error(t, err)
}

func TestSaveMirrorFailureIsNotFatal(t *testing.T) {
	mirror := &recordingMirror{err: errors.New("bucket offline")}
	store, err := New(t.TempDir(), "static", WithMirror(mirror))
	require.NoError(t, err)

	a, err := store.Save(context.Background(), KindInput, "wav", []byte("RIFF"))
	require.NoError(t, err)
	assert.Equal(t, []string{a.Name}, mirror.keys)
	assert.FileExists(t, a.Path)
}

func TestResolve(t *testing.T) {
	store, err := New(t.TempDir(), "static")
	require.NoError(t, err)
	a, err := store.Save(context.Background(), KindOutput, "mp3", []byte("x"))
	require.NoError(t, err)

	path, err := store.Resolve(context.Background(), a.Name)
	require.NoError(t, err)
	assert.Equal(t, a.Path, path)

	for _, name := range []string{"", "../etc/passwd", "a/b.mp3", `a\b.mp3`, ".hidden", ".."} {
		_, err := store.Resolve(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
	_, err = store.Resolve(context.Background(), "tts_output_1_missing.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveRestoresSweptFileFromMirror(t *testing.T) {
	mirror := &recordingMirror{}
	store, err := New(t.TempDir(), "static", WithMirror(mirror))
	require.NoError(t, err)
	a, err := store.Save(context.Background(), KindOutput, "mp3", []byte("kept remotely"))
	require.NoError(t, err)
	require.NoError(t, os.Remove(a.Path))

	path, err := store.Resolve(context.Background(), a.Name)
	require.NoError(t, err)
	assert.Equal(t, a.Path, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kept remotely", string(data))

	_, err = store.Resolve(context.Background(), "tts_output_1_unknown.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSweepRemovesExpired(t *testing.T) {
	var swept int
	store, err := New(t.TempDir(), "static", WithTTL(time.Hour), WithSweepHook(func(n int) { swept += n }))
	require.NoError(t, err)

	old, err := store.Save(context.Background(), KindOutput, "mp3", []byte("old"))
	require.NoError(t, err)
	fresh, err := store.Save(context.Background(), KindOutput, "mp3", []byte("fresh"))
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old.Path, past, past))

	n, err := store.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, swept)
	assert.NoFileExists(t, old.Path)
	assert.FileExists(t, fresh.Path)
}

func TestSweepDisabledWithoutTTL(t *testing.T) {
	store, err := New(t.TempDir(), "static")
	require.NoError(t, err)
	a, err := store.Save(context.Background(), KindOutput, "mp3", []byte("x"))
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(a.Path, past, past))

	n, err := store.Sweep()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, a.Path)
}

func TestNewRejectsEmptyDir(t *testing.T) {
	_, err := New("  ", "static")
	require.Error(t, err)

	dir := filepath.Join(t.TempDir(), "nested", "static")
	store, err := New(dir, "/static/")
	require.NoError(t, err)
	assert.DirExists(t, store.Dir())
}

func TestNATSMirrorRoundTrip(t *testing.T) {
	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := test.RunServer(&opts)
	defer srv.Shutdown()

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	js, err := nc.JetStream()
	require.NoError(t, err)

	mirror, err := NewNATSMirror(js, "AUDIO_ARTIFACTS")
	require.NoError(t, err)
	again, err := NewNATSMirror(js, "AUDIO_ARTIFACTS")
	require.NoError(t, err, "existing bucket should bind")

	store, err := New(t.TempDir(), "static", WithMirror(mirror))
	require.NoError(t, err)
	a, err := store.Save(context.Background(), KindOutput, "mp3", []byte("mirrored audio"))
	require.NoError(t, err)

	got, err := again.Download(context.Background(), a.Name)
	require.NoError(t, err)
	assert.Equal(t, "mirrored audio", string(got))

	_, err = mirror.Download(context.Background(), "missing")
	require.Error(t, err)

	require.NoError(t, os.Remove(a.Path))
	path, err := store.Resolve(context.Background(), a.Name)
	require.NoError(t, err)
	restored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mirrored audio", string(restored))
}
