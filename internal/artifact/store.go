// Package artifact stores transient audio files under one serving directory.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kinds of artifact.
const (
	KindInput  = "audio_input"
	KindOutput = "tts_output"
)

var (
	ErrInvalidName = errors.New("invalid artifact name")
	ErrNotFound    = errors.New("artifact not found")
)

// Artifact is one stored file.
type Artifact struct {
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Mirror receives a copy of every saved artifact and can hand it back once
// the local file is gone.
type Mirror interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// Store writes artifacts to dir and serves them under urlPrefix.
type Store struct {
	dir       string
	urlPrefix string
	ttl       time.Duration
	mirror    Mirror
	onSweep   func(removed int)
	now       func() time.Time
}

type Option func(*Store)

// WithTTL enables age-based sweeping.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithMirror copies each artifact to m.
func WithMirror(m Mirror) Option {
	return func(s *Store) { s.mirror = m }
}

// WithSweepHook is called after each sweep that removed files.
func WithSweepHook(fn func(removed int)) Option {
	return func(s *Store) { s.onSweep = fn }
}

// New creates dir if needed.
func New(dir, urlPrefix string, opts ...Option) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("artifact dir must not be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	s := &Store{
		dir:       abs,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/") + "/",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir is the absolute serving directory.
func (s *Store) Dir() string { return s.dir }

// Save writes data as <kind>_<unix>_<token>.<ext>.
func (s *Store) Save(ctx context.Context, kind, ext string, data []byte) (Artifact, error) {
	if len(data) == 0 {
		return Artifact{}, errors.New("artifact is empty")
	}
	now := s.now().UTC()
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "bin"
	}
	name := kind + "_" + strconv.FormatInt(now.Unix(), 10) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "." + ext
	path := filepath.Join(s.dir, name)

	if err := s.writeFile(path, data); err != nil {
		return Artifact{}, err
	}

	if s.mirror != nil {
		if err := s.mirror.Upload(ctx, name, data); err != nil {
			slog.Warn("artifact mirror upload failed", "name", name, "error", err)
		}
	}

	return Artifact{
		Name:      name,
		Path:      path,
		URL:       s.urlPrefix + name,
		Size:      int64(len(data)),
		CreatedAt: now,
	}, nil
}

// Resolve maps a served name back to its file. Names with path separators are
// rejected. A file missing locally is restored from the mirror when one is set.
func (s *Store) Resolve(ctx context.Context, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	path := filepath.Join(s.dir, name)
	st, err := os.Stat(path)
	if err == nil && st.Mode().IsRegular() {
		return path, nil
	}
	if s.mirror == nil || !errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	data, err := s.mirror.Download(ctx, name)
	if err != nil || len(data) == 0 {
		return "", ErrNotFound
	}
	if err := s.writeFile(path, data); err != nil {
		return "", err
	}
	slog.Info("artifact restored from mirror", "name", name, "size", len(data))
	return path, nil
}

// writeFile publishes data at path through a temp file and rename.
func (s *Store) writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("publish artifact: %w", err)
	}
	return nil
}

// Sweep removes artifacts older than the TTL and returns how many were removed.
func (s *Store) Sweep() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("list artifacts: %w", err)
	}
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 && s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed, errors.Join(errs...)
}

// StartSweeper runs Sweep every interval until ctx is done.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if s.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Sweep()
				if err != nil {
					slog.Warn("artifact sweep failed", "error", err)
				}
				if n > 0 {
					slog.Info("artifacts swept", "removed", n, "ttl", s.ttl)
				}
			}
		}
	}()
}
