package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSMirror copies artifacts into a JetStream object store bucket.
type NATSMirror struct {
	conn   *nats.Conn
	bucket string
	store  nats.ObjectStore
}

// DialNATSMirror connects to url and binds the bucket.
func DialNATSMirror(url, bucket string) (*NATSMirror, error) {
	conn, err := nats.Connect(url, nats.Name("mbtivoice-artifacts"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	m, err := NewNATSMirror(js, bucket)
	if err != nil {
		conn.Close()
		return nil, err
	}
	m.conn = conn
	return m, nil
}

// NewNATSMirror creates the bucket or binds to it when it already exists.
func NewNATSMirror(js nats.JetStreamContext, bucket string) (*NATSMirror, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Audio artifacts for the %s bucket.", bucket),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucket, err)
		}
	}
	return &NATSMirror{bucket: bucket, store: store}, nil
}

func (m *NATSMirror) Upload(_ context.Context, key string, data []byte) error {
	if _, err := m.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, m.bucket, err)
	}
	return nil
}

func (m *NATSMirror) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := m.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, m.bucket, err)
	}
	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}
	return data, nil
}

func (m *NATSMirror) Close() error {
	if m.conn != nil {
		m.conn.Close()
	}
	return nil
}
