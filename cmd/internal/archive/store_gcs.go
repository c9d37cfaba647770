package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore writes objects to a Google Cloud Storage bucket.
//
// The credential is the path of a service-account key file. A client is opened lazily
// for each distinct credential and reused afterwards.
type GCSStore struct {
	bucket string
	prefix string

	mu      sync.Mutex
	clients map[string]*storage.Client

	// newClient is replaced in tests.
	newClient func(ctx context.Context, keyPath string) (*storage.Client, error)
}

// NewGCSStore returns a store writing to gs://bucket/prefix/<name>.
func NewGCSStore(bucket, prefix string) (*GCSStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("archive: empty gcs bucket")
	}
	return &GCSStore{
		bucket:    bucket,
		prefix:    strings.Trim(strings.TrimSpace(prefix), "/"),
		clients:   make(map[string]*storage.Client),
		newClient: openGCSClient,
	}, nil
}

func openGCSClient(ctx context.Context, keyPath string) (*storage.Client, error) {
	if _, err := os.Stat(keyPath); err != nil {
		return nil, fmt.Errorf("service account key not readable at %s: %w", keyPath, err)
	}
	c, err := storage.NewClient(ctx, option.WithCredentialsFile(keyPath))
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return c, nil
}

func (s *GCSStore) client(ctx context.Context, keyPath string) (*storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[keyPath]; ok {
		return c, nil
	}
	c, err := s.newClient(ctx, keyPath)
	if err != nil {
		return nil, err
	}
	s.clients[keyPath] = c
	return c, nil
}

// ObjectPath returns the bucket-relative path for name.
func (s *GCSStore) ObjectPath(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *GCSStore) Store(ctx context.Context, obj Object, credential string) error {
	if err := obj.validate(); err != nil {
		return err
	}
	c, err := s.client(ctx, credential)
	if err != nil {
		return storeErr(BackendGCS, obj.Name, err)
	}

	w := c.Bucket(s.bucket).Object(s.ObjectPath(obj.Name)).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if obj.Digest != "" {
		w.Metadata = map[string]string{"blake2b-256": obj.Digest}
	}

	if _, err := w.Write(obj.Data); err != nil {
		_ = w.Close()
		return storeErr(BackendGCS, obj.Name, fmt.Errorf("write: %w", err))
	}
	if err := w.Close(); err != nil {
		return storeErr(BackendGCS, obj.Name, fmt.Errorf("close writer: %w", err))
	}
	return nil
}

// Close releases every cached client.
func (s *GCSStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for k, c := range s.clients {
		errs = append(errs, c.Close())
		delete(s.clients, k)
	}
	return errors.Join(errs...)
}
