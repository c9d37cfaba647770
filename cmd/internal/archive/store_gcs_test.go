package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

func TestNewGCSStore(t *testing.T) {
	t.Parallel()

	if _, err := NewGCSStore(" ", "x"); err == nil {
		t.Fatalf("expected error for empty bucket")
	}

	st, err := NewGCSStore("scribbles", "/daily/")
	if err != nil {
		t.Fatalf("NewGCSStore: %v", err)
	}
	if got := st.ObjectPath("a.png"); got != "daily/a.png" {
		t.Fatalf("path=%q", got)
	}

	bare, _ := NewGCSStore("scribbles", "")
	if got := bare.ObjectPath("a.png"); got != "a.png" {
		t.Fatalf("path=%q", got)
	}
}

func TestGCSStore_MissingKeyFile(t *testing.T) {
	t.Parallel()

	st, _ := NewGCSStore("scribbles", "")
	err := st.Store(context.Background(), Object{Name: "a.png", Data: []byte{1}}, filepath.Join(t.TempDir(), "missing.json"))
	var se *StoreError
	if !errors.As(err, &se) || se.Backend != BackendGCS {
		t.Fatalf("expected gcs StoreError, got %v", err)
	}
}

func TestGCSStore_ClientCachedPerCredential(t *testing.T) {
	t.Parallel()

	st, _ := NewGCSStore("scribbles", "")
	opened := 0
	st.newClient = func(ctx context.Context, _ string) (*storage.Client, error) {
		opened++
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := st.client(ctx, "key-a.json"); err != nil {
			t.Fatalf("client: %v", err)
		}
	}
	if _, err := st.client(ctx, "key-b.json"); err != nil {
		t.Fatalf("client: %v", err)
	}
	if opened != 2 {
		t.Fatalf("opened=%d want 2", opened)
	}
}
