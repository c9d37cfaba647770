package archive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPStore_Success(t *testing.T) {
	t.Parallel()

	var got uploadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type=%q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true,"message":"stored"}`))
	}))
	defer srv.Close()

	st, err := NewHTTPStore(srv.URL+"/upload.php", srv.Client())
	if err != nil {
		t.Fatalf("NewHTTPStore: %v", err)
	}

	obj := Object{Name: "scribble_1_X.png", ContentType: "image/png", Data: []byte("png-bytes"), Digest: "abc"}
	if err := st.Store(context.Background(), obj, "key-123"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if got.FileName != obj.Name || got.APIKey != "key-123" || got.Digest != "abc" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	raw, err := base64.StdEncoding.DecodeString(got.ImageBase64)
	if err != nil || string(raw) != "png-bytes" {
		t.Fatalf("imageBase64 did not round trip: %q", got.ImageBase64)
	}
}

func TestHTTPStore_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "success false", status: http.StatusOK, body: `{"success":false,"message":"bad key"}`},
		{name: "server error", status: http.StatusInternalServerError, body: `{"success":true}`},
		{name: "not json", status: http.StatusOK, body: `<html>ok</html>`},
		{name: "created is not ok", status: http.StatusCreated, body: `{"success":true}`},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			st, err := NewHTTPStore(srv.URL, srv.Client())
			if err != nil {
				t.Fatalf("NewHTTPStore: %v", err)
			}
			err = st.Store(context.Background(), Object{Name: "a.png", Data: []byte{1}}, "k")
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("expected ErrRejected, got %v", err)
			}
			var se *StoreError
			if !errors.As(err, &se) || se.Backend != BackendHTTP {
				t.Fatalf("expected http StoreError, got %#v", err)
			}
		})
	}
}

func TestHTTPStore_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	st, err := NewHTTPStore(url, nil)
	if err != nil {
		t.Fatalf("NewHTTPStore: %v", err)
	}
	err = st.Store(context.Background(), Object{Name: "a.png", Data: []byte{1}}, "k")
	if err == nil || errors.Is(err, ErrRejected) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestNewHTTPStore_InvalidURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://x", "not a url", "http://"} {
		if _, err := NewHTTPStore(raw, nil); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
