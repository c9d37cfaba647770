package archive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxUploadReplyBytes = 64 << 10

// HTTPStore posts objects to an upload endpoint as JSON:
//
//	{"fileName": ..., "imageBase64": ..., "apiKey": ..., "digest": ...}
//
// The upload succeeds only on HTTP 200 with {"success": true}.
type HTTPStore struct {
	url    string
	client *http.Client
}

type uploadRequest struct {
	FileName    string `json:"fileName"`
	ImageBase64 string `json:"imageBase64"`
	APIKey      string `json:"apiKey"`
	Digest      string `json:"digest,omitempty"`
}

type uploadReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewHTTPStore validates rawURL. A nil client gets a 30s timeout client.
func NewHTTPStore(rawURL string, client *http.Client) (*HTTPStore, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("archive: invalid upload url %q", rawURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{url: u.String(), client: client}, nil
}

func (s *HTTPStore) Store(ctx context.Context, obj Object, credential string) error {
	if err := obj.validate(); err != nil {
		return err
	}

	body, err := json.Marshal(uploadRequest{
		FileName:    obj.Name,
		ImageBase64: base64.StdEncoding.EncodeToString(obj.Data),
		APIKey:      credential,
		Digest:      obj.Digest,
	})
	if err != nil {
		return storeErr(BackendHTTP, obj.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return storeErr(BackendHTTP, obj.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return storeErr(BackendHTTP, obj.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadReplyBytes))
	if err != nil {
		return storeErr(BackendHTTP, obj.Name, err)
	}

	var reply uploadReply
	_ = json.Unmarshal(raw, &reply)

	if resp.StatusCode != http.StatusOK || !reply.Success {
		msg := strings.TrimSpace(reply.Message)
		if msg == "" {
			msg = "unknown response"
		}
		return storeErr(BackendHTTP, obj.Name, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg))
	}
	return nil
}
