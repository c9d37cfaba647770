package realtime

import (
	"time"

	"scrblit/cmd/internal/ids"
)

// NewClientID returns a ULID used as the websocket client id.
func NewClientID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
