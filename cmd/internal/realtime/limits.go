package realtime

import "time"

const (
	// Max bytes per websocket frame read. A DRAW message is well under 1 KiB.
	maxFrameBytes = 16 << 10
)

const (
	// Heartbeat defaults (overridable by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window). A pointer-move stream at 60 Hz is
	// about 600 events per 10s.
	rateLimitEvents = 1500
	rateLimitWindow = 10 * time.Second
)
