package realtime

import "time"

const (
	maxFrameBytes   = 64 << 10 // 64 KiB per inbound frame
	maxMessageChars = 4000     // runes, after sanitizing
)

// Gateway defaults; HUDDLE_WS_* variables override them.
const (
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)
