package amaterasu

import "time"

// APIVersion is the Discord REST and gateway protocol version spoken
// by this library.
const APIVersion = "10"

const (
	apiBase        = "https://discord.com/api/v" + APIVersion
	defaultGateway = "wss://gateway.discord.gg"

	userAgent = "DiscordBot (github.com/yonatandev/amaterasu, 1.0)"
)

// Gateway opcodes. Only the ones the session actually acts on are
// handled; everything else is read and dropped.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Close codes sent on the gateway. 4000 is the catch-all protocol
// error Discord documents for client-side protocol violations.
const (
	closeNormal        = 1000
	closeProtocolError = 4000
)

// Rate-limit response headers. Discord documents the bucket identifier
// and the limit as two distinct headers; older clients conflated them.
const (
	headerBucket    = "X-RateLimit-Bucket"
	headerLimit     = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"

	headerAuditReason = "X-Audit-Log-Reason"
)

const (
	// One outbound gateway frame per sendInterval paces a single
	// session at 120 frames a minute, the documented gateway command
	// budget.
	sendInterval = 500 * time.Millisecond

	// identifyInterval spaces out new connections so reconnect loops
	// can't hammer the gateway.
	identifyInterval = 5 * time.Second

	// gatewayReadBuffer is the initial receive buffer size; larger
	// frames are reassembled by the transport.
	gatewayReadBuffer = 4096

	// gatewayURLTTL is used when /gateway replies without a usable
	// cache hint.
	gatewayURLTTL = time.Hour
)

// Documented server-side field limits, enforced before any I/O.
const (
	maxContentLength = 2000
	maxReasonLength  = 512
)
