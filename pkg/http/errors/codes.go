package errors

// Error codes surfaced to the rendering layer.
const (
	// Validation errors (rejected locally, no network call)
	ErrCodeValidationFailed = "validation_failed"

	// State machine errors
	ErrCodeInvalidTransition = "invalid_transition"
	ErrCodeNotConnected      = "not_connected"
	ErrCodeSessionClosed     = "session_closed"

	// Authority errors
	ErrCodeRejected     = "rejected_by_authority"
	ErrCodeCancelFailed = "cancel_ready_failed"

	// Queue errors
	ErrCodeQueueLost   = "queue_lost"
	ErrCodeStaleTicket = "stale_ticket"

	// Network errors
	ErrCodeTransient = "transient_network"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
)
