package security

// RateLimiter guards the outbound frame path. The venue rate-limits client
// messages; exceeding the budget is reported to the caller instead of sent.
type RateLimiter interface {
	Allow() bool
	Reset()
}

// FrameValidator checks inbound frames before they reach the application
// callback. Invalid frames are dropped, never delivered.
type FrameValidator interface {
	ValidateFrame(frame []byte) error
}
