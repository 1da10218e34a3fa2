package hyperliquid

import (
	"encoding/json"
	"fmt"
)

// Protocol channels the venue uses for its own bookkeeping. Frames on these
// channels never reach the application callback.
const (
	ChannelPong                 = "pong"
	ChannelSubscriptionResponse = "subscriptionResponse"
)

const (
	methodSubscribe   = "subscribe"
	methodUnsubscribe = "unsubscribe"
	methodPing        = "ping"
)

// wsRequest is the client→server frame shape. All outbound traffic is JSON
// text frames of this form.
type wsRequest struct {
	Method       string        `json:"method"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// SubscribeFrame serializes {"method":"subscribe","subscription":{...}}.
func SubscribeFrame(sub Subscription) ([]byte, error) {
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("invalid subscription: %w", err)
	}
	return json.Marshal(wsRequest{Method: methodSubscribe, Subscription: &sub})
}

// UnsubscribeFrame serializes {"method":"unsubscribe","subscription":{...}}.
// The session manager never sends these on its own; the builder exists for
// administrative callers.
func UnsubscribeFrame(sub Subscription) ([]byte, error) {
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("invalid subscription: %w", err)
	}
	return json.Marshal(wsRequest{Method: methodUnsubscribe, Subscription: &sub})
}

// PingFrame returns the application-level keepalive frame. The venue answers
// with a {"channel":"pong"} frame, which the session discards.
func PingFrame() []byte {
	return []byte(`{"method":"ping"}`)
}
