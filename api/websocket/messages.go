package websocket

import "time"

// Outgoing frames are models.Event values serialized as-is, so the
// stream vocabulary matches the event log one to one. The only other
// frame a client sees is the subscription acknowledgement below.

// IncomingMessage is what clients may send: subscribe with a service
// name to filter the stream, or unsubscribe to see everything.
type IncomingMessage struct {
	Type    string `json:"type"`
	Service string `json:"service,omitempty"`
}

type subscriptionUpdate struct {
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	Service   string    `json:"service,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newSubscriptionUpdate(action, service string) subscriptionUpdate {
	return subscriptionUpdate{
		Type:      "subscription_update",
		Action:    action,
		Service:   service,
		Timestamp: time.Now().UTC(),
	}
}
