package channels

import "context"

// Message is one outbound reply
type Message struct {
	// To is the recipient address (chat id, phone number, kafka key)
	To string `json:"to"`
	// From is the sender address when the sink needs one
	From string `json:"from,omitempty"`
	Text string `json:"text"`
}

// Notifier delivers replies over one channel
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
