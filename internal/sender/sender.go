package sender

import "context"

// Request identifies one message dispatch. The scheduler resolves the
// recipient and variables; how the message is rendered and transmitted
// is the provider's concern.
type Request struct {
	TemplateLinkID string            `json:"template_link_id"`
	RecordID       string            `json:"record_id"`
	Recipient      string            `json:"recipient"`
	Variables      map[string]string `json:"variables,omitempty"`
}

// Result is the provider's verdict on a single attempt.
type Result struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	OK      bool   `json:"ok"`
}

// Sender transmits one message. Implementations make exactly one
// attempt per call; retry and rate limiting live behind the provider,
// never in the scheduler.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Result, error)
}
