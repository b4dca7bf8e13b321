package sender

import (
	"context"
	"log/slog"
	"sync"
)

// SandboxSender accepts every message without transmitting anything.
// Used in development and as the default provider so a fresh install
// never emails real people. Sent requests are retained in memory for
// inspection.
type SandboxSender struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []Request
}

func NewSandboxSender(logger *slog.Logger) *SandboxSender {
	return &SandboxSender{logger: logger.With("component", "sandbox-sender")}
}

func (s *SandboxSender) Send(_ context.Context, req *Request) (*Result, error) {
	s.mu.Lock()
	s.sent = append(s.sent, *req)
	s.mu.Unlock()

	s.logger.Info("sandbox send",
		"template_link_id", req.TemplateLinkID,
		"record_id", req.RecordID,
		"recipient", req.Recipient,
	)
	return &Result{Code: "SANDBOX", Message: "accepted (sandbox)", OK: true}, nil
}

// Sent returns a copy of everything accepted so far.
func (s *SandboxSender) Sent() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.sent))
	copy(out, s.sent)
	return out
}
