package sender

import (
	"fmt"
	"log/slog"

	"github.com/pjk0007/salesflow-sub000/internal/config"
)

// FromConfig builds the configured sender.
func FromConfig(cfg *config.SenderConfig, logger *slog.Logger) (Sender, error) {
	switch cfg.Provider {
	case "http":
		return NewHTTPSender(cfg.HTTP.BaseURL, cfg.HTTP.APIKey, cfg.HTTP.Timeout.Std()), nil
	case "smtp":
		return NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.Username, cfg.SMTP.Password,
			cfg.SMTP.From, cfg.SMTP.Subject, cfg.SMTP.Body), nil
	case "sandbox":
		return NewSandboxSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown sender provider %q", cfg.Provider)
	}
}
