package sender

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// variable pattern for message rendering: {{variable_name}}
var varPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// SMTPSender submits messages to an SMTP relay. The subject and body
// are configured message skeletons; {{variable}} placeholders are
// substituted from the dispatch variables before submission.
type SMTPSender struct {
	addr     string
	username string
	password string
	from     string
	subject  string
	body     string
}

func NewSMTPSender(addr, username, password, from, subject, body string) *SMTPSender {
	return &SMTPSender{
		addr:     addr,
		username: username,
		password: password,
		from:     from,
		subject:  subject,
		body:     body,
	}
}

// Send makes one SMTP submission. Relay rejections come back as failed
// results; only request construction problems surface as errors.
func (s *SMTPSender) Send(ctx context.Context, req *Request) (*Result, error) {
	if req.Recipient == "" {
		return &Result{Code: "NO_RECIPIENT", Message: "empty recipient", OK: false}, nil
	}

	msg, err := s.buildMessage(req)
	if err != nil {
		return nil, err
	}

	var auth sasl.Client
	if s.username != "" {
		auth = sasl.NewPlainClient("", s.username, s.password)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, auth, s.from, []string{req.Recipient}, strings.NewReader(msg))
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return &Result{Code: "SMTP_ERROR", Message: err.Error(), OK: false}, nil
		}
	}

	return &Result{Code: "OK", Message: "accepted by relay", OK: true}, nil
}

func (s *SMTPSender) buildMessage(req *Request) (string, error) {
	subject := renderVariables(s.subject, req.Variables)
	body := renderVariables(s.body, req.Variables)
	if subject == "" {
		return "", fmt.Errorf("smtp sender: empty subject for template link %s", req.TemplateLinkID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", req.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String(), nil
}

// renderVariables substitutes {{variable}} patterns; unknown variables
// are left as-is so a bad mapping is visible in the delivered message.
func renderVariables(template string, vars map[string]string) string {
	if template == "" {
		return template
	}
	return varPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-2])
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}
