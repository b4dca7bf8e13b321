package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSender delivers messages through a provider gateway's JSON API
// (email or Alimtalk relay). The gateway resolves the message template
// from the template link ID.
type HTTPSender struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPSender(baseURL, apiKey string, timeout time.Duration) *HTTPSender {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSender{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type providerResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Send posts the dispatch request to the provider. A non-2xx response
// is a failed result, not an error: the attempt happened and consumed
// its slot.
func (s *HTTPSender) Send(ctx context.Context, req *Request) (*Result, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/api/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		pr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		pr.Message = string(body)
	}

	if resp.StatusCode >= 400 {
		msg := pr.Error
		if msg == "" {
			msg = pr.Message
		}
		code := pr.Code
		if code == "" {
			code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
		}
		return &Result{Code: code, Message: msg, OK: false}, nil
	}

	code := pr.Code
	if code == "" {
		code = "OK"
	}
	return &Result{Code: code, Message: pr.Message, OK: true}, nil
}
