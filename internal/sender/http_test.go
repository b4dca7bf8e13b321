package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPSenderSuccess(t *testing.T) {
	var gotAuth string
	var gotReq Request

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/messages" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"code": "QUEUED", "message": "accepted"})
	}))
	defer ts.Close()

	s := NewHTTPSender(ts.URL, "secret-key", 5*time.Second)
	result, err := s.Send(context.Background(), &Request{
		TemplateLinkID: "link-1",
		RecordID:       "rec-1",
		Recipient:      "a@example.com",
		Variables:      map[string]string{"name": "Acme"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !result.OK || result.Code != "QUEUED" {
		t.Errorf("result = %+v", result)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.Recipient != "a@example.com" || gotReq.Variables["name"] != "Acme" {
		t.Errorf("request payload = %+v", gotReq)
	}
}

func TestHTTPSenderProviderRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"code": "INVALID_RECIPIENT", "error": "bad address"})
	}))
	defer ts.Close()

	s := NewHTTPSender(ts.URL, "key", 5*time.Second)
	result, err := s.Send(context.Background(), &Request{Recipient: "nope"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.OK {
		t.Error("rejection reported as OK")
	}
	if result.Code != "INVALID_RECIPIENT" || result.Message != "bad address" {
		t.Errorf("result = %+v", result)
	}
}

func TestHTTPSenderNonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer ts.Close()

	s := NewHTTPSender(ts.URL, "key", 5*time.Second)
	result, err := s.Send(context.Background(), &Request{Recipient: "a@example.com"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if result.OK || result.Code != "HTTP_502" {
		t.Errorf("result = %+v", result)
	}
}

func TestHTTPSenderTransportError(t *testing.T) {
	s := NewHTTPSender("http://127.0.0.1:1", "key", time.Second)
	if _, err := s.Send(context.Background(), &Request{Recipient: "a@example.com"}); err == nil {
		t.Error("expected transport error")
	}
}
