package contact

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OliverSchlueter/contact-mailer/internal/mailer"
)

type fakeSender struct {
	err  error
	sent []mailer.ContactMessage
}

func (s *fakeSender) Send(_ context.Context, msg mailer.ContactMessage) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func newTestMux(sender Sender) *http.ServeMux {
	mux := http.NewServeMux()
	New(sender).Register("/api", mux)
	return mux
}

func post(mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestContactSuccess(t *testing.T) {
	sender := &fakeSender{}
	mux := newTestMux(sender)

	rec := post(mux, `{"name":" Jane Doe ","email":"jane@example.com","message":"Hello there"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"ok":true}` {
		t.Errorf("Expected body {\"ok\":true}, got %s", rec.Body.String())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("Expected 1 message to be sent, got %d", len(sender.sent))
	}
	if sender.sent[0].Name != "Jane Doe" {
		t.Errorf("Expected trimmed name 'Jane Doe', got %q", sender.sent[0].Name)
	}
}

func TestContactMethodNotAllowed(t *testing.T) {
	sender := &fakeSender{}
	mux := newTestMux(sender)

	req := httptest.NewRequest(http.MethodGet, "/api/contact", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Error("Expected GET to be rejected")
	}
	if len(sender.sent) != 0 {
		t.Errorf("Expected nothing to be sent, got %d", len(sender.sent))
	}
}

func TestContactInvalidBody(t *testing.T) {
	sender := &fakeSender{}
	rec := post(newTestMux(sender), `{"name":`)

	if rec.Code == http.StatusOK {
		t.Error("Expected malformed JSON to be rejected")
	}
	if len(sender.sent) != 0 {
		t.Errorf("Expected nothing to be sent, got %d", len(sender.sent))
	}
}

func TestContactValidation(t *testing.T) {
	tests := map[string]string{
		"empty name":       `{"name":"  ","email":"jane@example.com","message":"Hi"}`,
		"long name":        fmt.Sprintf(`{"name":%q,"email":"jane@example.com","message":"Hi"}`, strings.Repeat("a", 101)),
		"missing at":       `{"name":"Jane","email":"jane.example.com","message":"Hi"}`,
		"short email":      `{"name":"Jane","email":"a@","message":"Hi"}`,
		"display name":     `{"name":"Jane","email":"Jane <jane@example.com>","message":"Hi"}`,
		"header injection": `{"name":"Jane","email":"jane@example.com\r\nBcc: x@example.com","message":"Hi"}`,
		"empty message":    `{"name":"Jane","email":"jane@example.com","message":"   "}`,
		"long message":     fmt.Sprintf(`{"name":"Jane","email":"jane@example.com","message":%q}`, strings.Repeat("a", 5001)),
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			sender := &fakeSender{}
			rec := post(newTestMux(sender), body)

			if rec.Code == http.StatusOK {
				t.Errorf("Expected request to be rejected, got 200")
			}
			if len(sender.sent) != 0 {
				t.Errorf("Expected nothing to be sent, got %d", len(sender.sent))
			}
		})
	}
}

func TestContactValidationLimits(t *testing.T) {
	body := fmt.Sprintf(`{"name":%q,"email":"jane@example.com","message":%q}`,
		strings.Repeat("a", 100), strings.Repeat("b", 5000))

	rec := post(newTestMux(&fakeSender{}), body)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected maximum lengths to be accepted, got %d", rec.Code)
	}
}

func TestContactSenderErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "configuration",
			err:      fmt.Errorf("%w: missing sender password", mailer.ErrConfiguration),
			expected: "not configured",
		},
		{
			name:     "protocol",
			err:      &mailer.ProtocolError{Step: "AUTH LOGIN password", Expected: "235", Reply: "535 5.7.8 Username and Password not accepted"},
			expected: "Could not send message",
		},
		{
			name:     "timeout",
			err:      mailer.ErrTimeout,
			expected: "Could not send message",
		},
		{
			name:     "connection",
			err:      &mailer.ConnectionError{Op: "dial", Addr: "smtp.gmail.com:465", Err: errors.New("connection refused")},
			expected: "Could not send message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(newTestMux(&fakeSender{err: tt.err}), `{"name":"Jane","email":"jane@example.com","message":"Hi"}`)

			if rec.Code == http.StatusOK {
				t.Fatalf("Expected failure status, got 200")
			}

			body := rec.Body.String()
			if !strings.Contains(body, tt.expected) {
				t.Errorf("Expected body to contain %q, got %s", tt.expected, body)
			}
			for _, leak := range []string{"535", "AUTH LOGIN", "smtp.gmail.com", "connection refused", "password"} {
				if strings.Contains(body, leak) {
					t.Errorf("Expected response not to leak %q, got %s", leak, body)
				}
			}
		})
	}
}
