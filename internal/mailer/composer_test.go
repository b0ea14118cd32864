package mailer

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSanitizeHeader(t *testing.T) {
	tests := []struct {
		value    string
		expected string
	}{
		{"Jane Doe", "Jane Doe"},
		{"Jane\r\nBcc: victim@example.com", "JaneBcc: victim@example.com"},
		{"\r\n", "fallback"},
		{"", "fallback"},
		{"  \n ", "fallback"},
		{"line\rbreak\nhere", "linebreakhere"},
	}

	for _, tt := range tests {
		got := SanitizeHeader(tt.value, "fallback")
		if got != tt.expected {
			t.Errorf("SanitizeHeader(%q): expected %q, got %q", tt.value, tt.expected, got)
		}
		if strings.ContainsAny(got, "\r\n") {
			t.Errorf("SanitizeHeader(%q) still contains line breaks: %q", tt.value, got)
		}
	}
}

func TestSanitizeAddress(t *testing.T) {
	got := SanitizeAddress(" jane@exa mple.com\r\n\t")
	if got != "jane@example.com" {
		t.Errorf("Expected jane@example.com, got %q", got)
	}
}

func TestNormalizeBody(t *testing.T) {
	got := NormalizeBody("a\r\nb\rc\nd")
	expected := "a\r\nb\r\nc\r\nd"
	if got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}

	if strings.Contains(strings.ReplaceAll(got, "\r\n", ""), "\n") {
		t.Errorf("Expected no bare LF in %q", got)
	}
}

func TestDotStuff(t *testing.T) {
	tests := []struct {
		body     string
		expected string
	}{
		{"Hello.\r\n.Test", "Hello.\r\n..Test"},
		{".first line", "..first line"},
		{"...\r\nplain\r\n.", "....\r\nplain\r\n.."},
		{"no dots here", "no dots here"},
		{"mid.dle\r\n a leading space .", "mid.dle\r\n a leading space ."},
	}

	for _, tt := range tests {
		got := DotStuff(tt.body)
		if got != tt.expected {
			t.Errorf("DotStuff(%q): expected %q, got %q", tt.body, tt.expected, got)
		}

		// removing one dot from every dotted line restores the original
		lines := strings.Split(got, "\r\n")
		for i, line := range lines {
			if strings.HasPrefix(line, ".") {
				lines[i] = line[1:]
			}
		}
		if restored := strings.Join(lines, "\r\n"); restored != tt.body {
			t.Errorf("Expected %q to destuff to %q, got %q", got, tt.body, restored)
		}
	}
}

func TestEncodeCredential(t *testing.T) {
	got := EncodeCredential("user@example.com")
	decoded, err := base64.StdEncoding.DecodeString(got)
	if err != nil {
		t.Fatalf("Failed to decode %q: %v", got, err)
	}
	if string(decoded) != "user@example.com" {
		t.Errorf("Expected user@example.com, got %q", decoded)
	}
}

func TestBuildPayload(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	msg := ContactMessage{
		Name:    "Jane\r\nBcc: evil@example.com",
		Email:   "jane@example.com\r\n",
		Message: "Hi\r\nthere\rfriend\n.hidden",
	}

	payload := string(BuildPayload(msg, testCredentials(), now))

	headers, body, ok := strings.Cut(payload, "\r\n\r\n")
	if !ok {
		t.Fatalf("Expected a blank line between headers and body, got %q", payload)
	}

	for _, prefix := range []string{
		"From: ",
		"To: <to@example.com>",
		"Reply-To: ",
		"Subject: New contact form message from JaneBcc: evil@example.com",
		"Date: Thu, 15 Oct 2026 09:30:00 +0000",
		"Message-ID: <",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: 8bit",
	} {
		if !strings.Contains(headers, "\r\n"+prefix) && !strings.HasPrefix(headers, prefix) {
			t.Errorf("Expected header %q in %q", prefix, headers)
		}
	}

	for _, line := range strings.Split(headers, "\r\n") {
		if strings.HasPrefix(line, "Bcc:") {
			t.Errorf("Header injection produced a Bcc header: %q", line)
		}
	}

	if !strings.HasSuffix(body, "Hi\r\nthere\r\nfriend\r\n.hidden\r\n") {
		t.Errorf("Expected normalized body, got %q", body)
	}
	if strings.Contains(strings.ReplaceAll(payload, "\r\n", ""), "\n") {
		t.Errorf("Expected no bare LF in payload")
	}
}

func TestFrame(t *testing.T) {
	framed := string(Frame([]byte(".top\r\nmiddle\r\n.bottom\r\n")))
	expected := "..top\r\nmiddle\r\n..bottom\r\n.\r\n"
	if framed != expected {
		t.Errorf("Expected %q, got %q", expected, framed)
	}

	framed = string(Frame([]byte("no trailing break")))
	if framed != "no trailing break\r\n.\r\n" {
		t.Errorf("Expected terminator after missing CRLF, got %q", framed)
	}
}

func TestSignPayload(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	payload := BuildPayload(jane, testCredentials(), time.Now())
	signed, err := signPayload(payload, &DKIMOptions{Domain: "example.com", Signer: key})
	if err != nil {
		t.Fatalf("Failed to sign payload: %v", err)
	}

	if !strings.HasPrefix(string(signed), "DKIM-Signature:") {
		t.Errorf("Expected signed payload to start with a DKIM-Signature header, got %q", signed[:40])
	}
	if !strings.Contains(string(signed), "s=mail") {
		t.Errorf("Expected default selector 'mail' in signature")
	}
	if !strings.HasSuffix(string(signed), string(payload)) {
		t.Errorf("Expected original message to follow the signature")
	}
}

func TestLoadDKIMKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dkim.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("Failed to write key: %v", err)
	}

	signer, err := LoadDKIMKey(path)
	if err != nil {
		t.Fatalf("Failed to load key: %v", err)
	}
	if !key.PublicKey.Equal(signer.Public()) {
		t.Errorf("Expected loaded key to match the generated one")
	}

	if err := os.WriteFile(path, []byte("not pem"), 0o600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := LoadDKIMKey(path); err == nil {
		t.Errorf("Expected an error for invalid PEM data")
	}
}

func TestBuildPayloadKeepsLongLines(t *testing.T) {
	long := strings.Repeat("a", 1200)
	payload := string(BuildPayload(ContactMessage{Name: "Jane", Email: "jane@example.com", Message: long}, testCredentials(), time.Now()))

	if !strings.Contains(payload, "\r\n"+long+"\r\n") {
		t.Errorf("Expected the long body line to be sent unwrapped")
	}
	if !strings.Contains(payload, "Content-Transfer-Encoding: 8bit\r\n") {
		t.Errorf("Expected 8bit transfer encoding")
	}
}
