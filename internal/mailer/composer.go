package mailer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/OliverSchlueter/goutils/idgen"
)

const (
	fallbackName    = "Anonymous"
	fallbackSubject = "New contact form message"
)

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// ContactMessage is what a visitor submitted through the contact form.
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Credentials identify the relay account and where contact mails are delivered.
type Credentials struct {
	FromAddress  string
	FromPassword string
	ToAddress    string
}

// SanitizeHeader removes every CR and LF from a header value so it cannot
// start a new header. An empty result is replaced with fallback.
func SanitizeHeader(value, fallback string) string {
	value = strings.TrimSpace(lineBreaks.Replace(value))
	if value == "" {
		return fallback
	}
	return value
}

// SanitizeAddress strips whitespace and line breaks from an envelope address.
func SanitizeAddress(addr string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, addr)
}

// NormalizeBody converts CRLF and lone CR to LF and then every LF to CRLF.
func NormalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	return strings.ReplaceAll(body, "\n", "\r\n")
}

// DotStuff doubles the leading dot of every CRLF separated line, the first
// line included.
func DotStuff(body string) string {
	lines := strings.Split(body, "\r\n")
	for i, line := range lines {
		if strings.HasPrefix(line, ".") {
			lines[i] = "." + line
		}
	}
	return strings.Join(lines, "\r\n")
}

// EncodeCredential encodes a username or password for AUTH LOGIN.
func EncodeCredential(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// BuildPayload renders the complete message with headers and a CRLF
// normalized body. The result is not dot-stuffed.
func BuildPayload(msg ContactMessage, creds Credentials, now time.Time) []byte {
	name := SanitizeHeader(msg.Name, fallbackName)
	replyTo := SanitizeAddress(msg.Email)
	subject := SanitizeHeader(fallbackSubject+" from "+name, fallbackSubject)

	from := mail.Address{Name: name + " (contact form)", Address: SanitizeAddress(creds.FromAddress)}
	to := mail.Address{Address: SanitizeAddress(creds.ToAddress)}

	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", to.String())
	if replyTo != "" {
		fmt.Fprintf(&buf, "Reply-To: %s\r\n", (&mail.Address{Name: name, Address: replyTo}).String())
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", idgen.GenerateID(20), domainOf(creds.FromAddress))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")

	body := fmt.Sprintf("Name: %s\nEmail: %s\n\n%s", name, SanitizeHeader(msg.Email, "-"), msg.Message)
	body = NormalizeBody(body)
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\r\n") {
		buf.WriteString("\r\n")
	}

	return buf.Bytes()
}

// Frame dot-stuffs a CRLF normalized payload and appends the end-of-data
// marker.
func Frame(payload []byte) []byte {
	s := string(payload)
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}

	stuffed := DotStuff(strings.TrimSuffix(s, "\r\n"))
	return []byte(stuffed + "\r\n.\r\n")
}

func domainOf(addr string) string {
	i := strings.LastIndex(addr, "@")
	if i < 0 || i == len(addr)-1 {
		return "localhost"
	}
	return SanitizeAddress(addr[i+1:])
}
