package contact

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/OliverSchlueter/contact-mailer/internal/mailer"
	"github.com/OliverSchlueter/goutils/problems"
	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/google/uuid"
)

const (
	maxNameLength    = 100
	minEmailLength   = 3
	maxEmailLength   = 254
	maxMessageLength = 5000
	maxBodyBytes     = 64 << 10
)

// Sender delivers a contact message. *mailer.Mailer satisfies it.
type Sender interface {
	Send(ctx context.Context, msg mailer.ContactMessage) error
}

type Handler struct {
	sender Sender
}

func New(sender Sender) *Handler {
	return &Handler{
		sender: sender,
	}
}

func (h *Handler) Register(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"/contact", h.handleContact)
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.sendContact(w, r)
	default:
		problems.MethodNotAllowed(r.Method, []string{http.MethodPost}).WriteToHTTP(w)
	}
}

func (h *Handler) sendContact(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var req ContactReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		problems.CouldNotDecodeBody().WriteToHTTP(w)
		return
	}

	if field, msg, ok := req.validate(); !ok {
		problems.ValidationError(field, msg).WriteToHTTP(w)
		return
	}

	err := h.sender.Send(r.Context(), mailer.ContactMessage{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Message: req.Message,
	})
	if err != nil {
		slog.Error("Failed to send contact message",
			slog.String("request_id", requestID),
			sloki.WrapError(err),
		)

		if errors.Is(err, mailer.ErrConfiguration) {
			problems.InternalServerError("Contact service is not configured").WriteToHTTP(w)
			return
		}
		problems.InternalServerError("Could not send message").WriteToHTTP(w)
		return
	}

	slog.Info("Contact message sent", slog.String("request_id", requestID))

	data, err := json.Marshal(ContactResp{OK: true})
	if err != nil {
		problems.InternalServerError("Error marshalling response").WriteToHTTP(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type ContactReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type ContactResp struct {
	OK bool `json:"ok"`
}

// validate reports the first offending field together with a message.
func (req ContactReq) validate() (string, string, bool) {
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "name", "Name must be between 1 and 100 characters", false
	}

	email := strings.TrimSpace(req.Email)
	if len(email) < minEmailLength || len(email) > maxEmailLength || !strings.Contains(email, "@") {
		return "email", "Email must be a valid address", false
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "email", "Email must be a valid address", false
	}

	if strings.TrimSpace(req.Message) == "" || utf8.RuneCountInString(req.Message) > maxMessageLength {
		return "message", "Message must be between 1 and 5000 characters", false
	}

	return "", "", true
}
