package inbox

import (
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

type DB interface {
	List() ([]Message, error)
	GetByID(id string) (*Message, error)
	Insert(m Message) error
}

type Store struct {
	db DB
}

type Configuration struct {
	DB DB
}

func NewStore(cfg Configuration) *Store {
	return &Store{
		db: cfg.DB,
	}
}

// Deliver stores the raw message data received for the given envelope and
// returns the stored message.
func (s *Store) Deliver(from string, to []string, data string) (*Message, error) {
	m := Message{
		ID:       ulid.Make().String(),
		From:     from,
		To:       append([]string(nil), to...),
		Subject:  subjectOf(data),
		Received: time.Now(),
		Size:     len(data),
		Data:     data,
	}

	if err := s.db.Insert(m); err != nil {
		return nil, err
	}

	return &m, nil
}

// List returns all messages, oldest first.
func (s *Store) List() ([]Message, error) {
	return s.db.List()
}

func (s *Store) Get(id string) (*Message, error) {
	return s.db.GetByID(id)
}

func subjectOf(data string) string {
	msg, err := mail.ReadMessage(strings.NewReader(data))
	if err != nil {
		return ""
	}

	subject := msg.Header.Get("Subject")
	if decoded, err := new(mime.WordDecoder).DecodeHeader(subject); err == nil {
		return decoded
	}
	return subject
}
