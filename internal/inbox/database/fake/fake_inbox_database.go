package fake

import (
	"sync"

	"github.com/OliverSchlueter/contact-mailer/internal/inbox"
)

type DB struct {
	Messages []inbox.Message
	mu       sync.Mutex
}

func NewDB() *DB {
	return &DB{
		Messages: []inbox.Message{},
		mu:       sync.Mutex{},
	}
}

func (db *DB) List() ([]inbox.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return append([]inbox.Message(nil), db.Messages...), nil
}

func (db *DB) GetByID(id string) (*inbox.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, m := range db.Messages {
		if m.ID == id {
			return &m, nil
		}
	}
	return nil, inbox.ErrMessageNotFound
}

func (db *DB) Insert(m inbox.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.Messages {
		if existing.ID == m.ID {
			return inbox.ErrMessageAlreadyExists
		}
	}

	db.Messages = append(db.Messages, m)
	return nil
}
