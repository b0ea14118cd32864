package fake

import (
	"sync"

	"github.com/OliverSchlueter/contact-mailer/internal/accounts"
)

type DB struct {
	Items map[string]accounts.Account
	mu    sync.Mutex
}

func NewDB() *DB {
	return &DB{
		Items: make(map[string]accounts.Account),
		mu:    sync.Mutex{},
	}
}

func (db *DB) GetByName(name string) (*accounts.Account, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	account, exists := db.Items[name]
	if !exists {
		return nil, accounts.ErrAccountNotFound
	}
	return &account, nil
}

func (db *DB) Insert(account accounts.Account) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.Items[account.Name]; exists {
		return accounts.ErrAccountAlreadyExists
	}

	db.Items[account.Name] = account
	return nil
}
