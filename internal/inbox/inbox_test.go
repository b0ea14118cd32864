package inbox_test

import (
	"errors"
	"testing"

	"github.com/OliverSchlueter/contact-mailer/internal/inbox"
	"github.com/OliverSchlueter/contact-mailer/internal/inbox/database/fake"
)

func TestDeliver(t *testing.T) {
	store := inbox.NewStore(inbox.Configuration{DB: fake.NewDB()})

	data := "From: a@example.com\r\nSubject: =?utf-8?q?Gr=C3=BC=C3=9Fe?=\r\n\r\nHello\r\n"
	m, err := store.Deliver("a@example.com", []string{"b@example.com"}, data)
	if err != nil {
		t.Fatalf("Failed to deliver message: %v", err)
	}

	if m.ID == "" {
		t.Error("Expected an ID to be generated")
	}
	if m.Subject != "Grüße" {
		t.Errorf("Expected decoded subject 'Grüße', got %q", m.Subject)
	}
	if m.Size != len(data) {
		t.Errorf("Expected size %d, got %d", len(data), m.Size)
	}

	got, err := store.Get(m.ID)
	if err != nil {
		t.Fatalf("Failed to get message: %v", err)
	}
	if got.Data != data {
		t.Errorf("Expected stored data %q, got %q", data, got.Data)
	}
}

func TestListKeepsDeliveryOrder(t *testing.T) {
	store := inbox.NewStore(inbox.Configuration{DB: fake.NewDB()})

	first, _ := store.Deliver("a@example.com", []string{"b@example.com"}, "Subject: one\r\n\r\n")
	second, _ := store.Deliver("a@example.com", []string{"b@example.com"}, "Subject: two\r\n\r\n")

	messages, err := store.List()
	if err != nil {
		t.Fatalf("Failed to list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].ID != first.ID || messages[1].ID != second.ID {
		t.Errorf("Expected messages in delivery order")
	}
	if messages[0].ID >= messages[1].ID {
		t.Errorf("Expected IDs to sort by delivery time, got %s and %s", messages[0].ID, messages[1].ID)
	}
}

func TestGetUnknownMessage(t *testing.T) {
	store := inbox.NewStore(inbox.Configuration{DB: fake.NewDB()})

	if _, err := store.Get("missing"); !errors.Is(err, inbox.ErrMessageNotFound) {
		t.Errorf("Expected ErrMessageNotFound, got %v", err)
	}
}
