package inbox

import "time"

// Message is a mail accepted by the dev relay.
type Message struct {
	ID       string    `json:"id"`
	From     string    `json:"from"`
	To       []string  `json:"to"`
	Subject  string    `json:"subject"`
	Received time.Time `json:"received"`
	Size     int       `json:"size"`
	Data     string    `json:"data"`
}
