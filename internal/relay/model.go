package relay

import "strings"

type Session struct {
	Hostname     string
	RemoteAddr   string
	HeloReceived bool
	Envelope     Envelope
	AuthLogin    AuthLogin
}

type Envelope struct {
	From        string
	To          []string
	DataBuffer  []string
	DataSize    int
	ReadingData bool
}

// Data joins the received lines back into a CRLF terminated message.
func (e *Envelope) Data() string {
	if len(e.DataBuffer) == 0 {
		return ""
	}
	return strings.Join(e.DataBuffer, "\r\n") + "\r\n"
}

func (e *Envelope) Reset() {
	*e = Envelope{}
}

type AuthLogin struct {
	RequestedUsername bool
	Username          string
	RequestedPassword bool
	IsAuthenticated   bool
}
