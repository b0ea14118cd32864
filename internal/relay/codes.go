package relay

const (
	StatusServiceReady   = "220 %s ESMTP dev relay ready" // server hostname
	StatusConnClosed     = "221 %s closing connection"    // server hostname
	StatusAuthSuccess    = "235 Authentication successful"
	StatusOK             = "250 OK"
	StatusQueued         = "250 OK queued as %s" // message id
	StatusGreeting       = "250-%s greets %s"    // server hostname, client hostname
	StatusAuthCapability = "250-AUTH LOGIN PLAIN"
	Status8BitMIME       = "250 8BITMIME"
	StatusAuthUsername   = "334 VXNlcm5hbWU6" // Base64 encoded "Username:"
	StatusAuthPassword   = "334 UGFzc3dvcmQ6" // Base64 encoded "Password:"
	StatusStartMailData  = "354 Start mail input; end with <CRLF>.<CRLF>"

	StatusLocalError           = "451 Requested action aborted: local error in processing"
	StatusBadCommand           = "500 Unrecognized command"
	StatusLineTooLong          = "500 Line too long"
	StatusInvalidBase64        = "501 Invalid base64 encoding"
	StatusInvalidAddress       = "501 Invalid address"
	StatusBadSequence          = "503 Bad sequence: '%s' required first" // required command
	StatusAuthRequired         = "530 Authentication required"
	StatusAuthenticationFailed = "535 Authentication failed"
	StatusTooManyRecipients    = "452 Too many recipients"
	StatusMessageTooLarge      = "552 Message size exceeds fixed limit"
)

const (
	MaxLineLength  = 1000
	MaxRecipients  = 100
	MaxMessageSize = 10 * 1024 * 1024
)
