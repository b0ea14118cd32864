package mailer

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/emersion/go-msgauth/dkim"
)

// DKIMOptions enables signing of outgoing contact mails. An empty Domain
// falls back to the domain of the sender address.
type DKIMOptions struct {
	Domain   string
	Selector string
	Signer   crypto.Signer
}

var dkimHeaderKeys = []string{
	"from",
	"to",
	"reply-to",
	"subject",
	"date",
	"message-id",
}

// LoadDKIMKey reads a PEM encoded PKCS#1 or PKCS#8 private key.
func LoadDKIMKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("invalid PEM data in %s", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DKIM key: %w", err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("DKIM key of type %T cannot sign", key)
	}
	return signer, nil
}

// signPayload prepends a DKIM-Signature header to a CRLF normalized message.
func signPayload(payload []byte, opts *DKIMOptions) ([]byte, error) {
	selector := opts.Selector
	if selector == "" {
		selector = "mail"
	}

	signOpts := &dkim.SignOptions{
		Domain:     opts.Domain,
		Selector:   selector,
		Signer:     opts.Signer,
		HeaderKeys: dkimHeaderKeys,
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(payload), signOpts); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}

	return signed.Bytes(), nil
}
