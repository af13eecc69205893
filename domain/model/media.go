package model

import (
	"io"
	"time"
)

// Payload is the binary behind an asset. Data must support random access so
// uploads can resume from the offset acknowledged by the platform.
type Payload struct {
	Data        io.ReaderAt
	Size        int64
	ContentType string
	// Closer releases spooled storage, if any.
	Closer io.Closer
}

// Close is safe on payloads without backing storage.
func (p *Payload) Close() error {
	if p == nil || p.Closer == nil {
		return nil
	}
	return p.Closer.Close()
}

// Profile is the platform account a token belongs to.
type Profile struct {
	PlatformUserID string
	DisplayName    string
	AccessToken    string
	Metadata       map[string]string
}

// OAuthState is remembered between Connect and CompleteAuth.
type OAuthState struct {
	UserID   string   `json:"user_id"`
	Platform Platform `json:"platform"`
	// Verifier is the PKCE code verifier, for providers that require it.
	Verifier  string    `json:"verifier,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
