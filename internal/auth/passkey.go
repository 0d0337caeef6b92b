// ABOUTME: WebAuthn relying-party construction and the webauthn.User adapter.
// ABOUTME: RP ID and origin derive from ExternalURL unless overridden in config.
package auth

import (
	"fmt"
	"net/url"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/emelleby/ilca-kns-sub001/internal/config"
)

// NewWebAuthn builds the WebAuthn relying party from config. The RP origin is
// always cfg.ExternalURL; the RP ID defaults to its hostname.
func NewWebAuthn(cfg *config.Config) (*webauthn.WebAuthn, error) {
	rpID := cfg.WebAuthnRPID
	if rpID == "" {
		u, err := url.Parse(cfg.ExternalURL)
		if err != nil {
			return nil, fmt.Errorf("parse external url: %w", err)
		}
		rpID = u.Hostname()
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: cfg.WebAuthnRPDisplayName,
		RPOrigins:     []string{cfg.ExternalURL},
	})
	if err != nil {
		return nil, fmt.Errorf("webauthn init: %w", err)
	}
	return wa, nil
}

// PasskeyUser adapts a user row plus its stored credentials to webauthn.User.
// The WebAuthn user handle is the user's UUID bytes — stable and opaque.
type PasskeyUser struct {
	ID          uuid.UUID
	Username    string
	DisplayName string
	Credentials []webauthn.Credential
}

func (u *PasskeyUser) WebAuthnID() []byte { return u.ID[:] }

func (u *PasskeyUser) WebAuthnName() string { return u.Username }

func (u *PasskeyUser) WebAuthnDisplayName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

func (u *PasskeyUser) WebAuthnCredentials() []webauthn.Credential { return u.Credentials }
