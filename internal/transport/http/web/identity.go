package web

import (
	"encoding/base64"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Headers set by the load balancer after OIDC authentication.
const (
	oidcDataHeader     = "x-amzn-oidc-data"
	oidcIdentityHeader = "x-amzn-oidc-identity"
)

const (
	anonymousUser      = "anonymous-user"
	fallbackUser       = "user-1"
	unknownUser        = "unknown-user"
	anonymousDisplay   = "Anonymous User"
	testUserDisplay    = "Test User"
	unknownUserDisplay = "Unknown User"
)

// Identity resolves the caller from load balancer headers.
type Identity struct {
	AuthEnabled bool
}

// UserID returns the caller's actor id: the unpadded URL-safe base64 of the
// caller's e-mail or identity, which is a valid memory actor id.
func (i Identity) UserID(r *http.Request) string {
	return ActorID(i.identity(r))
}

// Email returns the caller's e-mail for display.
func (i Identity) Email(r *http.Request) string {
	if !i.AuthEnabled {
		return anonymousDisplay
	}
	if data := r.Header.Get(oidcDataHeader); data != "" {
		email, err := emailClaim(data)
		if err == nil {
			if email == "" {
				return unknownUserDisplay
			}
			return email
		}
		log.Ctx(r.Context()).Warn().Err(err).Msg("failed to decode user data")
	}
	if id := r.Header.Get(oidcIdentityHeader); id != "" {
		return id
	}
	return testUserDisplay
}

func (i Identity) identity(r *http.Request) string {
	if !i.AuthEnabled {
		return anonymousUser
	}
	if data := r.Header.Get(oidcDataHeader); data != "" {
		email, err := emailClaim(data)
		if err == nil {
			if email == "" {
				return unknownUser
			}
			return email
		}
		log.Ctx(r.Context()).Warn().Err(err).Msg("failed to decode user data")
	}
	if id := r.Header.Get(oidcIdentityHeader); id != "" {
		return id
	}
	return fallbackUser
}

// ActorID encodes an identity as a memory actor id.
func ActorID(identity string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(identity))
}

// emailClaim reads the email claim of the load balancer's user claims token.
// The signature was verified by the load balancer.
func emailClaim(token string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithPaddingAllowed())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", err
	}
	email, _ := claims["email"].(string)
	return email, nil
}
