// Package auth manages local users and sessions for request authentication.
//
// Authentication is delegated to an identity provider plugin, which is
// responsible for verifying the caller's external credentials. Once verified,
// the provider asks this package to reconcile a local user and issue a
// session. The session is persisted and a signed JWT referencing it is
// returned to the client as a cookie, or in the response body for
// non-browser clients.
//
// The client then uses the cookie, or a bearer token, to authenticate future
// requests. Session records act as the revocation list: logging out deletes
// the record, and tokens whose record is missing or past expiry are rejected
// with a SESSION_EXPIRED reason.
package auth

import (
	"time"

	"github.com/dpup/castauth/errors"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
)

// Reason constants returned to clients alongside error codes.
const (
	ReasonSessionExpired = "SESSION_EXPIRED"
)

var (
	// No identity was found within the incoming request.
	ErrNotFound = errors.NewC("identity not found", codes.Unauthenticated)

	// The session backing a token no longer exists or has passed its expiry.
	ErrSessionExpired = errors.NewR("session has expired", codes.Unauthenticated, ReasonSessionExpired)

	// The token was not signed correctly.
	ErrInvalidToken = errors.NewC("token is invalid", codes.InvalidArgument)

	// Invalid authorization header.
	ErrInvalidHeader = errors.NewC("bad authorization header", codes.InvalidArgument)

	// Allows for time to be stubbed in tests.
	timeFunc = time.Now
)

// Claims registered as part of a castauth session token.
type Claims struct {
	// Standard public JWT claims per https://www.iana.org/assignments/jwt/jwt.xhtml
	jwt.RegisteredClaims
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	EmailVerified bool             `json:"email_verified"`
	AuthTime      *jwt.NumericDate `json:"auth_time,omitempty"`

	// Custom claims.
	Provider string `json:"idp"`
}

func (c *Claims) Validate() error {
	if c.Provider == "" {
		return errors.Mark(ErrInvalidToken, 0).Append("missing provider")
	}
	return nil
}
