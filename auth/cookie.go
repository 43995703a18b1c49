package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/dpup/castauth"
	"github.com/dpup/castauth/errors"
)

// Cookie name used for storing the castauth session token.
const SessionCookieName = "ca-session"

// SendSessionCookie queues the session token as a cookie on the response.
func SendSessionCookie(ctx context.Context, token string, expires time.Time, sameSite http.SameSite) error {
	return castauth.SendCookie(ctx, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Secure:   cookieSecure(ctx),
		HttpOnly: true,
		Expires:  expires,
		SameSite: sameSite,
	})
}

// ClearSessionCookie queues an expired cookie so browsers discard the
// session token.
func ClearSessionCookie(ctx context.Context) error {
	return castauth.SendCookie(ctx, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Secure:   cookieSecure(ctx),
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// cookieSecure decides the Secure flag for session cookies. Secure is the
// default; only a deployment address that explicitly says plain http (local
// development) opts out. Empty or ambiguous addresses stay secure.
func cookieSecure(ctx context.Context) bool {
	return !strings.HasPrefix(castauth.AddressFromContext(ctx), "http://")
}

// IdentityFromRequest parses and verifies a session token received with the
// request. An `Authorization` header takes precedence over the session
// cookie. Returns ErrNotFound if no token is present.
//
// This only verifies the token signature and claims; it does not confirm
// that the backing session record still exists. Use AuthPlugin.VerifyRequest
// for full validation.
func IdentityFromRequest(req *http.Request) (Identity, error) {
	token, err := tokenFromRequest(req)
	if err != nil {
		return Identity{}, err
	}
	return ParseIdentityToken(req.Context(), token)
}

func tokenFromRequest(req *http.Request) (string, error) {
	if h := req.Header.Get("Authorization"); h != "" {
		return tokenFromAuthHeader(h)
	}
	if c, err := req.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errors.Mark(ErrNotFound, 0)
}

func tokenFromAuthHeader(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		// Relaxed fallback that allows tokens to be passed without the
		// "bearer" or "basic" prefix. Instead it takes the whole header.
		return header, nil
	}

	switch strings.ToLower(parts[0]) {
	case "bearer":
		// Standard bearer token.
		return parts[1], nil

	case "basic":
		// Basic auth is the method preferred for curl based CLI clients.
		// By convention, we expect the username to be the token, and for
		// there to be no password.
		payload, _ := base64.StdEncoding.DecodeString(parts[1])
		pair := strings.SplitN(string(payload), ":", 2)
		if len(pair) != 2 || pair[1] != "" {
			return "", errors.Mark(ErrInvalidHeader, 0)
		}
		return pair[0], nil

	default:
		return "", errors.Mark(ErrInvalidHeader, 0)
	}
}
