package auth

import (
	"context"
	"time"

	"github.com/dpup/castauth"
)

func init() {
	castauth.RegisterConfigKeys(
		castauth.ConfigKeyInfo{
			Key:         "auth.signingKey",
			Description: "JWT signing key for session tokens",
			Type:        "string",
		},
		castauth.ConfigKeyInfo{
			Key:         "auth.expiration",
			Description: "How long sessions should be valid for",
			Type:        "duration",
			Default:     "168h",
		},
		castauth.ConfigKeyInfo{
			Key:         "auth.rememberMeExpiration",
			Description: "Session validity when the client requests a persistent login",
			Type:        "duration",
			Default:     "720h",
		},
		castauth.ConfigKeyInfo{
			Key:         "auth.cookieSameSite",
			Description: "SameSite attribute for the session cookie (lax, strict, none)",
			Type:        "string",
			Default:     "lax",
		},
	)
}

const (
	defaultSessionExpiration    = time.Hour * 24 * 7
	defaultRememberMeExpiration = time.Hour * 24 * 30
)

type signingKey struct{}

type sessionExpiration struct{}

func injectSigningKey(b string) castauth.ConfigInjector {
	return func(ctx context.Context) context.Context {
		return context.WithValue(ctx, signingKey{}, b)
	}
}

func injectExpiration(d time.Duration) castauth.ConfigInjector {
	return func(ctx context.Context) context.Context {
		return context.WithValue(ctx, sessionExpiration{}, d)
	}
}

func signingKeyFromContext(ctx context.Context) []byte {
	if v, ok := ctx.Value(signingKey{}).(string); ok {
		return []byte(v)
	}
	return []byte("In a world of casted dreams, authenticity gleams.")
}

// SigningKeyFromContext returns the JWT signing key from context. Exported
// for plugins that need to create their own tokens.
func SigningKeyFromContext(ctx context.Context) []byte {
	return signingKeyFromContext(ctx)
}

func expirationFromContext(ctx context.Context) time.Duration {
	if v, ok := ctx.Value(sessionExpiration{}).(time.Duration); ok {
		return v
	}
	return defaultSessionExpiration
}
