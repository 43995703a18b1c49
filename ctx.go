package castauth

import (
	"context"
	"net/http"
	"sync"

	"github.com/dpup/castauth/errors"
)

type addressKey struct{}

// WithAddress adds the server's external address to the context.
func WithAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, addressKey{}, address)
}

// AddressFromContext returns the server's external address. This is what
// links should reference, and likely points at a CDN or load balancer.
func AddressFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(addressKey{}).(string); ok {
		return v
	}
	return ""
}

type cookieCarrierKey struct{}

// cookieCarrier buffers cookies set by handlers so headers can be written
// before the response body.
type cookieCarrier struct {
	mu      sync.Mutex
	cookies []*http.Cookie
}

// WithCookieCarrier returns a context that can accept cookies via SendCookie.
// The server attaches a carrier to every JSON handler request; tests that
// invoke handlers directly can use this to capture cookies.
func WithCookieCarrier(ctx context.Context) context.Context {
	return context.WithValue(ctx, cookieCarrierKey{}, &cookieCarrier{})
}

// SendCookie queues a Set-Cookie header to be included in the response.
func SendCookie(ctx context.Context, cookie *http.Cookie) error {
	if err := cookie.Valid(); err != nil {
		return errors.Wrap(err, 0)
	}
	c, ok := ctx.Value(cookieCarrierKey{}).(*cookieCarrier)
	if !ok {
		return errors.New("no cookie carrier in context")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies = append(c.cookies, cookie)
	return nil
}

// CookiesFromContext returns the cookies queued on the context's carrier.
// Primarily useful in tests.
func CookiesFromContext(ctx context.Context) []*http.Cookie {
	c, ok := ctx.Value(cookieCarrierKey{}).(*cookieCarrier)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*http.Cookie{}, c.cookies...)
}

func flushCookies(ctx context.Context, w http.ResponseWriter) {
	for _, cookie := range CookiesFromContext(ctx) {
		http.SetCookie(w, cookie)
	}
}
