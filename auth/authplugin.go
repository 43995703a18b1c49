package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"github.com/dpup/castauth"
	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/eventbus"
	"github.com/dpup/castauth/logging"
	"github.com/dpup/castauth/storage"
	"github.com/google/uuid"
)

// Constant name for identifying the core auth plugin.
const PluginName = "auth"

// AuthOption allows configuration of the AuthPlugin.
type AuthOption func(*AuthPlugin)

// WithSigningKey sets the signing key to use when signing JWT tokens.
func WithSigningKey(signingKey string) AuthOption {
	return func(p *AuthPlugin) {
		p.signingKey = signingKey
	}
}

// WithExpiration sets the default session lifetime.
func WithExpiration(expiration time.Duration) AuthOption {
	return func(p *AuthPlugin) {
		p.expiration = expiration
	}
}

// WithRememberMeExpiration sets the session lifetime used when a client asks
// for a persistent login.
func WithRememberMeExpiration(expiration time.Duration) AuthOption {
	return func(p *AuthPlugin) {
		p.rememberMeExpiration = expiration
	}
}

// WithSameSite overrides the SameSite attribute on the session cookie.
func WithSameSite(sameSite http.SameSite) AuthOption {
	return func(p *AuthPlugin) {
		p.sameSite = sameSite
	}
}

// Plugin returns a new AuthPlugin.
func Plugin(opts ...AuthOption) *AuthPlugin {
	// Get signing key from config, or generate a random one with a warning.
	signingKey := castauth.ConfigString("auth.signingKey")
	if signingKey == "" {
		signingKey = randomSigningKey()
		log.Println("⚠️  WARNING: Using randomly generated JWT signing key. " +
			"Sessions will be invalidated on server restart. " +
			"Set CA__AUTH__SIGNING_KEY environment variable or auth.signingKey in castauth.yaml for production.")
	}

	ap := &AuthPlugin{
		signingKey:           signingKey,
		expiration:           defaultSessionExpiration,
		rememberMeExpiration: defaultRememberMeExpiration,
		sameSite:             http.SameSiteLaxMode,
	}
	if d := castauth.ConfigDuration("auth.expiration"); d > 0 {
		ap.expiration = d
	}
	if d := castauth.ConfigDuration("auth.rememberMeExpiration"); d > 0 {
		ap.rememberMeExpiration = d
	}
	if s := castauth.ConfigString("auth.cookieSameSite"); s != "" {
		ap.sameSite = parseSameSite(s)
	}
	for _, opt := range opts {
		opt(ap)
	}
	return ap
}

func parseSameSite(s string) http.SameSite {
	switch s {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func randomSigningKey() string {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic("failed to generate random signing key: " + err.Error())
	}
	return hex.EncodeToString(key)
}

// AuthPlugin owns session issuance and verification. Identity provider
// plugins depend on it to turn verified external identities into local
// sessions.
type AuthPlugin struct {
	signingKey           string
	expiration           time.Duration
	rememberMeExpiration time.Duration
	sameSite             http.SameSite

	store storage.Store
	bus   eventbus.EventBus
}

// From castauth.Plugin.
func (ap *AuthPlugin) Name() string {
	return PluginName
}

// From castauth.DependentPlugin.
func (ap *AuthPlugin) Deps() []string {
	return []string{storage.PluginName}
}

// From castauth.OptionalDependentPlugin.
func (ap *AuthPlugin) OptDeps() []string {
	return []string{eventbus.PluginName}
}

// From castauth.InitializablePlugin.
func (ap *AuthPlugin) Init(ctx context.Context, r *castauth.Registry) error {
	store, ok := r.Get(storage.PluginName).(*storage.StoragePlugin)
	if !ok {
		return errors.New("auth: storage plugin not registered")
	}
	ap.store = store
	if err := store.InitModel(&User{}); err != nil {
		return errors.Wrap(err, 0)
	}
	if err := store.InitModel(&Session{}); err != nil {
		return errors.Wrap(err, 0)
	}

	if bus, ok := r.Get(eventbus.PluginName).(*eventbus.EventBusPlugin); ok {
		ap.bus = bus
	}
	return nil
}

// From castauth.OptionProvider.
func (ap *AuthPlugin) ServerOptions() []castauth.ServerOption {
	return []castauth.ServerOption{
		castauth.WithRequestConfig(injectSigningKey(ap.signingKey)),
		castauth.WithRequestConfig(injectExpiration(ap.expiration)),
		castauth.WithJSONHandler("/api/auth/logout", ap.handleLogout),
	}
}

// Store exposes the backing store for identity provider plugins.
func (ap *AuthPlugin) Store() storage.Store {
	return ap.store
}

// CreateSession persists a fresh session for the user and returns it along
// with a signed token. A new session is created on every sign-in.
func (ap *AuthPlugin) CreateSession(ctx context.Context, user *User, provider string, rememberMe bool) (*Session, string, error) {
	ttl := ap.expiration
	if rememberMe {
		ttl = ap.rememberMeExpiration
	}

	now := timeFunc()
	session := &Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := ap.store.Create(ctx, session); err != nil {
		return nil, "", errors.Wrap(err, 0)
	}

	identity := Identity{
		SessionID:     session.ID,
		UserID:        user.ID,
		Provider:      provider,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Name:          user.Name,
		AuthTime:      now,
	}
	token, err := IdentityToken(ctx, identity, ttl)
	if err != nil {
		return nil, "", err
	}

	if ap.bus != nil {
		ap.bus.Publish(LoginEvent, AuthEvent{Identity: identity})
	}
	return session, token, nil
}

// IssueSession creates a session and queues the session cookie on the
// response. Convenience for login handlers.
func (ap *AuthPlugin) IssueSession(ctx context.Context, user *User, provider string, rememberMe bool) (*Session, string, error) {
	session, token, err := ap.CreateSession(ctx, user, provider, rememberMe)
	if err != nil {
		return nil, "", err
	}
	if err := SendSessionCookie(ctx, token, session.ExpiresAt, ap.sameSite); err != nil {
		return nil, "", err
	}
	return session, token, nil
}

// VerifyRequest authenticates a request. It parses the session token from
// the Authorization header or session cookie, then confirms the backing
// session record exists and has not expired. A token whose record is missing
// or stale fails with ErrSessionExpired.
func (ap *AuthPlugin) VerifyRequest(req *http.Request) (Identity, error) {
	identity, err := IdentityFromRequest(req)
	if err != nil {
		return Identity{}, err
	}

	ctx := req.Context()
	var session Session
	if err := ap.store.Read(ctx, identity.SessionID, &session); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Identity{}, errors.Mark(ErrSessionExpired, 0)
		}
		return Identity{}, errors.Wrap(err, 0)
	}
	if session.Expired(timeFunc()) {
		if err := ap.store.Delete(ctx, session); err != nil && !errors.Is(err, storage.ErrNotFound) {
			logging.Warnw(ctx, "auth: failed to delete expired session", "error", err)
		}
		return Identity{}, errors.Mark(ErrSessionExpired, 0)
	}
	return identity, nil
}

// CurrentUser returns the user record for an authenticated request.
func (ap *AuthPlugin) CurrentUser(req *http.Request) (*User, Identity, error) {
	identity, err := ap.VerifyRequest(req)
	if err != nil {
		return nil, Identity{}, err
	}
	var user User
	if err := ap.store.Read(req.Context(), identity.UserID, &user); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Identity{}, errors.Mark(ErrSessionExpired, 0)
		}
		return nil, Identity{}, errors.Wrap(err, 0)
	}
	return &user, identity, nil
}

// Logout is idempotent: the session record is deleted when present and an
// expired cookie is always queued.
func (ap *AuthPlugin) handleLogout(req *http.Request) (any, error) {
	ctx := req.Context()

	identity, err := ap.VerifyRequest(req)
	if err == nil {
		if err := ap.store.Delete(ctx, Session{ID: identity.SessionID}); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrap(err, 0)
		}
		if ap.bus != nil {
			ap.bus.Publish(LogoutEvent, AuthEvent{Identity: identity})
		}
	}

	if err := ClearSessionCookie(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}
