// Package farcaster authenticates users with Farcaster-issued credentials.
//
// Two flows are supported. The Sign-In-With-Farcaster channel flow opens a
// channel on the public relay, shows the approval URL to the user, polls for
// completion, then verifies the signed message. The Quick Auth flow accepts
// a JWT minted inside a miniapp context and introspects it against the Quick
// Auth server. Both converge on the same reconciliation path: the verified
// FID is mapped onto a local user, which is created or refreshed, and a new
// session is issued.
//
//	server := castauth.New(
//		castauth.WithPlugin(storage.Plugin(memorystore.New())),
//		castauth.WithPlugin(auth.Plugin()),
//		castauth.WithPlugin(farcaster.Plugin()),
//	)
package farcaster

import (
	"context"
	"net/url"
	"time"

	"github.com/dpup/castauth"
	"github.com/dpup/castauth/auth"
	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/eventbus"
	"github.com/dpup/castauth/logging"
	"github.com/dpup/castauth/storage"
)

// Constant name for identifying the farcaster plugin.
const PluginName = "farcaster"

// Provider names recorded on sessions issued by this plugin.
const (
	ProviderFarcaster = "farcaster"
	ProviderQuickAuth = "quickauth"
)

// Event topics published on the event bus when a link changes.
const (
	LinkedEvent   = "farcaster.linked"
	UnlinkedEvent = "farcaster.unlinked"
)

// LinkEvent is the payload for LinkedEvent and UnlinkedEvent.
type LinkEvent struct {
	UserID string
	FID    uint64
}

// Allows for time to be stubbed in tests.
var timeFunc = time.Now

func init() {
	castauth.RegisterConfigKeys(
		castauth.ConfigKeyInfo{
			Key:         "farcaster.relayURL",
			Description: "Base URL of the Farcaster relay service",
			Type:        "string",
			Default:     "https://relay.farcaster.xyz",
		},
		castauth.ConfigKeyInfo{
			Key:         "farcaster.quickAuthURL",
			Description: "Base URL of the Quick Auth token verification server",
			Type:        "string",
			Default:     "https://auth.farcaster.xyz",
		},
		castauth.ConfigKeyInfo{
			Key:         "farcaster.domain",
			Description: "Hostname signatures are bound to, defaults to the host of the server address",
			Type:        "string",
		},
		castauth.ConfigKeyInfo{
			Key:         "farcaster.accountDomain",
			Description: "Domain used for placeholder emails on accounts created from a FID",
			Type:        "string",
			Default:     "fid.farcaster.xyz",
		},
		castauth.ConfigKeyInfo{
			Key:         "farcaster.nonceLifetime",
			Description: "How long an unused sign-in nonce remains valid",
			Type:        "duration",
			Default:     "10m",
		},
		castauth.ConfigKeyInfo{
			Key:         "farcaster.channelTimeout",
			Description: "Wall-clock limit for a sign-in channel to be approved",
			Type:        "duration",
			Default:     "300s",
		},
	)
}

const (
	defaultNonceLifetime  = 10 * time.Minute
	defaultChannelTimeout = 300 * time.Second
	defaultSweepInterval  = time.Minute
)

// FarcasterOption allows configuration of the FarcasterPlugin.
type FarcasterOption func(*FarcasterPlugin)

// WithRelay overrides the relay client, primarily for tests and self-hosted
// relays.
func WithRelay(relay Relay) FarcasterOption {
	return func(p *FarcasterPlugin) {
		p.relay = relay
	}
}

// WithRelayURL points the default relay client at a different deployment.
func WithRelayURL(u string) FarcasterOption {
	return func(p *FarcasterPlugin) {
		p.relayURL = u
	}
}

// WithQuickAuthURL points token introspection at a different server.
func WithQuickAuthURL(u string) FarcasterOption {
	return func(p *FarcasterPlugin) {
		p.quickAuthURL = u
	}
}

// WithDomain sets the hostname signatures are bound to. When unset the host
// of the configured server address is used.
func WithDomain(domain string) FarcasterOption {
	return func(p *FarcasterPlugin) {
		p.domainName = domain
	}
}

// WithAccountDomain sets the domain for synthesized placeholder emails.
func WithAccountDomain(domain string) FarcasterOption {
	return func(p *FarcasterPlugin) {
		p.accountDomain = domain
	}
}

// WithNonceLifetime overrides how long unused nonces remain valid.
func WithNonceLifetime(d time.Duration) FarcasterOption {
	return func(p *FarcasterPlugin) {
		p.nonceLifetime = d
	}
}

// WithNameResolver installs a hook that overrides the display name for users
// created from a previously unseen FID.
func WithNameResolver(r NameResolver) FarcasterOption {
	return func(p *FarcasterPlugin) {
		p.nameResolver = r
	}
}

// Plugin returns a new FarcasterPlugin.
func Plugin(opts ...FarcasterOption) *FarcasterPlugin {
	p := &FarcasterPlugin{
		relayURL:       "https://relay.farcaster.xyz",
		quickAuthURL:   "https://auth.farcaster.xyz",
		accountDomain:  "fid.farcaster.xyz",
		nonceLifetime:  defaultNonceLifetime,
		channelTimeout: defaultChannelTimeout,
		sweepInterval:  defaultSweepInterval,
	}
	if s := castauth.ConfigString("farcaster.relayURL"); s != "" {
		p.relayURL = s
	}
	if s := castauth.ConfigString("farcaster.quickAuthURL"); s != "" {
		p.quickAuthURL = s
	}
	if s := castauth.ConfigString("farcaster.domain"); s != "" {
		p.domainName = s
	}
	if s := castauth.ConfigString("farcaster.accountDomain"); s != "" {
		p.accountDomain = s
	}
	if d := castauth.ConfigDuration("farcaster.nonceLifetime"); d > 0 {
		p.nonceLifetime = d
	}
	if d := castauth.ConfigDuration("farcaster.channelTimeout"); d > 0 {
		p.channelTimeout = d
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FarcasterPlugin registers the sign-in endpoints and owns the collaborators
// they share: the nonce manager, the relay client, the verifiers, and the
// reconciler.
type FarcasterPlugin struct {
	relayURL       string
	quickAuthURL   string
	domainName     string
	accountDomain  string
	nonceLifetime  time.Duration
	channelTimeout time.Duration
	sweepInterval  time.Duration
	nameResolver   NameResolver

	relay         Relay
	auth          *auth.AuthPlugin
	store         storage.Store
	bus           eventbus.EventBus
	nonces        *NonceManager
	reconciler    *Reconciler
	siwfVerifier  Verifier
	tokenVerifier Verifier
}

// From castauth.Plugin.
func (p *FarcasterPlugin) Name() string {
	return PluginName
}

// From castauth.DependentPlugin.
func (p *FarcasterPlugin) Deps() []string {
	return []string{auth.PluginName, storage.PluginName}
}

// From castauth.OptionalDependentPlugin.
func (p *FarcasterPlugin) OptDeps() []string {
	return []string{eventbus.PluginName}
}

// From castauth.InitializablePlugin.
func (p *FarcasterPlugin) Init(ctx context.Context, r *castauth.Registry) error {
	ap, ok := r.Get(auth.PluginName).(*auth.AuthPlugin)
	if !ok {
		return errors.New("farcaster: auth plugin not registered")
	}
	store, ok := r.Get(storage.PluginName).(*storage.StoragePlugin)
	if !ok {
		return errors.New("farcaster: storage plugin not registered")
	}
	p.auth = ap
	p.store = store

	if err := store.InitModel(NonceRecord{}); err != nil {
		return errors.Wrap(err, 0)
	}

	if bus, ok := r.Get(eventbus.PluginName).(*eventbus.EventBusPlugin); ok {
		p.bus = bus
	}

	if p.relay == nil {
		p.relay = NewRelay(p.relayURL)
	}
	p.nonces = NewNonceManager(store, p.nonceLifetime)
	p.reconciler = NewReconciler(store, p.accountDomain, p.nameResolver)
	p.siwfVerifier = &channelVerifier{nonces: p.nonces, relay: p.relay, domain: p.domain}
	p.tokenVerifier = newQuickAuthVerifier(p.quickAuthURL, p.domain)

	go p.runSweeper(ctx)
	return nil
}

// From castauth.OptionProvider. Rate limits follow the abuse surface of each
// endpoint: channel creation and verification are expensive, status polling
// is frequent by design.
func (p *FarcasterPlugin) ServerOptions() []castauth.ServerOption {
	return []castauth.ServerOption{
		castauth.WithRateLimitedJSONHandler("/api/auth/farcaster/create-channel", p.handleCreateChannel, 10),
		castauth.WithRateLimitedJSONHandler("/api/auth/farcaster/channel-status", p.handleChannelStatus, 60),
		castauth.WithRateLimitedJSONHandler("/api/auth/farcaster/verify-signature", p.handleVerifySignature, 10),
		castauth.WithRateLimitedJSONHandler("/api/auth/farcaster/token", p.handleToken, 10),
		castauth.WithRateLimitedJSONHandler("/api/auth/farcaster/link", p.handleLink, 5),
		castauth.WithRateLimitedJSONHandler("/api/auth/farcaster/unlink", p.handleUnlink, 5),
		castauth.WithRateLimitedJSONHandler("/api/auth/farcaster/profile", p.handleProfile, 60),
	}
}

// NonceManager exposes the nonce manager so applications can pre-issue
// nonces for custom flows.
func (p *FarcasterPlugin) NonceManager() *NonceManager {
	return p.nonces
}

// domain returns the hostname signatures are bound to, scheme and port
// stripped.
func (p *FarcasterPlugin) domain(ctx context.Context) string {
	if p.domainName != "" {
		return p.domainName
	}
	address := castauth.AddressFromContext(ctx)
	if u, err := url.Parse(address); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return address
}

func (p *FarcasterPlugin) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Debug(ctx, "farcaster: nonce sweeper stopped")
			return
		case <-ticker.C:
			p.nonces.Sweep(ctx)
		}
	}
}

func (p *FarcasterPlugin) publish(topic string, userID string, fid uint64) {
	if p.bus != nil {
		p.bus.Publish(topic, LinkEvent{UserID: userID, FID: fid})
	}
}
