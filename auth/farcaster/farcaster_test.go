package farcaster

import (
	"context"
	"testing"
	"time"

	"github.com/dpup/castauth"
	"github.com/dpup/castauth/auth"
	"github.com/dpup/castauth/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginDeps(t *testing.T) {
	p := Plugin()
	assert.Equal(t, PluginName, p.Name())
	assert.Equal(t, []string{auth.PluginName, storage.PluginName}, p.Deps())
	assert.Equal(t, []string{"eventbus"}, p.OptDeps())
}

func TestPluginInit_RequiresAuth(t *testing.T) {
	r := &castauth.Registry{}
	r.Register(storage.Plugin(nil))
	r.Register(Plugin())
	require.Error(t, r.Init(context.Background()))
}

func TestPluginOptions(t *testing.T) {
	p := Plugin(
		WithRelayURL("https://relay.example.com"),
		WithQuickAuthURL("https://qa.example.com"),
		WithDomain("example.com"),
		WithAccountDomain("accounts.example.com"),
		WithNonceLifetime(time.Minute),
	)
	assert.Equal(t, "https://relay.example.com", p.relayURL)
	assert.Equal(t, "https://qa.example.com", p.quickAuthURL)
	assert.Equal(t, "example.com", p.domainName)
	assert.Equal(t, "accounts.example.com", p.accountDomain)
	assert.Equal(t, time.Minute, p.nonceLifetime)
}

func TestDomain(t *testing.T) {
	t.Run("Explicit", func(t *testing.T) {
		p := Plugin(WithDomain("example.com"))
		ctx := castauth.WithAddress(context.Background(), "http://localhost:8000")
		assert.Equal(t, "example.com", p.domain(ctx))
	})

	t.Run("DerivedFromAddress", func(t *testing.T) {
		p := Plugin()
		ctx := castauth.WithAddress(context.Background(), "https://app.example.com:8443")
		assert.Equal(t, "app.example.com", p.domain(ctx))
	})

	t.Run("LocalAddress", func(t *testing.T) {
		p := Plugin()
		ctx := castauth.WithAddress(context.Background(), "http://localhost:8000")
		assert.Equal(t, "localhost", p.domain(ctx))
	})
}

func TestServerOptions(t *testing.T) {
	f := newTestFixture(t)
	assert.Len(t, f.plugin.ServerOptions(), 7)
}
