package farcaster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dpup/castauth/storage/memorystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTime(t *testing.T, now time.Time) {
	t.Helper()
	orig := timeFunc
	timeFunc = func() time.Time { return now }
	t.Cleanup(func() { timeFunc = orig })
}

func TestNonceManager_GenerateAndConsume(t *testing.T) {
	ctx := context.Background()
	m := NewNonceManager(memorystore.New(), 10*time.Minute)

	nonce, err := m.Generate(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	assert.True(t, m.Consume(ctx, nonce))
	assert.False(t, m.Consume(ctx, nonce), "a nonce can only be spent once")
}

func TestNonceManager_UnknownNonce(t *testing.T) {
	m := NewNonceManager(memorystore.New(), 10*time.Minute)
	assert.False(t, m.Consume(context.Background(), "never-issued"))
}

func TestNonceManager_Adopt(t *testing.T) {
	ctx := context.Background()
	m := NewNonceManager(memorystore.New(), 10*time.Minute)

	require.NoError(t, m.Adopt(ctx, "client-chosen"))
	assert.True(t, m.Consume(ctx, "client-chosen"))
	assert.False(t, m.Consume(ctx, "client-chosen"))
}

func TestNonceManager_AdoptRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewNonceManager(memorystore.New(), 10*time.Minute)

	start := time.Now()
	stubTime(t, start)
	require.NoError(t, m.Adopt(ctx, "n1"))

	// Re-adopting near the end of its life extends it.
	stubTime(t, start.Add(9*time.Minute))
	require.NoError(t, m.Adopt(ctx, "n1"))

	stubTime(t, start.Add(15*time.Minute))
	assert.True(t, m.Consume(ctx, "n1"))
}

func TestNonceManager_ExpiredNonceRejected(t *testing.T) {
	ctx := context.Background()
	m := NewNonceManager(memorystore.New(), 10*time.Minute)

	start := time.Now()
	stubTime(t, start)
	nonce, err := m.Generate(ctx)
	require.NoError(t, err)

	stubTime(t, start.Add(11*time.Minute))
	assert.False(t, m.Consume(ctx, nonce))

	// Expired nonces are removed when rejected, not left behind.
	assert.False(t, m.Consume(ctx, nonce))
}

func TestNonceManager_ConcurrentConsume(t *testing.T) {
	ctx := context.Background()
	m := NewNonceManager(memorystore.New(), 10*time.Minute)

	nonce, err := m.Generate(ctx)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results <- m.Consume(ctx, nonce)
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one caller should spend the nonce")
}

func TestNonceManager_Sweep(t *testing.T) {
	ctx := context.Background()
	m := NewNonceManager(memorystore.New(), 10*time.Minute)

	start := time.Now()
	stubTime(t, start)
	old, err := m.Generate(ctx)
	require.NoError(t, err)

	stubTime(t, start.Add(9*time.Minute))
	fresh, err := m.Generate(ctx)
	require.NoError(t, err)

	stubTime(t, start.Add(12*time.Minute))
	m.Sweep(ctx)

	assert.False(t, m.Consume(ctx, old))
	assert.True(t, m.Consume(ctx, fresh))
}
