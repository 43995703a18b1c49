package farcaster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dpup/castauth/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []PollerState
}

func (r *stateRecorder) record(s PollerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) all() []PollerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PollerState(nil), r.states...)
}

func newTestPoller(relay Relay, verify func(ctx context.Context, status *ChannelStatus) error, opts ...PollerOption) (*Poller, *stateRecorder) {
	rec := &stateRecorder{}
	opts = append([]PollerOption{
		WithPollInterval(2 * time.Millisecond),
		WithPollTimeout(time.Second),
		WithStateListener(rec.record),
	}, opts...)
	return NewPoller(relay, verify, opts...), rec
}

func waitDone(t *testing.T, p *Poller) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not reach a terminal state")
	}
}

func TestPoller_HappyPath(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			return &Channel{ChannelToken: "chan-1", URL: "https://farcaster.xyz/~/siwf?t=chan-1"}, nil
		},
		channelStatus: func(ctx context.Context, channelToken string) (*ChannelStatus, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 3 {
				return &ChannelStatus{State: ChannelStatePending}, nil
			}
			return &ChannelStatus{
				State:     ChannelStateCompleted,
				Message:   siwfMessage("abc"),
				Signature: "0x1",
				FID:       42,
			}, nil
		},
	}

	verified := false
	p, rec := newTestPoller(relay, func(ctx context.Context, status *ChannelStatus) error {
		verified = true
		assert.Equal(t, uint64(42), status.FID)
		return nil
	})

	require.NoError(t, p.Start(context.Background(), ChannelRequest{Domain: "example.com"}))
	assert.Equal(t, StateAwaitingApproval, p.State())
	assert.NotEmpty(t, p.ChannelURL())

	waitDone(t, p)
	assert.Equal(t, StateAuthenticated, p.State())
	assert.True(t, verified)
	assert.NoError(t, p.Err())
	assert.Empty(t, p.ChannelURL())

	assert.Equal(t, []PollerState{
		StateCreatingChannel,
		StateAwaitingApproval,
		StateVerifying,
		StateAuthenticated,
	}, rec.all())
}

func TestPoller_Timeout(t *testing.T) {
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			return &Channel{ChannelToken: "chan-1", URL: "u"}, nil
		},
		channelStatus: func(ctx context.Context, channelToken string) (*ChannelStatus, error) {
			return &ChannelStatus{State: ChannelStatePending}, nil
		},
	}

	var mu sync.Mutex
	var reported error
	p, _ := newTestPoller(relay, func(ctx context.Context, status *ChannelStatus) error {
		t.Fatal("verify should not run")
		return nil
	}, WithPollTimeout(20*time.Millisecond), WithErrorListener(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = err
	}))

	require.NoError(t, p.Start(context.Background(), ChannelRequest{}))
	waitDone(t, p)

	assert.Equal(t, StateTimedOut, p.State())
	assert.True(t, errors.Is(p.Err(), ErrChannelTimeout))
	assert.Equal(t, ReasonChannelTimeout, errors.Reason(p.Err()))

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, errors.Is(reported, ErrChannelTimeout))
}

func TestPoller_Expired(t *testing.T) {
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			return &Channel{ChannelToken: "chan-1", URL: "u"}, nil
		},
		channelStatus: func(ctx context.Context, channelToken string) (*ChannelStatus, error) {
			return nil, errors.Mark(ErrChannelExpired, 0)
		},
	}

	p, _ := newTestPoller(relay, nil)
	require.NoError(t, p.Start(context.Background(), ChannelRequest{}))
	waitDone(t, p)

	assert.Equal(t, StateExpired, p.State())
	assert.True(t, errors.Is(p.Err(), ErrChannelExpired))
}

func TestPoller_CancelWhileAwaiting(t *testing.T) {
	approved := make(chan struct{})
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			return &Channel{ChannelToken: "chan-1", URL: "u"}, nil
		},
		channelStatus: func(ctx context.Context, channelToken string) (*ChannelStatus, error) {
			// Approval arrives only after cancellation; the result must be
			// discarded.
			select {
			case <-approved:
				return &ChannelStatus{
					State:     ChannelStateCompleted,
					Message:   siwfMessage("abc"),
					Signature: "0x1",
					FID:       42,
				}, nil
			case <-time.After(50 * time.Millisecond):
				return &ChannelStatus{State: ChannelStatePending}, nil
			}
		},
	}

	p, _ := newTestPoller(relay, func(ctx context.Context, status *ChannelStatus) error {
		t.Error("verify should not run after cancellation")
		return nil
	})

	require.NoError(t, p.Start(context.Background(), ChannelRequest{}))
	p.Cancel()
	close(approved)
	waitDone(t, p)

	assert.Equal(t, StateCancelled, p.State())
	assert.NoError(t, p.Err())
	assert.Empty(t, p.ChannelURL())
}

func TestPoller_CancelOnlyWhileAwaiting(t *testing.T) {
	p, _ := newTestPoller(&fakeRelay{}, nil)
	p.Cancel()
	assert.Equal(t, StateIdle, p.State())
}

func TestPoller_TransientErrorsKeepPolling(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			return &Channel{ChannelToken: "chan-1", URL: "u"}, nil
		},
		channelStatus: func(ctx context.Context, channelToken string) (*ChannelStatus, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls < 3 {
				return nil, errors.New("relay hiccup")
			}
			return &ChannelStatus{
				State:     ChannelStateCompleted,
				Message:   siwfMessage("abc"),
				Signature: "0x1",
				FID:       42,
			}, nil
		},
	}

	p, _ := newTestPoller(relay, func(ctx context.Context, status *ChannelStatus) error { return nil })
	require.NoError(t, p.Start(context.Background(), ChannelRequest{}))
	waitDone(t, p)
	assert.Equal(t, StateAuthenticated, p.State())
}

func TestPoller_VerifyFailure(t *testing.T) {
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			return &Channel{ChannelToken: "chan-1", URL: "u"}, nil
		},
		channelStatus: func(ctx context.Context, channelToken string) (*ChannelStatus, error) {
			return &ChannelStatus{
				State:     ChannelStateCompleted,
				Message:   siwfMessage("abc"),
				Signature: "0x1",
				FID:       42,
			}, nil
		},
	}

	p, _ := newTestPoller(relay, func(ctx context.Context, status *ChannelStatus) error {
		return errors.Mark(ErrInvalidSignature, 0)
	})
	require.NoError(t, p.Start(context.Background(), ChannelRequest{}))
	waitDone(t, p)

	assert.Equal(t, StateFailed, p.State())
	assert.True(t, errors.Is(p.Err(), ErrInvalidSignature))
	assert.Equal(t, ReasonInvalidSignature, errors.Reason(p.Err()))

	// Failures outside verification are reported under a generic reason.
	p2, _ := newTestPoller(relay, func(ctx context.Context, status *ChannelStatus) error {
		return errors.New("session store unavailable")
	})
	require.NoError(t, p2.Start(context.Background(), ChannelRequest{}))
	waitDone(t, p2)
	assert.Equal(t, StateFailed, p2.State())
	assert.Equal(t, ReasonPollingFailed, errors.Reason(p2.Err()))
}

func TestPoller_CreateChannelFailure(t *testing.T) {
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			return nil, errors.New("relay down")
		},
	}

	p, _ := newTestPoller(relay, nil)
	err := p.Start(context.Background(), ChannelRequest{})
	require.Error(t, err)
	assert.Equal(t, StateFailed, p.State())
	waitDone(t, p)
}

func TestPoller_ExistingSessionShortCircuits(t *testing.T) {
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			t.Fatal("no channel should be created when a session exists")
			return nil, nil
		},
	}

	p, rec := newTestPoller(relay, nil, WithSessionCheck(func(ctx context.Context) bool { return true }))
	require.NoError(t, p.Start(context.Background(), ChannelRequest{}))
	waitDone(t, p)

	assert.Equal(t, StateAuthenticated, p.State())
	assert.Equal(t, []PollerState{StateCreatingChannel, StateAuthenticated}, rec.all())
}

func TestPoller_StartTwice(t *testing.T) {
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			return &Channel{ChannelToken: "chan-1", URL: "u"}, nil
		},
		channelStatus: func(ctx context.Context, channelToken string) (*ChannelStatus, error) {
			return &ChannelStatus{State: ChannelStatePending}, nil
		},
	}

	p, _ := newTestPoller(relay, nil)
	require.NoError(t, p.Start(context.Background(), ChannelRequest{}))
	require.Error(t, p.Start(context.Background(), ChannelRequest{}))
	p.Cancel()
	waitDone(t, p)
}

func TestPoller_Reset(t *testing.T) {
	relay := &fakeRelay{
		createChannel: func(ctx context.Context, req ChannelRequest) (*Channel, error) {
			return nil, errors.New("relay down")
		},
	}

	p, _ := newTestPoller(relay, nil)
	require.Error(t, p.Start(context.Background(), ChannelRequest{}))
	assert.Equal(t, StateFailed, p.State())

	p.Reset()
	assert.Equal(t, StateIdle, p.State())
	assert.NoError(t, p.Err())

	// Reset is a no-op mid-flight.
	relay.createChannel = func(ctx context.Context, req ChannelRequest) (*Channel, error) {
		return &Channel{ChannelToken: "chan-2", URL: "u"}, nil
	}
	relay.channelStatus = func(ctx context.Context, channelToken string) (*ChannelStatus, error) {
		return &ChannelStatus{State: ChannelStatePending}, nil
	}
	require.NoError(t, p.Start(context.Background(), ChannelRequest{}))
	p.Reset()
	assert.Equal(t, StateAwaitingApproval, p.State())
	p.Cancel()
	waitDone(t, p)
}
