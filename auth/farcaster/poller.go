package farcaster

import (
	"context"
	"sync"
	"time"

	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/logging"
)

// PollerState describes where a sign-in attempt is in its lifecycle.
type PollerState string

const (
	StateIdle             PollerState = "idle"
	StateCreatingChannel  PollerState = "creating_channel"
	StateAwaitingApproval PollerState = "awaiting_approval"
	StateVerifying        PollerState = "verifying"
	StateAuthenticated    PollerState = "authenticated"
	StateExpired          PollerState = "expired"
	StateTimedOut         PollerState = "timed_out"
	StateCancelled        PollerState = "cancelled"
	StateFailed           PollerState = "failed"
)

// terminal reports whether a state ends the attempt.
func (s PollerState) terminal() bool {
	switch s {
	case StateAuthenticated, StateExpired, StateTimedOut, StateCancelled, StateFailed:
		return true
	}
	return false
}

const (
	defaultPollInterval = 2 * time.Second
)

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollInterval overrides the delay between status checks.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.interval = d
	}
}

// WithPollTimeout overrides the wall-clock limit for an attempt, measured
// from channel creation.
func WithPollTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.timeout = d
	}
}

// WithSessionCheck installs a probe that short-circuits an attempt when a
// session already exists, for example one issued in another tab.
func WithSessionCheck(fn func(ctx context.Context) bool) PollerOption {
	return func(p *Poller) {
		p.checkSession = fn
	}
}

// WithStateListener registers a callback invoked on every state change.
// Callbacks run on the polling goroutine; keep them short.
func WithStateListener(fn func(state PollerState)) PollerOption {
	return func(p *Poller) {
		p.onStateChange = fn
	}
}

// WithErrorListener registers a callback invoked when an attempt ends in an
// error state.
func WithErrorListener(fn func(err error)) PollerOption {
	return func(p *Poller) {
		p.onError = fn
	}
}

// Poller drives a sign-in attempt from channel creation through approval to
// verification. It is a client of the same relay the HTTP handlers use and
// is intended for server-rendered or headless integrations; browser clients
// typically poll the channel-status endpoint themselves.
//
// Status checks run strictly one at a time: the next check is scheduled only
// after the previous one has settled.
type Poller struct {
	relay        Relay
	verify       func(ctx context.Context, status *ChannelStatus) error
	checkSession func(ctx context.Context) bool

	interval      time.Duration
	timeout       time.Duration
	onStateChange func(state PollerState)
	onError       func(err error)

	mu        sync.Mutex
	state     PollerState
	channel   *Channel
	startedAt time.Time
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPoller returns an idle poller. The verify callback receives the
// completed channel status and performs signature verification plus whatever
// the integration does with the result.
func NewPoller(relay Relay, verify func(ctx context.Context, status *ChannelStatus) error, opts ...PollerOption) *Poller {
	p := &Poller{
		relay:    relay,
		verify:   verify,
		interval: defaultPollInterval,
		timeout:  defaultChannelTimeout,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error that moved the poller into a failure state, nil
// otherwise.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// ChannelURL returns the approval URL while an attempt is in flight, empty
// otherwise.
func (p *Poller) ChannelURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return ""
	}
	return p.channel.URL
}

// Done returns a channel closed when the current attempt reaches a terminal
// state. Nil when no attempt has been started.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Start begins a sign-in attempt. Only an idle poller can be started; a
// poller in a terminal state must be Reset first.
func (p *Poller) Start(ctx context.Context, req ChannelRequest) error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return errors.New("poller: attempt already in progress")
	}
	p.setStateLocked(StateCreatingChannel)
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	if p.checkSession != nil && p.checkSession(ctx) {
		p.mu.Lock()
		p.setStateLocked(StateAuthenticated)
		p.mu.Unlock()
		close(done)
		return nil
	}

	channel, err := p.relay.CreateChannel(ctx, req)
	if err != nil {
		p.finish(StateFailed, err)
		close(done)
		return err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	startedAt := timeFunc()

	p.mu.Lock()
	p.channel = channel
	p.startedAt = startedAt
	p.cancel = cancel
	p.setStateLocked(StateAwaitingApproval)
	p.mu.Unlock()

	go p.poll(pollCtx, channel, startedAt, done)
	return nil
}

// Cancel abandons an attempt awaiting approval. No-op in any other state.
// Cancellation is purely local; the relay channel is left to expire on its
// own.
func (p *Poller) Cancel() {
	p.mu.Lock()
	if p.state != StateAwaitingApproval {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.setStateLocked(StateCancelled)
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset returns a poller in a terminal state to idle so it can be reused.
func (p *Poller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.terminal() {
		return
	}
	p.state = StateIdle
	p.channel = nil
	p.err = nil
	p.cancel = nil
	p.done = nil
}

func (p *Poller) poll(ctx context.Context, channel *Channel, startedAt time.Time, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.finish(StateCancelled, nil)
			return
		case <-timer.C:
		}

		if timeFunc().Sub(startedAt) >= p.timeout {
			p.finish(StateTimedOut, errors.Mark(ErrChannelTimeout, 0))
			return
		}

		status, err := p.relay.ChannelStatus(ctx, channel.ChannelToken)

		// A result that arrives after cancellation is discarded.
		if ctx.Err() != nil {
			p.finish(StateCancelled, nil)
			return
		}

		switch {
		case errors.Is(err, ErrChannelExpired):
			p.finish(StateExpired, err)
			return
		case err != nil:
			// Transient relay trouble; keep polling until the timeout.
			logging.Warnw(ctx, "farcaster: channel status check failed", "error", err)
		case status.Completed():
			p.mu.Lock()
			p.setStateLocked(StateVerifying)
			p.mu.Unlock()

			verr := p.verify(ctx, status)
			if ctx.Err() != nil {
				p.finish(StateCancelled, nil)
				return
			}
			if verr != nil {
				// Verification errors carry their own reason; anything else
				// that broke post-approval processing is reported uniformly.
				if errors.Reason(verr) == "" {
					verr = errors.Mark(ErrPollingFailed, 0).Append(verr.Error())
				}
				p.finish(StateFailed, verr)
				return
			}
			p.finish(StateAuthenticated, nil)
			return
		}

		timer.Reset(p.interval)
	}
}

// finish moves to a terminal state unless cancellation already did.
func (p *Poller) finish(state PollerState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.terminal() {
		return
	}
	p.err = err
	p.channel = nil
	p.setStateLocked(state)
	if err != nil && p.onError != nil {
		p.onError(err)
	}
}

func (p *Poller) setStateLocked(state PollerState) {
	if p.state == state {
		return
	}
	p.state = state
	if state.terminal() {
		p.channel = nil
	}
	if p.onStateChange != nil {
		p.onStateChange(state)
	}
}
