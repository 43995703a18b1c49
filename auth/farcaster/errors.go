package farcaster

import (
	"github.com/dpup/castauth/errors"
	"google.golang.org/grpc/codes"
)

// Machine-readable reasons returned to clients alongside error codes.
const (
	ReasonInvalidSignature = "INVALID_SIGNATURE"
	ReasonChannelExpired   = "CHANNEL_EXPIRED"
	ReasonChannelTimeout   = "CHANNEL_TIMEOUT"
	ReasonFIDMismatch      = "FID_MISMATCH"
	ReasonNetworkError     = "NETWORK_ERROR"
	ReasonPollingFailed    = "POLLING_FAILED"
	ReasonTokenFetchFailed = "TOKEN_FETCH_FAILED"
)

var (
	// The relay rejected the signed message, or the nonce backing it was
	// unknown, expired, or already spent.
	ErrInvalidSignature = errors.NewR("signature verification failed", codes.Unauthenticated, ReasonInvalidSignature)

	// The relay reported the channel as expired or unknown. Callers should
	// stop polling and start a fresh channel.
	ErrChannelExpired = errors.NewR("channel has expired", codes.InvalidArgument, ReasonChannelExpired)

	// The sign-in attempt ran past its wall-clock deadline without approval.
	ErrChannelTimeout = errors.NewR("sign-in timed out waiting for approval", codes.DeadlineExceeded, ReasonChannelTimeout)

	// The verified FID does not match the FID the client claimed.
	ErrFIDMismatch = errors.NewR("verified account does not match the claimed account", codes.Unauthenticated, ReasonFIDMismatch)

	// Post-verification processing failed during polling.
	ErrPollingFailed = errors.NewR("sign-in could not be completed", codes.Internal, ReasonPollingFailed)

	// The Quick Auth server rejected or could not check the token.
	ErrTokenVerification = errors.NewR("token verification failed", codes.Unauthenticated, ReasonTokenFetchFailed)

	// A Farcaster account is already linked to a different user.
	ErrAlreadyLinked = errors.NewC("already linked to another user", codes.InvalidArgument)

	// The user has no Farcaster account linked.
	ErrNotLinked = errors.NewC("no Farcaster account linked", codes.InvalidArgument)
)
