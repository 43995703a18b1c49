package farcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/logging"
	"google.golang.org/grpc/codes"
)

// Credentials carries whatever proof the client presented. The channel flow
// uses Message/Signature/FID; the Quick Auth flow uses Token.
type Credentials struct {
	ChannelToken string
	Message      string
	Signature    string

	// FID the client claims to be signing in as. The verified FID must match.
	FID uint64

	// Profile fields the client claims; merged during reconciliation.
	Profile Profile

	// Token is a Quick Auth JWT issued by the Farcaster ecosystem.
	Token string
}

// VerifiedIdentity is the outcome of a successful verification.
type VerifiedIdentity struct {
	FID     uint64
	Profile Profile
}

// Verifier checks a set of credentials and returns the verified identity.
// Implementations share the reconciliation and session issuance path.
type Verifier interface {
	Verify(ctx context.Context, creds Credentials) (*VerifiedIdentity, error)
}

// channelVerifier implements the SIWF channel flow: spend the nonce embedded
// in the signed message, ask the relay to verify the signature against the
// deployment domain, then cross-check the claimed FID.
type channelVerifier struct {
	nonces *NonceManager
	relay  Relay
	domain func(ctx context.Context) string
}

func (v *channelVerifier) Verify(ctx context.Context, creds Credentials) (*VerifiedIdentity, error) {
	if creds.Message == "" || creds.Signature == "" || creds.FID == 0 {
		return nil, errors.NewC("message, signature and fid are required", codes.InvalidArgument)
	}

	nonce := parseNonce(creds.Message)
	if nonce == "" {
		return nil, errors.Mark(ErrInvalidSignature, 0).Append("message carries no nonce")
	}

	// The nonce is spent before the relay call. A replayed or expired nonce
	// is an authentication failure, never retryable.
	if !v.nonces.Consume(ctx, nonce) {
		return nil, errors.Mark(ErrInvalidSignature, 0).Append("nonce rejected")
	}

	result, err := v.relay.VerifySignature(ctx, VerifyRequest{
		Message:   creds.Message,
		Signature: creds.Signature,
		Domain:    v.domain(ctx),
		Nonce:     nonce,
	})
	if err != nil {
		logging.Warnw(ctx, "farcaster: relay verification errored", "error", err)
		return nil, errors.Mark(ErrInvalidSignature, 0)
	}
	if !result.Success {
		return nil, errors.Mark(ErrInvalidSignature, 0)
	}

	if result.FID != creds.FID {
		return nil, errors.Mark(ErrFIDMismatch, 0).
			Append(fmt.Sprintf("verified %d, claimed %d", result.FID, creds.FID))
	}

	return &VerifiedIdentity{FID: result.FID, Profile: creds.Profile}, nil
}

// parseNonce extracts the nonce line from a SIWE-style message.
func parseNonce(message string) string {
	for _, line := range strings.Split(message, "\n") {
		if rest, ok := strings.CutPrefix(line, "Nonce: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// quickAuthVerifier implements the Quick Auth JWT flow by introspecting the
// token against the Quick Auth server, bound to the deployment domain.
type quickAuthVerifier struct {
	baseURL string
	client  *http.Client
	domain  func(ctx context.Context) string
}

func newQuickAuthVerifier(baseURL string, domain func(ctx context.Context) string) *quickAuthVerifier {
	return &quickAuthVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		domain:  domain,
	}
}

type quickAuthRequest struct {
	Token  string `json:"token"`
	Domain string `json:"domain"`
}

type quickAuthResponse struct {
	Valid bool   `json:"valid"`
	FID   uint64 `json:"fid"`
}

func (v *quickAuthVerifier) Verify(ctx context.Context, creds Credentials) (*VerifiedIdentity, error) {
	if creds.Token == "" {
		return nil, errors.NewC("token is required", codes.InvalidArgument)
	}

	b, err := json.Marshal(quickAuthRequest{Token: creds.Token, Domain: v.domain(ctx)})
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify", bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, 0).
			WithCode(codes.Internal).
			WithReason(ReasonTokenFetchFailed).
			WithPublicMessage("token verification unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewR("quick auth server returned an error", codes.Internal, ReasonTokenFetchFailed).
			Append(resp.Status).
			WithPublicMessage("token verification unavailable")
	}

	var result quickAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, 0).
			WithCode(codes.Internal).
			WithReason(ReasonTokenFetchFailed).
			WithPublicMessage("token verification unavailable")
	}
	if !result.Valid || result.FID == 0 {
		return nil, errors.Mark(ErrTokenVerification, 0)
	}

	if creds.FID != 0 && result.FID != creds.FID {
		return nil, errors.Mark(ErrFIDMismatch, 0).
			Append(fmt.Sprintf("verified %d, claimed %d", result.FID, creds.FID))
	}

	return &VerifiedIdentity{FID: result.FID, Profile: creds.Profile}, nil
}
