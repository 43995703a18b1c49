package farcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/dpup/castauth/errors"
	"google.golang.org/grpc/codes"
)

// ChannelRequest holds the parameters for opening a sign-in channel.
type ChannelRequest struct {
	// Domain the signature will be bound to, hostname only.
	Domain string `json:"domain"`

	// SIWEURI identifies the login resource presented to the user.
	SIWEURI string `json:"siweUri"`

	// Nonce is optional; the relay generates one when absent.
	Nonce string `json:"nonce,omitempty"`

	NotBefore      string `json:"notBefore,omitempty"`
	ExpirationTime string `json:"expirationTime,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
}

// Channel is the relay's handle for an in-progress sign-in attempt.
type Channel struct {
	ChannelToken string `json:"channelToken"`

	// URL encodes the approval deep link, usually rendered as a QR code.
	URL   string `json:"url"`
	Nonce string `json:"nonce"`
}

// ChannelState reported by the relay.
type ChannelState string

const (
	ChannelStatePending   ChannelState = "pending"
	ChannelStateCompleted ChannelState = "completed"
)

// ChannelStatus is the relay's report for a channel. Message, Signature and
// FID are populated once the user has approved the sign-in.
type ChannelStatus struct {
	State     ChannelState `json:"state"`
	Nonce     string       `json:"nonce"`
	Message   string       `json:"message,omitempty"`
	Signature string       `json:"signature,omitempty"`
	FID       uint64       `json:"fid,omitempty"`

	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PfpURL      string `json:"pfpUrl,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// Completed reports whether the channel has everything needed to verify.
func (s *ChannelStatus) Completed() bool {
	return s.State == ChannelStateCompleted && s.Message != "" && s.Signature != "" && s.FID != 0
}

// Profile returns the descriptive fields the approving client claimed.
func (s *ChannelStatus) Profile() Profile {
	return Profile{
		Username:    s.Username,
		DisplayName: s.DisplayName,
		PfpURL:      s.PfpURL,
		Bio:         s.Bio,
	}
}

// VerifyRequest asks the relay to check a signed sign-in message.
type VerifyRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Domain    string `json:"domain"`
	Nonce     string `json:"nonce"`
}

// VerifyResult is the relay's verdict on a signed message.
type VerifyResult struct {
	Success bool   `json:"success"`
	FID     uint64 `json:"fid"`
}

// Relay brokers channel creation, status polling, and signature verification
// against the external Farcaster relay service.
type Relay interface {
	CreateChannel(ctx context.Context, req ChannelRequest) (*Channel, error)
	ChannelStatus(ctx context.Context, channelToken string) (*ChannelStatus, error)
	VerifySignature(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}

// NewRelay returns a Relay that talks to an HTTP relay service such as the
// public deployment at https://relay.farcaster.xyz.
func NewRelay(baseURL string) Relay {
	return &httpRelay{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type httpRelay struct {
	baseURL string
	client  *http.Client
}

func (r *httpRelay) CreateChannel(ctx context.Context, req ChannelRequest) (*Channel, error) {
	var channel Channel
	if err := r.post(ctx, "/v1/channel", "", req, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

func (r *httpRelay) ChannelStatus(ctx context.Context, channelToken string) (*ChannelStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/v1/channel/status", nil)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}
	httpReq.Header.Set("Authorization", "Bearer "+channelToken)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, networkError(err)
	}
	defer resp.Body.Close()

	// The relay reports expired or unknown channel tokens with a structured
	// status rather than an error payload string.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusGone {
		return nil, errors.Mark(ErrChannelExpired, 0)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, relayError(resp)
	}

	var status ChannelStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, networkError(err)
	}
	return &status, nil
}

func (r *httpRelay) VerifySignature(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var result VerifyResult
	if err := r.post(ctx, "/v1/verify", "", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *httpRelay) post(ctx context.Context, path, bearer string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, 0)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return relayError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return networkError(err)
	}
	return nil
}

func networkError(err error) error {
	return errors.Wrap(err, 1).
		WithCode(codes.Internal).
		WithReason(ReasonNetworkError).
		WithPublicMessage("relay request failed")
}

func relayError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return errors.NewR("relay returned an error", codes.Internal, ReasonNetworkError).
		Append(resp.Status).
		Append(string(body)).
		WithPublicMessage("relay request failed")
}
