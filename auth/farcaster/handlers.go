package farcaster

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/dpup/castauth"
	"github.com/dpup/castauth/auth"
	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/logging"
	"google.golang.org/grpc/codes"
)

type createChannelRequest struct {
	// Nonce lets the client bind a nonce it already embedded in app state.
	// When absent the server generates one.
	Nonce string `json:"nonce,omitempty"`

	NotBefore      string `json:"notBefore,omitempty"`
	ExpirationTime string `json:"expirationTime,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
}

type createChannelResponse struct {
	ChannelToken string `json:"channelToken"`
	URL          string `json:"url"`
	Nonce        string `json:"nonce"`
}

type channelStatusRequest struct {
	ChannelToken string `json:"channelToken"`
}

type verifySignatureRequest struct {
	ChannelToken string `json:"channelToken,omitempty"`
	Message      string `json:"message"`
	Signature    string `json:"signature"`
	FID          uint64 `json:"fid"`
	Username     string `json:"username,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	PfpURL       string `json:"pfpUrl,omitempty"`
	Bio          string `json:"bio,omitempty"`
	RememberMe   bool   `json:"rememberMe,omitempty"`
}

func (r verifySignatureRequest) credentials() Credentials {
	return Credentials{
		ChannelToken: r.ChannelToken,
		Message:      r.Message,
		Signature:    r.Signature,
		FID:          r.FID,
		Profile: Profile{
			Username:    r.Username,
			DisplayName: r.DisplayName,
			PfpURL:      r.PfpURL,
			Bio:         r.Bio,
		},
	}
}

type tokenRequest struct {
	Token      string `json:"token"`
	FID        uint64 `json:"fid,omitempty"`
	RememberMe bool   `json:"rememberMe,omitempty"`
}

type authResponse struct {
	Success bool        `json:"success"`
	User    userView    `json:"user"`
	Session sessionView `json:"session"`
}

// sessionView describes the issued session, including the bearer token the
// client presents on subsequent requests.
type sessionView struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type linkResponse struct {
	Success bool     `json:"success"`
	User    userView `json:"user"`
}

type profileResponse struct {
	FID  uint64   `json:"fid"`
	User userView `json:"user"`
}

// userView is the subset of a user record returned to clients.
type userView struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	AvatarURL string  `json:"avatarUrl,omitempty"`
	Bio       string  `json:"bio,omitempty"`
	FID       *uint64 `json:"fid,omitempty"`
}

func viewOf(u *auth.User) userView {
	return userView{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
		FID:       u.FID,
	}
}

// decodeBody parses a JSON request body. An empty body is treated as an
// empty object; downstream required-field checks produce the real errors.
func decodeBody(req *http.Request, out any) error {
	if req.Body == nil {
		return nil
	}
	if err := json.NewDecoder(req.Body).Decode(out); err != nil && err != io.EOF {
		return errors.Wrap(err, 0).
			WithCode(codes.InvalidArgument).
			WithPublicMessage("invalid request body")
	}
	return nil
}

// handleCreateChannel opens a relay channel for a new sign-in attempt and
// registers the nonce it will be verified against.
func (p *FarcasterPlugin) handleCreateChannel(req *http.Request) (any, error) {
	ctx := req.Context()

	var body createChannelRequest
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}

	var nonce string
	var err error
	if body.Nonce != "" {
		nonce = body.Nonce
		err = p.nonces.Adopt(ctx, nonce)
	} else {
		nonce, err = p.nonces.Generate(ctx)
	}
	if err != nil {
		return nil, err
	}

	channel, err := p.relay.CreateChannel(ctx, ChannelRequest{
		Domain:         p.domain(ctx),
		SIWEURI:        castauth.AddressFromContext(ctx),
		Nonce:          nonce,
		NotBefore:      body.NotBefore,
		ExpirationTime: body.ExpirationTime,
		RequestID:      body.RequestID,
	})
	if err != nil {
		return nil, err
	}

	// Some relay deployments mint their own nonce regardless of the request.
	// Track whichever nonce ends up in the signed message.
	if channel.Nonce != "" && channel.Nonce != nonce {
		if err := p.nonces.Adopt(ctx, channel.Nonce); err != nil {
			return nil, err
		}
		nonce = channel.Nonce
	}

	return createChannelResponse{
		ChannelToken: channel.ChannelToken,
		URL:          channel.URL,
		Nonce:        nonce,
	}, nil
}

// handleChannelStatus reports the relay's view of a channel. Expired channels
// surface as a CHANNEL_EXPIRED error rather than a status value.
func (p *FarcasterPlugin) handleChannelStatus(req *http.Request) (any, error) {
	var body channelStatusRequest
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if body.ChannelToken == "" {
		return nil, errors.NewC("channelToken is required", codes.InvalidArgument)
	}
	return p.relay.ChannelStatus(req.Context(), body.ChannelToken)
}

// handleVerifySignature completes the channel flow: verify the signed
// message, reconcile the FID onto a local user, and issue a session.
func (p *FarcasterPlugin) handleVerifySignature(req *http.Request) (any, error) {
	var body verifySignatureRequest
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	return p.authenticate(req, p.siwfVerifier, body.credentials(), ProviderFarcaster, body.RememberMe)
}

// handleToken is the Quick Auth variant: a JWT minted in a miniapp context is
// introspected instead of a signed message.
func (p *FarcasterPlugin) handleToken(req *http.Request) (any, error) {
	var body tokenRequest
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}
	if body.Token == "" {
		return nil, errors.NewC("token is required", codes.InvalidArgument)
	}
	return p.authenticate(req, p.tokenVerifier, Credentials{
		Token: body.Token,
		FID:   body.FID,
	}, ProviderQuickAuth, body.RememberMe)
}

func (p *FarcasterPlugin) authenticate(req *http.Request, verifier Verifier, creds Credentials, provider string, rememberMe bool) (any, error) {
	ctx := req.Context()

	identity, err := verifier.Verify(ctx, creds)
	if err != nil {
		return nil, err
	}

	user, err := p.reconciler.Reconcile(ctx, identity.FID, identity.Profile)
	if err != nil {
		return nil, err
	}

	session, token, err := p.auth.IssueSession(ctx, user, provider, rememberMe)
	if err != nil {
		return nil, err
	}

	logging.Infow(ctx, "farcaster: sign-in completed",
		"fid", identity.FID, "user", user.ID, "provider", provider)

	return authResponse{
		Success: true,
		User:    viewOf(user),
		Session: sessionView{
			ID:        session.ID,
			Token:     token,
			ExpiresAt: session.ExpiresAt,
		},
	}, nil
}

// handleLink attaches a verified FID to the already signed-in user. The
// caller proves control of the Farcaster account with a fresh channel flow.
func (p *FarcasterPlugin) handleLink(req *http.Request) (any, error) {
	ctx := req.Context()

	identity, err := p.auth.VerifyRequest(req)
	if err != nil {
		return nil, err
	}

	var body verifySignatureRequest
	if err := decodeBody(req, &body); err != nil {
		return nil, err
	}

	verified, err := p.siwfVerifier.Verify(ctx, body.credentials())
	if err != nil {
		return nil, err
	}

	user, err := p.reconciler.Link(ctx, identity.UserID, verified.FID, verified.Profile)
	if err != nil {
		return nil, err
	}

	p.publish(LinkedEvent, user.ID, verified.FID)
	logging.Infow(ctx, "farcaster: account linked", "fid", verified.FID, "user", user.ID)

	return linkResponse{Success: true, User: viewOf(user)}, nil
}

// handleUnlink removes the FID from the signed-in user's account. The
// session itself stays valid.
func (p *FarcasterPlugin) handleUnlink(req *http.Request) (any, error) {
	ctx := req.Context()

	identity, err := p.auth.VerifyRequest(req)
	if err != nil {
		return nil, err
	}

	var before auth.User
	if err := p.store.Read(ctx, identity.UserID, &before); err != nil {
		return nil, errors.Wrap(err, 0)
	}

	user, err := p.reconciler.Unlink(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	if before.FID != nil {
		p.publish(UnlinkedEvent, user.ID, *before.FID)
	}
	logging.Infow(ctx, "farcaster: account unlinked", "user", user.ID)

	return linkResponse{Success: true, User: viewOf(user)}, nil
}

// handleProfile returns the linked Farcaster identity for the signed-in
// user.
func (p *FarcasterPlugin) handleProfile(req *http.Request) (any, error) {
	user, _, err := p.auth.CurrentUser(req)
	if err != nil {
		return nil, err
	}
	if user.FID == nil {
		return nil, errors.Mark(ErrNotLinked, 0)
	}
	return profileResponse{FID: *user.FID, User: viewOf(user)}, nil
}
