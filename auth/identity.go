package auth

import (
	"context"
	"time"

	"github.com/dpup/castauth"
	"github.com/dpup/castauth/errors"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/codes"
)

// Leeway for JWT expiration checks.
const jwtLeeway = 5 * time.Second

// Identity describes the authenticated caller, as encoded in a session token.
type Identity struct {
	// Unique identifier for the session that authenticated the identity. Maps
	// to the `jti` JWT claim.
	SessionID string

	// The time at which the identity was authenticated. Maps to the
	// `auth_time` JWT claim.
	AuthTime time.Time

	// Local user ID. Maps to the `sub` JWT claim.
	UserID string

	// Name of the identity provider used to authenticate the user. Maps to
	// the custom `idp` JWT claim.
	Provider string

	// The email address on the user record, if available. Maps to the `email`
	// JWT claim.
	Email string

	// Whether the email address has been verified. Maps to the
	// `email_verified` JWT claim.
	EmailVerified bool

	// Display name on the user record, if available. Maps to the `name` JWT
	// claim.
	Name string
}

// IdentityToken creates a signed JWT for the given identity, valid for ttl.
func IdentityToken(ctx context.Context, identity Identity, ttl time.Duration) (string, error) {
	// Both issuer and audience are set to the current server, indicating that
	// the token was created by this server and is only intended to be used
	// for this server.
	address := castauth.AddressFromContext(ctx)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.SessionID,
			Subject:   identity.UserID,
			Audience:  jwt.ClaimStrings{address},
			Issuer:    address,
			IssuedAt:  jwt.NewNumericDate(timeFunc()),
			ExpiresAt: jwt.NewNumericDate(timeFunc().Add(ttl)),
		},
		Name:          identity.Name,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		Provider:      identity.Provider,
		AuthTime:      jwt.NewNumericDate(identity.AuthTime),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(signingKeyFromContext(ctx))
	if err != nil {
		return "", errors.Wrap(err, 0).WithCode(codes.Unauthenticated)
	}
	return ss, nil
}

// ParseIdentityToken takes a signed JWT, validates it, and returns the
// identity information encoded within. Invalid and expired tokens error.
func ParseIdentityToken(ctx context.Context, tokenString string) (Identity, error) {
	address := castauth.AddressFromContext(ctx)

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			return signingKeyFromContext(ctx), nil
		},
		jwt.WithIssuer(address),
		jwt.WithAudience(address),
		jwt.WithLeeway(jwtLeeway),
		jwt.WithTimeFunc(timeFunc),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return Identity{}, errors.Wrap(err, 0).WithCode(codes.Unauthenticated)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, errors.Mark(ErrInvalidToken, 0).Append("invalid claims")
	}
	if err := claims.Validate(); err != nil {
		return Identity{}, err
	}

	return Identity{
		Provider:      claims.Provider,
		SessionID:     claims.ID,
		AuthTime:      claims.AuthTime.Time,
		UserID:        claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	}, nil
}
