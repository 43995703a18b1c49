package auth

import (
	"context"
	"time"

	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/storage"
)

// User is a locally stored account. Identity providers reconcile external
// identities onto this record; a Farcaster account is represented by the
// optional FID field, which is unique across users when present.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
	Bio           string

	// Farcaster ID linked to this account, nil when no account is linked.
	FID *uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Implements storage.Model.
func (u User) PK() string {
	return u.ID
}

// FindUserByFID returns the user linked to the given Farcaster ID, or
// storage.ErrNotFound when no user has claimed it.
func FindUserByFID(ctx context.Context, store storage.Store, fid uint64) (*User, error) {
	var users []User
	if err := store.List(ctx, &users, User{FID: &fid}); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, errors.Mark(storage.ErrNotFound, 0)
	}
	return &users[0], nil
}
