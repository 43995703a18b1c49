package farcaster

import (
	"context"
	"fmt"

	"github.com/dpup/castauth/auth"
	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/storage"
	"github.com/google/uuid"
)

// Profile carries the descriptive fields of a Farcaster account. The FID
// itself is immutable; these fields are refreshed on each verification.
type Profile struct {
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	PfpURL      string `json:"pfpUrl,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

// NameResolver optionally overrides the display name used when creating a
// user for a previously unseen FID.
type NameResolver func(ctx context.Context, fid uint64) (string, error)

// Reconciler maps verified FIDs onto local user records.
//
// FID-to-user binding is exclusive: at most one user holds a given FID. The
// lookup before create/link leaves a small check-to-write race window; the
// storage layer's uniqueness enforcement, where available, is the backstop.
type Reconciler struct {
	store         storage.Store
	accountDomain string
	resolveName   NameResolver
}

// NewReconciler returns a reconciler that synthesizes placeholder emails
// under accountDomain for users created from a FID.
func NewReconciler(store storage.Store, accountDomain string, resolveName NameResolver) *Reconciler {
	return &Reconciler{store: store, accountDomain: accountDomain, resolveName: resolveName}
}

// Reconcile finds or creates the local user for a verified FID. Existing
// users have changed profile fields merged in; new users are created with a
// deterministic placeholder email and emailVerified set, since the FID proof
// substitutes for email verification.
func (r *Reconciler) Reconcile(ctx context.Context, fid uint64, profile Profile) (*auth.User, error) {
	user, err := auth.FindUserByFID(ctx, r.store, fid)
	if err == nil {
		return r.mergeProfile(ctx, user, profile)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrap(err, 0)
	}
	return r.createUser(ctx, fid, profile)
}

// Link attaches a FID to an existing, authenticated user. Fails when the FID
// is already bound to a different user; idempotent when it is bound to the
// same user.
func (r *Reconciler) Link(ctx context.Context, userID string, fid uint64, profile Profile) (*auth.User, error) {
	existing, err := auth.FindUserByFID(ctx, r.store, fid)
	if err == nil {
		if existing.ID != userID {
			return nil, errors.Mark(ErrAlreadyLinked, 0)
		}
		return r.mergeProfile(ctx, existing, profile)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrap(err, 0)
	}

	var user auth.User
	if err := r.store.Read(ctx, userID, &user); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	user.FID = &fid
	applyProfile(&user, profile)
	user.UpdatedAt = timeFunc()
	if err := r.store.Update(ctx, user); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return &user, nil
}

// Unlink clears the FID on a user. Fails when no account is linked.
func (r *Reconciler) Unlink(ctx context.Context, userID string) (*auth.User, error) {
	var user auth.User
	if err := r.store.Read(ctx, userID, &user); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	if user.FID == nil {
		return nil, errors.Mark(ErrNotLinked, 0)
	}
	user.FID = nil
	user.UpdatedAt = timeFunc()
	if err := r.store.Update(ctx, user); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return &user, nil
}

// mergeProfile writes the user back only when a profile field actually
// changed. The FID is never altered here.
func (r *Reconciler) mergeProfile(ctx context.Context, user *auth.User, profile Profile) (*auth.User, error) {
	if !applyProfile(user, profile) {
		return user, nil
	}
	user.UpdatedAt = timeFunc()
	if err := r.store.Update(ctx, user); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return user, nil
}

func applyProfile(user *auth.User, profile Profile) bool {
	changed := false
	if name := profile.DisplayName; name != "" && name != user.Name {
		user.Name = name
		changed = true
	}
	if profile.PfpURL != "" && profile.PfpURL != user.AvatarURL {
		user.AvatarURL = profile.PfpURL
		changed = true
	}
	if profile.Bio != "" && profile.Bio != user.Bio {
		user.Bio = profile.Bio
		changed = true
	}
	return changed
}

func (r *Reconciler) createUser(ctx context.Context, fid uint64, profile Profile) (*auth.User, error) {
	name := ""
	if r.resolveName != nil {
		resolved, err := r.resolveName(ctx, fid)
		if err != nil {
			return nil, errors.Wrap(err, 0)
		}
		name = resolved
	}
	if name == "" {
		name = profile.DisplayName
	}
	if name == "" {
		name = profile.Username
	}
	if name == "" {
		name = fmt.Sprintf("Farcaster User %d", fid)
	}

	now := timeFunc()
	user := &auth.User{
		ID:            uuid.NewString(),
		Email:         fmt.Sprintf("%d@%s", fid, r.accountDomain),
		EmailVerified: true,
		Name:          name,
		AvatarURL:     profile.PfpURL,
		Bio:           profile.Bio,
		FID:           &fid,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.store.Create(ctx, user); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	return user, nil
}
