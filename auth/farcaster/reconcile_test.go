package farcaster

import (
	"context"
	"testing"
	"time"

	"github.com/dpup/castauth/auth"
	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/storage"
	"github.com/dpup/castauth/storage/memorystore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler(store storage.Store) *Reconciler {
	return NewReconciler(store, "fid.test", nil)
}

func seedUser(t *testing.T, store storage.Store, fid *uint64) *auth.User {
	t.Helper()
	now := time.Now()
	user := &auth.User{
		ID:        uuid.NewString(),
		Email:     "existing@example.com",
		Name:      "Existing User",
		FID:       fid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(context.Background(), user))
	return user
}

func TestReconcile_CreatesUser(t *testing.T) {
	ctx := context.Background()
	store := memorystore.New()
	r := newTestReconciler(store)

	user, err := r.Reconcile(ctx, 42, Profile{
		Username:    "alice",
		DisplayName: "Alice",
		PfpURL:      "https://img.example.com/alice.png",
		Bio:         "gm",
	})
	require.NoError(t, err)
	require.NotNil(t, user.FID)
	assert.Equal(t, uint64(42), *user.FID)
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, "42@fid.test", user.Email)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, "https://img.example.com/alice.png", user.AvatarURL)
	assert.Equal(t, "gm", user.Bio)
}

func TestReconcile_NameFallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("Username", func(t *testing.T) {
		r := newTestReconciler(memorystore.New())
		user, err := r.Reconcile(ctx, 42, Profile{Username: "alice"})
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Name)
	})

	t.Run("Placeholder", func(t *testing.T) {
		r := newTestReconciler(memorystore.New())
		user, err := r.Reconcile(ctx, 42, Profile{})
		require.NoError(t, err)
		assert.Equal(t, "Farcaster User 42", user.Name)
	})

	t.Run("Resolver", func(t *testing.T) {
		resolver := func(ctx context.Context, fid uint64) (string, error) {
			return "Resolved Name", nil
		}
		r := NewReconciler(memorystore.New(), "fid.test", resolver)
		user, err := r.Reconcile(ctx, 42, Profile{DisplayName: "Claimed"})
		require.NoError(t, err)
		assert.Equal(t, "Resolved Name", user.Name)
	})
}

func TestReconcile_RepeatConverges(t *testing.T) {
	ctx := context.Background()
	store := memorystore.New()
	r := newTestReconciler(store)

	first, err := r.Reconcile(ctx, 42, Profile{DisplayName: "Alice"})
	require.NoError(t, err)

	second, err := r.Reconcile(ctx, 42, Profile{DisplayName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "repeat sign-ins reuse the user")

	var users []auth.User
	require.NoError(t, store.List(ctx, &users, auth.User{}))
	assert.Len(t, users, 1)
}

func TestReconcile_MergesChangedProfile(t *testing.T) {
	ctx := context.Background()
	store := memorystore.New()
	r := newTestReconciler(store)

	first, err := r.Reconcile(ctx, 42, Profile{DisplayName: "Alice"})
	require.NoError(t, err)

	second, err := r.Reconcile(ctx, 42, Profile{
		DisplayName: "Alice Renamed",
		PfpURL:      "https://img.example.com/new.png",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alice Renamed", second.Name)
	assert.Equal(t, "https://img.example.com/new.png", second.AvatarURL)

	// Empty profile fields never clobber stored values.
	third, err := r.Reconcile(ctx, 42, Profile{})
	require.NoError(t, err)
	assert.Equal(t, "Alice Renamed", third.Name)
	assert.Equal(t, "https://img.example.com/new.png", third.AvatarURL)
}

func TestLink(t *testing.T) {
	ctx := context.Background()
	store := memorystore.New()
	r := newTestReconciler(store)
	user := seedUser(t, store, nil)

	linked, err := r.Link(ctx, user.ID, 42, Profile{PfpURL: "https://img.example.com/a.png"})
	require.NoError(t, err)
	require.NotNil(t, linked.FID)
	assert.Equal(t, uint64(42), *linked.FID)
	assert.Equal(t, "https://img.example.com/a.png", linked.AvatarURL)

	// Linking the same FID to the same user is idempotent.
	again, err := r.Link(ctx, user.ID, 42, Profile{})
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}

func TestLink_ConflictLeavesBothUntouched(t *testing.T) {
	ctx := context.Background()
	store := memorystore.New()
	r := newTestReconciler(store)

	fid := uint64(42)
	owner := seedUser(t, store, &fid)
	other := &auth.User{ID: uuid.NewString(), Email: "other@example.com", Name: "Other"}
	require.NoError(t, store.Create(ctx, other))

	_, err := r.Link(ctx, other.ID, 42, Profile{DisplayName: "Hijack"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyLinked))

	var ownerAfter, otherAfter auth.User
	require.NoError(t, store.Read(ctx, owner.ID, &ownerAfter))
	require.NoError(t, store.Read(ctx, other.ID, &otherAfter))
	require.NotNil(t, ownerAfter.FID)
	assert.Equal(t, uint64(42), *ownerAfter.FID)
	assert.Nil(t, otherAfter.FID)
	assert.Equal(t, "Other", otherAfter.Name)
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	store := memorystore.New()
	r := newTestReconciler(store)

	fid := uint64(42)
	user := seedUser(t, store, &fid)

	unlinked, err := r.Unlink(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, unlinked.FID)

	// Unlinking again fails; the account no longer has a FID.
	_, err = r.Unlink(ctx, user.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotLinked))

	// The freed FID can be claimed by another account.
	other := seedUser(t, store, nil)
	relinked, err := r.Link(ctx, other.ID, 42, Profile{})
	require.NoError(t, err)
	require.NotNil(t, relinked.FID)
	assert.Equal(t, uint64(42), *relinked.FID)
}
