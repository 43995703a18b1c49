// Package storagetests provides common acceptance tests for storage.Store
// implementations.
package storagetests

import (
	"context"
	"testing"

	"github.com/dpup/castauth/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Tier int

const (
	TierFree    Tier = 1
	TierPro     Tier = 2
	TierTeam    Tier = 3
	TierPartner Tier = 4
)

type Account struct {
	ID     string
	Handle string
	Tier   Tier
	Score  *int // Ptr fields allow filtering on zero values.
}

func (a Account) PK() string {
	return a.ID
}

type Realm struct {
	ID   string
	Name string
}

func (r Realm) PK() string {
	return r.ID
}

type BadModel struct {
	ID    string
	Cycle *BadModel
}

func (b BadModel) PK() string {
	return b.ID
}

func pint(i int) *int {
	return &i
}

//nolint:funlen // This is a test helper.
func Run(t *testing.T, newStore func() storage.Store) {
	t.Run("TestCreateReadRoundTrip", func(t *testing.T) {
		alice := Account{
			ID:     "1",
			Handle: "alice",
			Tier:   TierPro,
		}
		bob := Account{
			ID:     "2",
			Handle: "bob",
			Tier:   TierFree,
		}

		alice2 := Account{}
		bob2 := Account{}

		store := newStore()
		err := store.Create(context.Background(), alice, bob)
		require.NoError(t, err, "unexpected error putting records")

		err = store.Read(context.Background(), "1", &alice2)
		require.NoError(t, err, "unexpected error getting alice")
		assert.Equal(t, alice, alice2)

		err = store.Read(context.Background(), "2", &bob2)
		require.NoError(t, err, "unexpected error getting bob")
		assert.Equal(t, bob, bob2)
	})

	t.Run("TestCreateConflict", func(t *testing.T) {
		alice := Account{
			ID:     "1",
			Handle: "alice",
			Tier:   TierPro,
		}
		alice2 := Account{
			ID:     "1",
			Handle: "alice",
			Tier:   TierFree,
		}

		store := newStore()
		err := store.Create(context.Background(), alice)
		require.NoError(t, err, "unexpected error putting records")

		err = store.Create(context.Background(), alice2)
		require.ErrorIs(t, err, storage.ErrAlreadyExists, "expected conflict error")
	})

	t.Run("TestCreateBadModel", func(t *testing.T) {
		bm := BadModel{ID: "XXX"}
		bm.Cycle = &bm

		store := newStore()
		err := store.Create(context.Background(), bm)
		require.ErrorIs(t, err, storage.ErrInvalidModel, "expected invalid model error")
	})

	t.Run("TestReadNotFound", func(t *testing.T) {
		store := newStore()
		err := store.Read(context.Background(), "1", &Account{})
		require.ErrorIs(t, err, storage.ErrNotFound)

		err = store.Create(context.Background(), &Account{ID: "1", Handle: "alice"})
		require.NoError(t, err, "unexpected error creating records")

		err = store.Read(context.Background(), "2", &Account{})
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("TestReadWithNilPointer", func(t *testing.T) {
		alice := Account{
			ID:     "1",
			Handle: "alice",
			Tier:   TierPro,
		}

		var nilAccount *Account

		store := newStore()
		err := store.Create(context.Background(), alice)
		require.NoError(t, err, "unexpected error putting records")

		err = store.Read(context.Background(), "1", nilAccount)
		require.ErrorIs(t, err, storage.ErrNilModel, "expected nil model error")
	})

	t.Run("TestUpdate", func(t *testing.T) {
		alice := Account{
			ID:     "1",
			Handle: "alice",
			Tier:   TierPro,
		}

		alice2 := Account{}

		store := newStore()
		err := store.Create(context.Background(), alice)
		require.NoError(t, err, "unexpected error putting records")

		err = store.Read(context.Background(), "1", &alice2)
		require.NoError(t, err, "unexpected error getting alice")
		assert.Equal(t, alice, alice2)

		alice.Tier = TierTeam
		err = store.Update(context.Background(), alice)
		require.NoError(t, err, "unexpected error updating alice")

		err = store.Read(context.Background(), "1", &alice2)
		require.NoError(t, err, "unexpected error getting alice")
		assert.Equal(t, alice, alice2)
	})

	t.Run("TestUpdateNotExists", func(t *testing.T) {
		alice := Account{
			ID:     "1",
			Handle: "alice",
			Tier:   TierPro,
		}

		store := newStore()
		err := store.Update(context.Background(), alice)
		require.ErrorIs(t, err, storage.ErrNotFound, "expected not found error")
	})

	t.Run("TestUpdateBadModel", func(t *testing.T) {
		bm := BadModel{ID: "XXX"}
		bm.Cycle = &bm

		store := newStore()
		err := store.Update(context.Background(), bm)
		require.ErrorIs(t, err, storage.ErrInvalidModel, "expected invalid model error")
	})

	t.Run("TestUpsert", func(t *testing.T) {
		alice := Account{
			ID:     "1",
			Handle: "alice",
			Tier:   TierPro,
		}

		alice2 := Account{}
		bob2 := Account{}

		store := newStore()
		err := store.Create(context.Background(), alice)
		require.NoError(t, err, "unexpected error putting records")

		alice.Tier = TierTeam
		bob := Account{ID: "2", Handle: "bob", Tier: TierFree}
		err = store.Upsert(context.Background(), alice, bob)
		require.NoError(t, err, "unexpected error updating alice")

		err = store.Read(context.Background(), "1", &alice2)
		require.NoError(t, err, "unexpected error getting alice")
		assert.Equal(t, alice, alice2)

		err = store.Read(context.Background(), "2", &bob2)
		require.NoError(t, err, "unexpected error getting bob")
		assert.Equal(t, bob, bob2)
	})

	t.Run("TestUpsertBadModel", func(t *testing.T) {
		bm := BadModel{ID: "XXX"}
		bm.Cycle = &bm

		store := newStore()
		err := store.Upsert(context.Background(), bm)
		require.ErrorIs(t, err, storage.ErrInvalidModel, "expected invalid model error")
	})

	t.Run("TestDelete", func(t *testing.T) {
		store := newStore()
		err := store.Create(context.Background(), &Account{ID: "4", Handle: "dora"})
		require.NoError(t, err)

		exists, err := store.Exists(context.Background(), "4", &Account{})
		assert.True(t, exists)
		require.NoError(t, err)

		err = store.Delete(context.Background(), &Account{ID: "4"})
		require.NoError(t, err)

		exists, err = store.Exists(context.Background(), "4", &Account{})
		assert.False(t, exists)
		require.NoError(t, err)

		// A repeat delete reports not found so callers can use delete-then-check
		// to claim single-use records.
		err = store.Delete(context.Background(), &Account{ID: "4"})
		require.ErrorIs(t, err, storage.ErrNotFound, "expected not found error")
	})

	t.Run("TestListErrorCases", func(t *testing.T) {
		store := newStore()

		out := []Account{}

		tests := []struct {
			name    string
			models  any
			filter  storage.Model
			wantErr error
		}{
			{"Ok", &out, Account{}, nil},
			{"Not a slice", Account{}, Account{}, storage.ErrSliceRequired},
			{"Not a pointer", out, Account{}, storage.ErrSliceRequired},
			{"Mismatched type", &out, Realm{}, storage.ErrTypeMismatch},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := store.List(context.Background(), tt.models, tt.filter)
				require.ErrorIs(t, err, tt.wantErr, "store.List() error = %v, wantErr %v", err, tt.wantErr)
			})
		}
	})

	t.Run("TestList", func(t *testing.T) {
		store := newStore()
		err := store.Create(context.Background(),
			Account{"1", "alice", TierPro, nil},
			Account{"2", "bob", TierFree, nil},
			Account{"3", "carol", TierTeam, nil},
		)
		require.NoError(t, err)

		actual := []Account{}
		err = store.List(context.Background(), &actual, Account{})
		require.NoError(t, err)

		expected := []Account{
			{"1", "alice", TierPro, nil},
			{"2", "bob", TierFree, nil},
			{"3", "carol", TierTeam, nil},
		}

		assert.Equal(t, expected, actual)
	})

	t.Run("TestListFilter", func(t *testing.T) {
		store := newStore()
		err := store.Create(context.Background(),
			Account{"1", "alice", TierPro, nil},
			Account{"2", "bob", TierFree, nil},
			Account{"3", "carol", TierTeam, nil},
			Account{"4", "dave", TierFree, nil},
			Account{"5", "erin", TierPro, nil},
			Account{"6", "frank", TierPartner, nil},
		)
		require.NoError(t, err)

		actual := []Account{}
		err = store.List(context.Background(), &actual, Account{Tier: TierPro})
		require.NoError(t, err)

		expected := []Account{
			{"1", "alice", TierPro, nil},
			{"5", "erin", TierPro, nil},
		}

		assert.Equal(t, expected, actual)
	})

	t.Run("TestListFilterZero", func(t *testing.T) {
		store := newStore()
		err := store.Create(context.Background(),
			Account{"1", "alice", TierPro, pint(4)},
			Account{"2", "bob", TierFree, pint(3)},
			Account{"3", "carol", TierTeam, pint(0)},
			Account{"4", "dave", TierFree, pint(0)},
			Account{"5", "erin", TierPro, nil},
		)
		require.NoError(t, err)

		actual := []Account{}
		err = store.List(context.Background(), &actual, Account{Score: pint(0)})
		require.NoError(t, err)

		expected := []Account{
			{"3", "carol", TierTeam, pint(0)},
			{"4", "dave", TierFree, pint(0)},
		}

		assert.Equal(t, expected, actual)
	})

	t.Run("TestExists", func(t *testing.T) {
		store := newStore()
		exists, err := store.Exists(context.Background(), "3", &Account{})
		assert.False(t, exists)
		require.NoError(t, err)

		err = store.Create(context.Background(), &Account{ID: "3", Handle: "carol"})
		require.NoError(t, err)

		exists, err = store.Exists(context.Background(), "3", &Account{})
		assert.True(t, exists)
		require.NoError(t, err)
	})
}
