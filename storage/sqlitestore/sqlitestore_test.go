package sqlitestore

import (
	"context"
	"reflect"
	"testing"

	"github.com/dpup/castauth/storage"
	"github.com/dpup/castauth/storage/storagetests"
)

func TestSqliteStore(t *testing.T) {
	storagetests.Run(t, func() storage.Store {
		return New(":memory:")
	})
}

func TestSqliteStore_withPrefixAndDedicatedTable(t *testing.T) {
	storagetests.Run(t, func() storage.Store {
		s := New(":memory:", WithPrefix("prefix_")).(*store)
		err := s.InitModel(storagetests.Account{})
		if err != nil {
			t.Fatalf("failed to init model: %v", err)
		}
		return s
	})
}

func TestBuildListQuery(t *testing.T) {
	s := New(":memory:").(*store)

	query, args := s.buildListQuery(storagetests.Account{Tier: storagetests.TierPro})
	wantQuery := "SELECT value FROM castauth_default WHERE entity_type = ? AND json_extract(value, '$.Tier') = ?"
	if query != wantQuery {
		t.Errorf("buildListQuery() query = %q, want %q", query, wantQuery)
	}
	wantArgs := []any{"accounts", storagetests.TierPro}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Errorf("buildListQuery() args = %v, want %v", args, wantArgs)
	}
}

func TestContextCancellation(t *testing.T) {
	s := New(":memory:")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Read(ctx, "1", &storagetests.Account{})
	if err == nil {
		t.Error("expected error reading with cancelled context")
	}
}
