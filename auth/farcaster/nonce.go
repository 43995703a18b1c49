package farcaster

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/logging"
	"github.com/dpup/castauth/storage"
)

// NonceRecord is a one-time value binding a verification attempt to a
// specific sign-in request. Records are deleted on the first consumption
// attempt, successful or not, and swept once expired.
type NonceRecord struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Implements storage.Model.
func (n NonceRecord) PK() string {
	return n.ID
}

// NonceManager issues and spends one-time nonces backed by a storage.Store.
// Single consumption relies on the store's atomic delete: of any number of
// concurrent consumers presenting the same identifier, exactly one observes
// the delete succeed.
type NonceManager struct {
	store    storage.Store
	lifetime time.Duration
}

// NewNonceManager returns a manager whose nonces expire after lifetime.
func NewNonceManager(store storage.Store, lifetime time.Duration) *NonceManager {
	return &NonceManager{store: store, lifetime: lifetime}
}

// Generate creates a cryptographically unpredictable nonce, persists it, and
// returns the identifier.
func (m *NonceManager) Generate(ctx context.Context) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, 0)
	}
	id := hex.EncodeToString(b)
	if err := m.Adopt(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// Adopt persists a caller-supplied nonce so it can later be consumed. Used
// when clients bring their own nonce to the channel request.
func (m *NonceManager) Adopt(ctx context.Context, id string) error {
	now := timeFunc()
	err := m.store.Upsert(ctx, NonceRecord{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
	})
	return errors.MaybeWrap(err, 0)
}

// Consume spends a nonce. The record is deleted unconditionally on the first
// attempt, then validity is checked: true is returned only when the nonce
// existed, was claimed by this caller, and had not expired. A false result
// always means the attempt is unauthorized; it is never retryable.
func (m *NonceManager) Consume(ctx context.Context, id string) bool {
	var record NonceRecord
	if err := m.store.Read(ctx, id, &record); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logging.Warnw(ctx, "farcaster: nonce lookup failed", "error", err)
		}
		return false
	}

	// Delete-then-check: the delete claims the nonce, so two racing callers
	// can never both succeed. An expired record is still discarded.
	if err := m.store.Delete(ctx, record); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logging.Warnw(ctx, "farcaster: nonce delete failed", "error", err)
		}
		return false
	}

	if timeFunc().After(record.ExpiresAt) {
		logging.Warnw(ctx, "farcaster: rejected expired nonce", "nonce", id,
			"expiredAt", record.ExpiresAt)
		return false
	}
	return true
}

// Sweep deletes expired unused nonces. Run periodically by the plugin.
func (m *NonceManager) Sweep(ctx context.Context) {
	var records []NonceRecord
	if err := m.store.List(ctx, &records, NonceRecord{}); err != nil {
		logging.Warnw(ctx, "farcaster: nonce sweep failed", "error", err)
		return
	}
	now := timeFunc()
	swept := 0
	for _, record := range records {
		if now.After(record.ExpiresAt) {
			if err := m.store.Delete(ctx, record); err != nil && !errors.Is(err, storage.ErrNotFound) {
				logging.Warnw(ctx, "farcaster: failed to delete expired nonce", "error", err)
				continue
			}
			swept++
		}
	}
	if swept > 0 {
		logging.Debugf(ctx, "farcaster: swept %d expired nonces", swept)
	}
}
