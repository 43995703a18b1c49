// Package storage contains an extensible interface for providing persistence
// to the auth plugins and the applications that host them.
//
// Stores provide simple create, read, update, delete, and list operations.
// Models are represented as structs and should have a `PK() string` method.
//
// Examples:
//
//		castauth.WithPlugin(storage.Plugin(memorystore.New()))
//
//	 func (p *MyPlugin) Init(ctx context.Context, r *castauth.Registry) error {
//	   p.store = r.Get(storage.PluginName).(*storage.StoragePlugin)
//	 }
package storage

import (
	"context"

	"github.com/dpup/castauth"
	"github.com/dpup/castauth/errors"
	"google.golang.org/grpc/codes"
)

// PluginName can be used to query the storage plugin.
const PluginName = "storage"

var (
	// Returned when a record does not exist.
	ErrNotFound = errors.NewC("record not found", codes.NotFound)

	// Returned when a record conflicts with an existing key.
	ErrAlreadyExists = errors.NewC("primary key already exists", codes.AlreadyExists)

	// Returned when List is called with a non-slice.
	ErrSliceRequired = errors.NewC("pointer slice required", codes.InvalidArgument)

	// Returned when a store can not marshal/unmarshal a model.
	ErrInvalidModel = errors.NewC("invalid model", codes.InvalidArgument)

	// Returned when List is called with a filter and slice of mismatching types.
	ErrTypeMismatch = errors.NewC("type mismatch", codes.InvalidArgument)

	// Returned when a store is passed an uninitialized pointer.
	ErrNilModel = errors.NewC("uninitialized pointer passed as model", codes.InvalidArgument)
)

// Store offers a basic CRUUDLE (Create Read Update Upsert Delete List Exists)
// interface that allows plugins to persist data.
//
// Delete is atomic with respect to concurrent deletes of the same key: exactly
// one caller observes success, the rest receive ErrNotFound. Single-use tokens
// rely on this.
type Store interface {
	// Create multiple entities.
	Create(ctx context.Context, models ...Model) error

	// Read a record with the given id.
	Read(ctx context.Context, id string, model Model) error

	// Update multiple entities.
	Update(ctx context.Context, models ...Model) error

	// Update or insert multiple entities.
	Upsert(ctx context.Context, models ...Model) error

	// Delete a record. Only the primary key needs to be populated. Returns
	// ErrNotFound if the record was already gone.
	Delete(ctx context.Context, model Model) error

	// List populates the slice of models with records that have fields which
	// match the fields of filter. Zero-value fields will be ignored, unless the
	// field is a pointer.
	List(ctx context.Context, models any, filter Model) error

	// Exists returns true if a record with the given id exists.
	Exists(ctx context.Context, id string, model Model) (bool, error)
}

// Optional interface that stores can implement in order to support per-model
// configuration — for example table per model in SQL databases.
type ModelInitializer interface {
	// InitModel is called by a plugin or application to initialize a model
	// before it is used. Stores will still work, without initialization, however
	// data will be stored in a shared table.
	InitModel(model Model) error
}

// Plugin wraps a storage implementation for registration.
func Plugin(impl Store) *StoragePlugin {
	return &StoragePlugin{Store: impl}
}

// StoragePlugin exposes a Plugin interface for persisting data.
type StoragePlugin struct {
	Store
}

// From castauth.Plugin.
func (p *StoragePlugin) Name() string {
	return PluginName
}

// InitModel can be called by a plugin or application to perform per model
// initialization. Stores that do not implement ModelInitializer should still
// function correctly, but may store data in a shared table.
func (p *StoragePlugin) InitModel(m Model) error {
	if i, ok := p.Store.(ModelInitializer); ok {
		return i.InitModel(m)
	}
	return nil
}

var _ castauth.Plugin = &StoragePlugin{}
