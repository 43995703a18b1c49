// Package memorystore implements storage.Store in a purely in-memory manner.
// Intended for tests and local development.
package memorystore

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"sync"

	"github.com/dpup/castauth/errors"
	"github.com/dpup/castauth/storage"
)

// New returns a store that provides transient, in-memory storage.
func New() storage.Store {
	return &store{
		data: map[string]map[string][]byte{},
	}
}

type store struct {
	// data[tableName][entityID] = JSON
	data map[string]map[string][]byte
	mu   sync.RWMutex
}

func (s *store) Create(ctx context.Context, models ...storage.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range models {
		n := storage.Name(m)
		if s.data[n] != nil && s.data[n][m.PK()] != nil {
			return errors.Mark(storage.ErrAlreadyExists, 0)
		}
	}
	return s.put(models...)
}

func (s *store) Read(ctx context.Context, id string, model storage.Model) error {
	if err := storage.ValidateReceiver(model); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id, model)
}

func (s *store) Update(ctx context.Context, models ...storage.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range models {
		n := storage.Name(m)
		if s.data[n] == nil || s.data[n][m.PK()] == nil {
			return errors.Mark(storage.ErrNotFound, 0)
		}
	}
	return s.put(models...)
}

func (s *store) Upsert(ctx context.Context, models ...storage.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(models...)
}

func (s *store) Delete(ctx context.Context, model storage.Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := storage.Name(model)
	id := model.PK()
	if s.data[n] == nil || s.data[n][id] == nil {
		return errors.Mark(storage.ErrNotFound, 0)
	}
	delete(s.data[n], id)
	return nil
}

// List always performs a full scan of all items.
func (s *store) List(ctx context.Context, models any, filter storage.Model) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	modelsVal := reflect.ValueOf(models)
	if modelsVal.Kind() != reflect.Ptr || modelsVal.Elem().Kind() != reflect.Slice {
		return errors.Mark(storage.ErrSliceRequired, 0)
	}

	sliceVal := modelsVal.Elem()
	elemType := sliceVal.Type().Elem()
	if elemType != reflect.TypeOf(filter) {
		return errors.Mark(storage.ErrTypeMismatch, 0)
	}

	n := storage.Name(filter)
	if s.data[n] == nil {
		return nil
	}

	// Return models sorted by primary key.
	pks := make([]string, 0, len(s.data[n]))
	for pk := range s.data[n] {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	filterValue := reflect.ValueOf(filter)

	// Fetch and filter models.
	for _, pk := range pks {
		newElemPtr := reflect.New(elemType)
		newElem := newElemPtr.Elem()
		if err := s.get(pk, newElemPtr.Interface().(storage.Model)); err != nil {
			return err
		}
		// Skip if any non-zero field in filter differs from the corresponding field in model.
		skip := false
		for i := 0; i < newElem.NumField(); i++ {
			if shouldFilter(filterValue.Field(i)) {
				fieldVal := newElem.Field(i).Interface()
				testVal := filterValue.Field(i).Interface()
				if !reflect.DeepEqual(fieldVal, testVal) {
					skip = true
					break
				}
			}
		}
		if !skip {
			sliceVal.Set(reflect.Append(sliceVal, newElem))
		}
	}

	return nil
}

func (s *store) Exists(ctx context.Context, id string, model storage.Model) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := storage.Name(model)
	if s.data[n] == nil {
		return false, nil
	}
	if s.data[n][id] == nil {
		return false, nil
	}
	return true, nil
}

// put writes models. Callers must hold the write lock.
func (s *store) put(models ...storage.Model) error {
	for _, m := range models {
		n := storage.Name(m)
		if s.data[n] == nil {
			s.data[n] = map[string][]byte{}
		}
		jsonBytes, err := json.Marshal(m)
		if err != nil {
			return errors.Mark(storage.ErrInvalidModel, 0).Append(err.Error())
		}
		s.data[n][m.PK()] = jsonBytes
	}
	return nil
}

// get reads a model. Callers must hold at least the read lock.
func (s *store) get(id string, model storage.Model) error {
	n := storage.Name(model)
	if s.data[n] == nil {
		return errors.Mark(storage.ErrNotFound, 0)
	}
	if s.data[n][id] == nil {
		return errors.Mark(storage.ErrNotFound, 0)
	}
	if err := json.Unmarshal(s.data[n][id], model); err != nil {
		return errors.Mark(storage.ErrInvalidModel, 0).Append(err.Error())
	}
	return nil
}

// shouldFilter returns true for non-zero values and non-nil pointers.
func shouldFilter(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		return !v.IsNil()
	default:
		return !reflect.DeepEqual(v.Interface(), reflect.Zero(v.Type()).Interface())
	}
}
