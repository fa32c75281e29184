// Package memory provides an in-memory document gateway used by tests and
// local development. Documents round-trip through JSON so that value types
// (float64 numbers, RFC 3339 time strings) match what the Postgres-backed
// store yields.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/provafacil/simulado-backend/internal/gateway"
)

// DocStore implements gateway.Gateway and gateway.Conditional in memory.
type DocStore struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // collection -> key -> canonical JSON
}

// NewDocStore creates an empty in-memory document store.
func NewDocStore() *DocStore {
	return &DocStore{data: make(map[string]map[string][]byte)}
}

func (s *DocStore) GetByKey(_ context.Context, collection, key string) (gateway.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.data[collection][key]
	if !ok {
		return nil, gateway.ErrNotFound
	}
	return decode(collection, key, raw)
}

func (s *DocStore) Put(_ context.Context, collection, key string, fields gateway.Document, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := gateway.Document{}
	if merge {
		if raw, ok := s.data[collection][key]; ok {
			existing, err := decode(collection, key, raw)
			if err != nil {
				return err
			}
			doc = existing
		}
	}
	overlay, err := roundTrip(collection, key, fields)
	if err != nil {
		return err
	}
	for k, v := range overlay {
		doc[k] = v
	}
	return s.store(collection, key, doc)
}

func (s *DocStore) Insert(_ context.Context, collection, key string, fields gateway.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[collection][key]; ok {
		return gateway.ErrAlreadyExists
	}
	doc, err := roundTrip(collection, key, fields)
	if err != nil {
		return err
	}
	return s.store(collection, key, doc)
}

func (s *DocStore) MergeIfNull(_ context.Context, collection, key, guardField string, fields gateway.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.data[collection][key]
	if !ok {
		return gateway.ErrNotFound
	}
	doc, err := decode(collection, key, raw)
	if err != nil {
		return err
	}
	if v, present := doc[guardField]; present && v != nil {
		return gateway.ErrPreconditionFailed
	}
	overlay, err := roundTrip(collection, key, fields)
	if err != nil {
		return err
	}
	for k, v := range overlay {
		doc[k] = v
	}
	return s.store(collection, key, doc)
}

func (s *DocStore) Query(_ context.Context, collection string, filters []gateway.Filter, order ...gateway.OrderBy) ([]gateway.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []gateway.Document
	for key, raw := range s.data[collection] {
		doc, err := decode(collection, key, raw)
		if err != nil {
			return nil, err
		}
		if matches(doc, filters) {
			docs = append(docs, doc)
		}
	}

	// Text ordering mirrors the Postgres store's data->>field comparison.
	if len(order) > 0 {
		sort.SliceStable(docs, func(i, j int) bool {
			for _, o := range order {
				a := fmt.Sprintf("%v", docs[i][o.Field])
				b := fmt.Sprintf("%v", docs[j][o.Field])
				if a == b {
					continue
				}
				if o.Desc {
					return a > b
				}
				return a < b
			}
			return false
		})
	}
	return docs, nil
}

// Len reports the number of documents in a collection. Test helper.
func (s *DocStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

func (s *DocStore) store(collection, key string, doc gateway.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return &gateway.PersistenceError{Op: "put", Collection: collection, Key: key, Err: err}
	}
	if s.data[collection] == nil {
		s.data[collection] = make(map[string][]byte)
	}
	s.data[collection][key] = raw
	return nil
}

func matches(doc gateway.Document, filters []gateway.Filter) bool {
	for _, f := range filters {
		if fmt.Sprintf("%v", doc[f.Field]) != fmt.Sprintf("%v", f.Value) {
			return false
		}
	}
	return true
}

func decode(collection, key string, raw []byte) (gateway.Document, error) {
	var doc gateway.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &gateway.PersistenceError{Op: "get", Collection: collection, Key: key, Err: err}
	}
	return doc, nil
}

func roundTrip(collection, key string, fields gateway.Document) (gateway.Document, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, &gateway.PersistenceError{Op: "put", Collection: collection, Key: key, Err: err}
	}
	return decode(collection, key, raw)
}
