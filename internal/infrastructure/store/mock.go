// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// mockKeyValueEntry implements jetstream.KeyValueEntry for testing
type mockKeyValueEntry struct {
	key      string
	value    []byte
	revision uint64
}

func (m *mockKeyValueEntry) Key() string                     { return m.key }
func (m *mockKeyValueEntry) Value() []byte                   { return m.value }
func (m *mockKeyValueEntry) Revision() uint64                { return m.revision }
func (m *mockKeyValueEntry) Created() time.Time              { return time.Now() }
func (m *mockKeyValueEntry) Delta() uint64                   { return 0 }
func (m *mockKeyValueEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }
func (m *mockKeyValueEntry) Bucket() string                  { return "test-bucket" }

// mockKeyLister implements jetstream.KeyLister for testing
type mockKeyLister struct {
	keys []string
}

func (m *mockKeyLister) Keys() <-chan string {
	ch := make(chan string, len(m.keys))
	for _, key := range m.keys {
		ch <- key
	}
	close(ch)
	return ch
}

func (m *mockKeyLister) Stop() error { return nil }

// mockNatsKeyValue is an in-memory INatsKeyValue with revision semantics close to
// a real bucket. The error fields force failures of the matching operation.
type mockNatsKeyValue struct {
	mu        sync.Mutex
	data      map[string][]byte
	revisions map[string]uint64
	seq       uint64

	putError    error
	getError    error
	createError error
	deleteError error
	updateError error
	listError   error
	statusError error

	// beforeUpdate runs once before the next Update, to simulate a concurrent writer.
	beforeUpdate func(m *mockNatsKeyValue, key string)
}

func newMockNatsKeyValue() *mockNatsKeyValue {
	return &mockNatsKeyValue{
		data:      make(map[string][]byte),
		revisions: make(map[string]uint64),
	}
}

// write stores data and returns the new revision. Callers hold mu.
func (m *mockNatsKeyValue) write(key string, data []byte) uint64 {
	m.seq++
	m.data[key] = append([]byte(nil), data...)
	m.revisions[key] = m.seq
	return m.seq
}

func (m *mockNatsKeyValue) ListKeysFiltered(ctx context.Context, filters ...string) (jetstream.KeyLister, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listError != nil {
		return nil, m.listError
	}

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if len(filters) == 0 || matchesAnyFilter(key, filters) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return &mockKeyLister{keys: keys}, nil
}

// matchesAnyFilter applies NATS subject wildcard rules to "." separated keys.
func matchesAnyFilter(key string, filters []string) bool {
	tokens := strings.Split(key, ".")
	for _, filter := range filters {
		pattern := strings.Split(filter, ".")
		matched := true
		for i, p := range pattern {
			if p == ">" {
				matched = len(tokens) > i
				break
			}
			if i >= len(tokens) || (p != "*" && p != tokens[i]) {
				matched = false
				break
			}
			if i == len(pattern)-1 && len(tokens) != len(pattern) {
				matched = false
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func (m *mockNatsKeyValue) Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	value, exists := m.data[key]
	if !exists {
		return nil, jetstream.ErrKeyNotFound
	}
	return &mockKeyValueEntry{key: key, value: value, revision: m.revisions[key]}, nil
}

func (m *mockNatsKeyValue) Put(ctx context.Context, key string, data []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putError != nil {
		return 0, m.putError
	}
	return m.write(key, data), nil
}

func (m *mockNatsKeyValue) Create(ctx context.Context, key string, data []byte, opts ...jetstream.KVCreateOpt) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createError != nil {
		return 0, m.createError
	}
	if _, exists := m.data[key]; exists {
		return 0, jetstream.ErrKeyExists
	}
	return m.write(key, data), nil
}

func (m *mockNatsKeyValue) Update(ctx context.Context, key string, data []byte, expectedRevision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hook := m.beforeUpdate; hook != nil {
		m.beforeUpdate = nil
		hook(m, key)
	}
	if m.updateError != nil {
		return 0, m.updateError
	}
	currentRevision, exists := m.revisions[key]
	if !exists {
		return 0, jetstream.ErrKeyNotFound
	}
	if currentRevision != expectedRevision {
		return 0, errors.New("nats: wrong last sequence: 7")
	}
	return m.write(key, data), nil
}

func (m *mockNatsKeyValue) Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteError != nil {
		return m.deleteError
	}
	if _, exists := m.data[key]; !exists {
		return jetstream.ErrKeyNotFound
	}
	delete(m.data, key)
	delete(m.revisions, key)
	return nil
}

func (m *mockNatsKeyValue) Status(ctx context.Context) (jetstream.KeyValueStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return nil, m.statusError
}

func (m *mockNatsKeyValue) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
