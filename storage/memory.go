package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Storage implementation backed by maps. It never
// fails except when the context passed to an operation is already done,
// which keeps it useful both as a default for single-process applications
// and as a fake in tests for code written against Storage.
type Memory struct {
	mu      sync.RWMutex
	kv      map[string]string
	records map[string]map[string]string
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		kv:      make(map[string]string),
		records: make(map[string]map[string]string),
	}
}

func (m *Memory) Init(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, key)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv = make(map[string]string)
	m.records = make(map[string]map[string]string)
	return nil
}

func (m *Memory) SetRecord(ctx context.Context, store, id, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.records[store]
	if !ok {
		bucket = make(map[string]string)
		m.records[store] = bucket
	}
	bucket[id] = value
	return nil
}

func (m *Memory) GetRecord(ctx context.Context, store, id string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket, ok := m.records[store]
	if !ok {
		return "", false, nil
	}
	v, ok := bucket[id]
	return v, ok, nil
}

func (m *Memory) DeleteRecord(ctx context.Context, store, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if bucket, ok := m.records[store]; ok {
		delete(bucket, id)
	}
	return nil
}

func (m *Memory) GetRecords(ctx context.Context, store string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.records[store]))
	for k, v := range m.records[store] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SetRecords(ctx context.Context, store string, recs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.records[store]
	if !ok {
		bucket = make(map[string]string)
		m.records[store] = bucket
	}
	for k, v := range recs {
		bucket[k] = v
	}
	return nil
}

func (m *Memory) DeleteRecords(ctx context.Context, store string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket, ok := m.records[store]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(bucket, id)
	}
	return nil
}

func (m *Memory) ClearStore(ctx context.Context, store string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, store)
	return nil
}
