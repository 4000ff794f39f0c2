package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory BlobStore for development and tests. Signed
// URLs are synthetic and only meaningful to code that stays inside the
// process.
type MemStore struct {
	mu    sync.RWMutex
	blobs map[string]memBlob
}

type memBlob struct {
	data []byte
	mime string
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string]memBlob)}
}

func (m *MemStore) Put(_ context.Context, key string, data []byte, mime string) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.blobs[key] = memBlob{data: cp, mime: mime}
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	b, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return cp, nil
}

func (m *MemStore) Sign(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	exp := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s?expires=%d", key, exp), nil
}

func (m *MemStore) Head(_ context.Context, key string) (BlobInfo, error) {
	m.mu.RLock()
	b, ok := m.blobs[key]
	m.mu.RUnlock()
	if !ok {
		return BlobInfo{}, nil
	}
	return BlobInfo{Size: int64(len(b.data)), MIME: b.mime, Exists: true}, nil
}
