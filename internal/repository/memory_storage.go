package repository

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	updatedAt time.Time
}

// MemoryStorage はプロセス内のマップに状態を保持するLocalStorage。
// テストと STORAGE_DRIVER=memory で使う。
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]memoryEntry
	now  func() time.Time
}

// NewMemoryStorage はMemoryStorageを生成する。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]memoryEntry), now: time.Now}
}

// Get はkeyの値を返す。
func (s *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	return e.value, ok, nil
}

// Set はkeyに値を保存する。
func (s *MemoryStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memoryEntry{value: value, updatedAt: s.now()}
	return nil
}

// Remove はkeyを削除する。
func (s *MemoryStorage) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// PurgeBefore はprefixで始まりcutoffより前に更新されたキーを削除する。
func (s *MemoryStorage) PurgeBefore(_ context.Context, prefix string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.data {
		if strings.HasPrefix(k, prefix) && e.updatedAt.Before(cutoff) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

// Len は保持しているキー数を返す。
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var (
	_ LocalStorage = (*MemoryStorage)(nil)
	_ Purger       = (*MemoryStorage)(nil)
)
