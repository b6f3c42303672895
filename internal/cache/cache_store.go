package cache

import (
	"context"
	"sync"
	"time"
)

// item представляет кэшированное значение
type item[V any] struct {
	value     V
	expiresAt time.Time
}

func (i item[V]) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && now.After(i.expiresAt)
}

// Store хранит значения с ограниченным сроком жизни.
// Используется для сущностей Telegram (чатов и пользователей), полученных от API.
type Store[K comparable, V any] struct {
	items map[K]item[V]
	mutex sync.RWMutex
	now   func() time.Time
}

// NewStore создает новый экземпляр Store
func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		items: make(map[K]item[V]),
		now:   time.Now,
	}
}

// Get извлекает значение по ключу. Просроченные значения не возвращаются.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	it, exists := s.items[key]
	if !exists || it.expired(s.now()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Put сохраняет значение. ttl <= 0 означает бессрочное хранение.
func (s *Store[K, V]) Put(key K, value V, ttl time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	it := item[V]{value: value}
	if ttl > 0 {
		it.expiresAt = s.now().Add(ttl)
	}
	s.items[key] = it
}

// Delete удаляет значение по ключу
func (s *Store[K, V]) Delete(key K) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.items, key)
}

// Len возвращает число хранимых значений, включая еще не удаленные просроченные.
func (s *Store[K, V]) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.items)
}

// CleanupExpired удаляет просроченные значения
func (s *Store[K, V]) CleanupExpired() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	removed := 0
	for key, it := range s.items {
		if it.expired(now) {
			delete(s.items, key)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker запускает периодическую очистку просроченных значений до отмены ctx.
func (s *Store[K, V]) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired()
			}
		}
	}()
}
