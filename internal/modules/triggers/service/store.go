package service

import (
	"context"
	"sort"
	"sync"

	"trigger_bot/internal/models"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("trigger not found")

// Ключи в хранилище настроек.
const (
	KeyNextID    = "next_id"
	KeyAPIKey    = "api_key"
	KeyAPISecret = "secret"
	KeyChatID    = "chat_id"
	KeyOwnerID   = "owner_id"
)

// Store — долговременное хранилище триггеров.
type Store interface {
	Insert(ctx context.Context, t models.Trigger) error
	Delete(ctx context.Context, id int64) error
	FindByPair(ctx context.Context, symbol string) ([]int64, error)
	Iterate(ctx context.Context) ([]models.Trigger, error)
	Flush(ctx context.Context) error
}

// SettingsStore — key/value настройки бота (next_id, ключи API, chat_id).
// Get возвращает "" без ошибки, если ключа нет.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStore держит триггеры в памяти. Используется в тестах и в
// режиме без DATABASE_DSN.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[int64]models.Trigger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[int64]models.Trigger)}
}

func (s *MemoryStore) Insert(_ context.Context, t models.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[t.ID]; ok {
		return errors.Errorf("trigger %d already exists", t.ID)
	}
	s.data[t.ID] = t
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	delete(s.data, id)
	return nil
}

func (s *MemoryStore) FindByPair(_ context.Context, symbol string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for id, t := range s.data {
		if t.Pair.Symbol() == symbol {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *MemoryStore) Iterate(_ context.Context) ([]models.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Trigger, 0, len(s.data))
	for _, t := range s.data {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Flush(_ context.Context) error { return nil }

// MemorySettings — in-memory вариант SettingsStore.
type MemorySettings struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{data: make(map[string]string)}
}

func (s *MemorySettings) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[key], nil
}

func (s *MemorySettings) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}
