package promptl

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage keeps prompts in process memory. Intended for tests and
// development.
type MemoryStorage struct {
	mu      sync.RWMutex
	prompts map[string][]*StoredPrompt // path -> versions, newest first
	closed  bool
}

// MemoryStorageDriver opens MemoryStorage instances
type MemoryStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverNameMemory, &MemoryStorageDriver{})
}

// Open implements StorageDriver. The connection string is ignored.
func (d *MemoryStorageDriver) Open(connectionString string) (PromptStorage, error) {
	return NewMemoryStorage(), nil
}

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{prompts: make(map[string][]*StoredPrompt)}
}

// Get implements PromptStorage
func (s *MemoryStorage) Get(ctx context.Context, path string) (*StoredPrompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, newStorageClosedError()
	}
	versions := s.prompts[path]
	if len(versions) == 0 {
		return nil, NewDocumentNotFoundError(path)
	}
	return copyStoredPrompt(versions[0]), nil
}

// GetVersion implements PromptStorage
func (s *MemoryStorage) GetVersion(ctx context.Context, path string, version int) (*StoredPrompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, newStorageClosedError()
	}
	for _, p := range s.prompts[path] {
		if p.Version == version {
			return copyStoredPrompt(p), nil
		}
	}
	return nil, newVersionNotFoundError(path, version)
}

// Save implements PromptStorage
func (s *MemoryStorage) Save(ctx context.Context, prompt *StoredPrompt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePromptPath(prompt.Path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newStorageClosedError()
	}

	versions := s.prompts[prompt.Path]
	next := 1
	if len(versions) > 0 {
		next = versions[0].Version + 1
	}

	prompt.ID = uuid.NewString()
	prompt.Version = next
	prompt.CreatedAt = time.Now().UTC()

	s.prompts[prompt.Path] = append([]*StoredPrompt{copyStoredPrompt(prompt)}, versions...)
	return nil
}

// Delete implements PromptStorage
func (s *MemoryStorage) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newStorageClosedError()
	}
	if _, ok := s.prompts[path]; !ok {
		return NewDocumentNotFoundError(path)
	}
	delete(s.prompts, path)
	return nil
}

// List implements PromptStorage
func (s *MemoryStorage) List(ctx context.Context, query *PromptQuery) ([]*StoredPrompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, newStorageClosedError()
	}

	results := make([]*StoredPrompt, 0, len(s.prompts))
	for _, versions := range s.prompts {
		if len(versions) > 0 && matchesQuery(versions[0], query) {
			results = append(results, copyStoredPrompt(versions[0]))
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return paginate(results, query), nil
}

// Exists implements PromptStorage
func (s *MemoryStorage) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, newStorageClosedError()
	}
	return len(s.prompts[path]) > 0, nil
}

// Close implements PromptStorage
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.prompts = nil
	return nil
}
