package promptl

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Filesystem layout constants
const (
	FilesystemDirPermissions  = 0o755
	FilesystemFilePermissions = 0o644
	filesystemVersionPrefix   = "v"
	filesystemVersionSuffix   = ".json"
)

// Filesystem error message constants
const (
	ErrMsgInvalidStorageRoot = "storage root directory is empty"
	ErrMsgCreateStorageDir   = "failed to create storage directory"
	ErrMsgReadPrompt         = "failed to read prompt file"
	ErrMsgWritePrompt        = "failed to write prompt file"
	ErrMsgDecodePrompt       = "failed to decode prompt file"
	ErrMsgDeletePrompt       = "failed to delete prompt"
)

// FilesystemStorage stores one JSON file per version under a directory per
// prompt path. Paths may be nested:
//
//	<root>/
//	  greeting/
//	    v1.json
//	    v2.json
//	  shared/header/
//	    v1.json
type FilesystemStorage struct {
	mu     sync.RWMutex
	root   string
	closed bool
}

// FilesystemStorageDriver opens FilesystemStorage instances
type FilesystemStorageDriver struct{}

func init() {
	RegisterStorageDriver(StorageDriverNameFilesystem, &FilesystemStorageDriver{})
}

// Open implements StorageDriver. The connection string is the root directory.
func (d *FilesystemStorageDriver) Open(connectionString string) (PromptStorage, error) {
	return NewFilesystemStorage(connectionString)
}

// NewFilesystemStorage creates a store rooted at root, creating the
// directory when missing
func NewFilesystemStorage(root string) (*FilesystemStorage, error) {
	if root == "" {
		return nil, &StorageError{Message: ErrMsgInvalidStorageRoot}
	}
	if err := os.MkdirAll(root, FilesystemDirPermissions); err != nil {
		return nil, &StorageError{Message: ErrMsgCreateStorageDir, Path: root, Cause: err}
	}
	return &FilesystemStorage{root: root}, nil
}

// Get implements PromptStorage
func (s *FilesystemStorage) Get(ctx context.Context, path string) (*StoredPrompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePromptPath(path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, newStorageClosedError()
	}
	versions, err := s.versions(path)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, NewDocumentNotFoundError(path)
	}
	return s.load(path, versions[0])
}

// GetVersion implements PromptStorage
func (s *FilesystemStorage) GetVersion(ctx context.Context, path string, version int) (*StoredPrompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validatePromptPath(path); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, newStorageClosedError()
	}
	return s.load(path, version)
}

// Save implements PromptStorage
func (s *FilesystemStorage) Save(ctx context.Context, prompt *StoredPrompt) error {
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

	dir := s.dir(prompt.Path)
	if err := os.MkdirAll(dir, FilesystemDirPermissions); err != nil {
		return &StorageError{Message: ErrMsgCreateStorageDir, Path: dir, Cause: err}
	}
	versions, err := s.versions(prompt.Path)
	if err != nil {
		return err
	}
	next := 1
	if len(versions) > 0 {
		next = versions[0] + 1
	}

	stored := copyStoredPrompt(prompt)
	stored.ID = uuid.NewString()
	stored.Version = next
	stored.CreatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return &StorageError{Message: ErrMsgWritePrompt, Path: prompt.Path, Cause: err}
	}
	if err := os.WriteFile(s.file(prompt.Path, next), data, FilesystemFilePermissions); err != nil {
		return &StorageError{Message: ErrMsgWritePrompt, Path: prompt.Path, Version: next, Cause: err}
	}

	prompt.ID = stored.ID
	prompt.Version = stored.Version
	prompt.CreatedAt = stored.CreatedAt
	return nil
}

// Delete implements PromptStorage. Nested prompts below path are kept.
func (s *FilesystemStorage) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validatePromptPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newStorageClosedError()
	}
	versions, err := s.versions(path)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return NewDocumentNotFoundError(path)
	}
	for _, v := range versions {
		if err := os.Remove(s.file(path, v)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &StorageError{Message: ErrMsgDeletePrompt, Path: path, Version: v, Cause: err}
		}
	}
	// only succeeds when nothing is nested below
	_ = os.Remove(s.dir(path))
	return nil
}

// List implements PromptStorage
func (s *FilesystemStorage) List(ctx context.Context, query *PromptQuery) ([]*StoredPrompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, newStorageClosedError()
	}

	var results []*StoredPrompt
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || p == s.root {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		path := filepath.ToSlash(rel)
		versions, err := s.versions(path)
		if err != nil || len(versions) == 0 {
			return err
		}
		prompt, err := s.load(path, versions[0])
		if err != nil {
			return err
		}
		if matchesQuery(prompt, query) {
			results = append(results, prompt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	if results == nil {
		results = []*StoredPrompt{}
	}
	return paginate(results, query), nil
}

// Exists implements PromptStorage
func (s *FilesystemStorage) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validatePromptPath(path); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, newStorageClosedError()
	}
	versions, err := s.versions(path)
	if err != nil {
		return false, err
	}
	return len(versions) > 0, nil
}

// Close implements PromptStorage
func (s *FilesystemStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FilesystemStorage) dir(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

func (s *FilesystemStorage) file(path string, version int) string {
	return filepath.Join(s.dir(path), filesystemVersionPrefix+strconv.Itoa(version)+filesystemVersionSuffix)
}

// versions lists the version numbers stored for path, newest first
func (s *FilesystemStorage) versions(path string) ([]int, error) {
	entries, err := os.ReadDir(s.dir(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Message: ErrMsgReadPrompt, Path: path, Cause: err}
	}

	var versions []int
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filesystemVersionPrefix) || !strings.HasSuffix(name, filesystemVersionSuffix) {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, filesystemVersionPrefix), filesystemVersionSuffix))
		if err == nil && v > 0 {
			versions = append(versions, v)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	return versions, nil
}

func (s *FilesystemStorage) load(path string, version int) (*StoredPrompt, error) {
	data, err := os.ReadFile(s.file(path, version))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newVersionNotFoundError(path, version)
		}
		return nil, &StorageError{Message: ErrMsgReadPrompt, Path: path, Version: version, Cause: err}
	}
	var prompt StoredPrompt
	if err := json.Unmarshal(data, &prompt); err != nil {
		return nil, &StorageError{Message: ErrMsgDecodePrompt, Path: path, Version: version, Cause: err}
	}
	return &prompt, nil
}
