package promptl

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Storage driver names
const (
	StorageDriverNameMemory     = "memory"
	StorageDriverNameFilesystem = "filesystem"
	StorageDriverNamePostgres   = "postgres"
)

// Storage error message constants
const (
	ErrMsgNilStorageDriver        = "storage driver is nil"
	ErrMsgDriverAlreadyRegistered = "storage driver already registered"
	ErrMsgStorageDriverNotFound   = "storage driver not found"
	ErrMsgStorageClosed           = "storage is closed"
	ErrMsgInvalidPromptPath       = "invalid prompt path"
	ErrMsgVersionNotFound         = "prompt version not found"
	ErrMsgInvalidVersionRef       = "invalid version in reference"
)

// referenceVersionSep separates a path from a pinned version in references
// served from storage, e.g. "shared/header@3"
const referenceVersionSep = "@"

// StoredPrompt is one version of a prompt document held by a PromptStorage
type StoredPrompt struct {
	// ID is unique per version
	ID string `json:"id"`

	// Path is the document path references resolve against
	Path string `json:"path"`

	Source  string `json:"source"`
	Version int    `json:"version"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	CreatedBy string            `json:"created_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// PromptQuery filters List results
type PromptQuery struct {
	// PathPrefix matches paths starting with this prefix
	PathPrefix string

	// Tags matches prompts having ALL of these tags
	Tags []string

	// Limit is the maximum number of results (0 = no limit)
	Limit int

	Offset int
}

// PromptStorage persists versioned prompt documents. Implementations must be
// safe for concurrent use.
type PromptStorage interface {
	// Get returns the latest version of the prompt at path.
	Get(ctx context.Context, path string) (*StoredPrompt, error)

	// GetVersion returns a specific version.
	GetVersion(ctx context.Context, path string, version int) (*StoredPrompt, error)

	// Save stores prompt as a new version. ID, Version and CreatedAt are set
	// by the storage and written back to prompt.
	Save(ctx context.Context, prompt *StoredPrompt) error

	// Delete removes every version of the prompt at path.
	Delete(ctx context.Context, path string) error

	// List returns the latest version of each matching prompt ordered by path.
	List(ctx context.Context, query *PromptQuery) ([]*StoredPrompt, error)

	Exists(ctx context.Context, path string) (bool, error)

	Close() error
}

// StorageDriver opens a PromptStorage from a driver-specific connection
// string
type StorageDriver interface {
	Open(connectionString string) (PromptStorage, error)
}

var (
	storageDriversMu sync.RWMutex
	storageDrivers   = make(map[string]StorageDriver)
)

// RegisterStorageDriver registers a driver by name. It panics when driver is
// nil or the name is taken.
func RegisterStorageDriver(name string, driver StorageDriver) {
	storageDriversMu.Lock()
	defer storageDriversMu.Unlock()

	if driver == nil {
		panic(ErrMsgNilStorageDriver)
	}
	if _, exists := storageDrivers[name]; exists {
		panic(ErrMsgDriverAlreadyRegistered + ": " + name)
	}
	storageDrivers[name] = driver
}

// OpenStorage opens a storage with the named driver.
//
//	store, err := promptl.OpenStorage("memory", "")
//	store, err := promptl.OpenStorage("filesystem", "./prompts")
//	store, err := promptl.OpenStorage("postgres", "postgres://localhost/promptl?sslmode=disable")
func OpenStorage(driverName, connectionString string) (PromptStorage, error) {
	storageDriversMu.RLock()
	driver, ok := storageDrivers[driverName]
	storageDriversMu.RUnlock()

	if !ok {
		return nil, &StorageError{Message: ErrMsgStorageDriverNotFound, Path: driverName}
	}
	return driver.Open(connectionString)
}

// ListStorageDrivers returns the registered driver names, sorted
func ListStorageDrivers() []string {
	storageDriversMu.RLock()
	defer storageDriversMu.RUnlock()

	names := make([]string, 0, len(storageDrivers))
	for name := range storageDrivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StorageReferenceFn serves references from a store. A reference may pin a
// version with an "@N" suffix; otherwise the latest version is used.
func StorageReferenceFn(s PromptStorage) ReferenceFn {
	return func(ctx context.Context, path string) (string, error) {
		name, version, err := splitVersionRef(path)
		if err != nil {
			return "", err
		}
		var prompt *StoredPrompt
		if version > 0 {
			prompt, err = s.GetVersion(ctx, name, version)
		} else {
			prompt, err = s.Get(ctx, name)
		}
		if err != nil {
			return "", err
		}
		return prompt.Source, nil
	}
}

func splitVersionRef(ref string) (string, int, error) {
	i := strings.LastIndex(ref, referenceVersionSep)
	if i < 0 {
		return ref, 0, nil
	}
	version, err := strconv.Atoi(ref[i+1:])
	if err != nil || version < 1 {
		return "", 0, &StorageError{Message: ErrMsgInvalidVersionRef, Path: ref, Cause: err}
	}
	return ref[:i], version, nil
}

// StorageError is returned by storage drivers
type StorageError struct {
	Message string
	Path    string
	Version int
	Cause   error
}

// Error implements the error interface
func (e *StorageError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg += ": " + e.Path
		if e.Version > 0 {
			msg += " v" + strconv.Itoa(e.Version)
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *StorageError) Unwrap() error {
	return e.Cause
}

func newStorageClosedError() error {
	return &StorageError{Message: ErrMsgStorageClosed}
}

func newVersionNotFoundError(path string, version int) error {
	return &StorageError{Message: ErrMsgVersionNotFound, Path: path, Version: version, Cause: NewDocumentNotFoundError(path)}
}

// validatePromptPath rejects paths that are empty, absolute or escape
// their root
func validatePromptPath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.ContainsAny(path, "\\\x00"+referenceVersionSep) {
		return &StorageError{Message: ErrMsgInvalidPromptPath, Path: path}
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return &StorageError{Message: ErrMsgInvalidPromptPath, Path: path}
		}
	}
	return nil
}

// matchesQuery reports whether p passes the path and tag filters
func matchesQuery(p *StoredPrompt, q *PromptQuery) bool {
	if q == nil {
		return true
	}
	if q.PathPrefix != "" && !strings.HasPrefix(p.Path, q.PathPrefix) {
		return false
	}
	for _, want := range q.Tags {
		found := false
		for _, tag := range p.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// paginate applies offset and limit to results already sorted by path
func paginate(results []*StoredPrompt, q *PromptQuery) []*StoredPrompt {
	if q == nil {
		return results
	}
	if q.Offset > 0 {
		if q.Offset >= len(results) {
			return []*StoredPrompt{}
		}
		results = results[q.Offset:]
	}
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results
}

func copyStoredPrompt(p *StoredPrompt) *StoredPrompt {
	out := *p
	if p.Metadata != nil {
		out.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	return &out
}
