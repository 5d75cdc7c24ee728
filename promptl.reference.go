package promptl

import (
	"context"

	"github.com/itsatony/go-promptl/internal"
)

// ReferenceFn fetches the raw source of a referenced prompt. path has
// already been resolved against the referencing document. Implementations
// must be idempotent within one resolution; the engine fetches each path at
// most once per call.
type ReferenceFn func(ctx context.Context, path string) (string, error)

// MapReferences serves references from an in-memory path to source map
func MapReferences(sources map[string]string) ReferenceFn {
	return func(ctx context.Context, path string) (string, error) {
		src, ok := sources[path]
		if !ok {
			return "", NewDocumentNotFoundError(path)
		}
		return src, nil
	}
}

// ResolveReferencePath resolves ref relative to the document at current.
// Paths starting with "/" are absolute.
func ResolveReferencePath(current, ref string) string {
	return internal.ResolveReferencePath(current, ref)
}
