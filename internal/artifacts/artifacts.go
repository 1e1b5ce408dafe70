// Package artifacts stores report artifact bytes, addressed by the same
// agency/client/filename path the signed-URL authority protects.
package artifacts

import (
	"context"
	"errors"
)

// ErrArtifactNotFound indicates no artifact exists at the given path.
var ErrArtifactNotFound = errors.New("artifacts: not found")

// Artifact is one stored report file.
type Artifact struct {
	Path        string
	ContentType string
	Data        []byte
}

// Store defines the object store operations the gateway consumes.
type Store interface {
	// Put stores an artifact at path, overwriting any previous version.
	Put(ctx context.Context, path, contentType string, data []byte) error

	// Get fetches the artifact at path, or ErrArtifactNotFound.
	Get(ctx context.Context, path string) (*Artifact, error)

	// Delete removes the artifact at path. Absent paths are not an error.
	Delete(ctx context.Context, path string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
