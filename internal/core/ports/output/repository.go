package ports

import (
	"context"

	"fraud-classifier-service/internal/core/domain"
)

// ArtifactRepository is the versioned artifact store behind the registry.
// Save writes the artifact row and moves the "latest" pointer in one atomic
// step; a (name, tag) pair that already exists is never overwritten.
type ArtifactRepository interface {
	Save(ctx context.Context, artifact *domain.Artifact) error
	Get(ctx context.Context, name, tag string) (*domain.Artifact, error)
	Latest(ctx context.Context, name string) (*domain.Artifact, error)
	ListVersions(ctx context.Context, name string) ([]domain.ArtifactHandle, error)
	ListNames(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name, tag string) error
	Ping(ctx context.Context) error
	Close() error
}
