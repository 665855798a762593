package ports

import (
	"context"

	"fraud-classifier-service/internal/core/domain"
)

// ApplyResult reports what the orchestrator did with a descriptor.
type ApplyResult struct {
	DeploymentCreated bool
	ServiceCreated    bool
	Generation        int64
}

// DeploymentStatus is the observed state of an applied descriptor.
type DeploymentStatus struct {
	Name              string
	Namespace         string
	DesiredReplicas   int32
	ReadyReplicas     int32
	UpdatedReplicas   int32
	AvailableReplicas int32
	ExternalEndpoint  string
}

func (s *DeploymentStatus) Ready() bool {
	return s.DesiredReplicas > 0 && s.AvailableReplicas >= s.DesiredReplicas && s.UpdatedReplicas >= s.DesiredReplicas
}

// ClusterClient converges a cluster onto a DeploymentDescriptor. Apply is
// idempotent: it creates missing objects and updates existing ones in place.
type ClusterClient interface {
	Apply(ctx context.Context, descriptor *domain.DeploymentDescriptor) (*ApplyResult, error)
	Delete(ctx context.Context, namespace, name string) error
	Status(ctx context.Context, namespace, name string) (*DeploymentStatus, error)
}

// ManifestRenderer turns a descriptor into orchestrator manifests without
// contacting a cluster.
type ManifestRenderer interface {
	Render(descriptor *domain.DeploymentDescriptor) ([]byte, error)
}
