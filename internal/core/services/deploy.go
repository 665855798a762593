package services

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"fraud-classifier-service/internal/core/domain"
	ports "fraud-classifier-service/internal/core/ports/output"
)

type DeployService struct {
	cluster   ports.ClusterClient
	renderer  ports.ManifestRenderer
	namespace string
}

// NewDeployService wires the orchestrator. cluster may be nil when cluster
// access is disabled; Render still works. namespace is used wherever a
// descriptor or request leaves it out, falling back to "default".
func NewDeployService(cluster ports.ClusterClient, renderer ports.ManifestRenderer, namespace string) *DeployService {
	if namespace == "" {
		namespace = domain.DefaultNamespace
	}
	return &DeployService{cluster: cluster, renderer: renderer, namespace: namespace}
}

func (s *DeployService) IsClusterAvailable() bool {
	return s.cluster != nil
}

// Render validates d and returns the manifests Apply would submit.
func (s *DeployService) Render(d *domain.DeploymentDescriptor) ([]byte, error) {
	d.ApplyDefaults(s.namespace)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return s.renderer.Render(d)
}

// Apply converges the cluster onto d. Applying an unchanged descriptor again
// leaves the running state as it is.
func (s *DeployService) Apply(ctx context.Context, d *domain.DeploymentDescriptor) (*ports.ApplyResult, error) {
	if !s.IsClusterAvailable() {
		return nil, domain.ErrClusterDisabled
	}

	d.ApplyDefaults(s.namespace)
	if err := d.Validate(); err != nil {
		return nil, err
	}

	result, err := s.cluster.Apply(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("apply %s/%s: %w", d.Namespace, d.Name, err)
	}

	log.WithFields(log.Fields{
		"namespace":          d.Namespace,
		"name":               d.Name,
		"image":              d.Image,
		"replicas":           *d.Replicas,
		"deployment_created": result.DeploymentCreated,
		"service_created":    result.ServiceCreated,
	}).Info("deployment descriptor applied")
	return result, nil
}

func (s *DeployService) Teardown(ctx context.Context, namespace, name string) error {
	if !s.IsClusterAvailable() {
		return domain.ErrClusterDisabled
	}
	if namespace == "" {
		namespace = s.namespace
	}
	if err := s.cluster.Delete(ctx, namespace, name); err != nil {
		return fmt.Errorf("teardown %s/%s: %w", namespace, name, err)
	}
	log.WithFields(log.Fields{"namespace": namespace, "name": name}).Info("deployment torn down")
	return nil
}

func (s *DeployService) Status(ctx context.Context, namespace, name string) (*ports.DeploymentStatus, error) {
	if !s.IsClusterAvailable() {
		return nil, domain.ErrClusterDisabled
	}
	if namespace == "" {
		namespace = s.namespace
	}
	return s.cluster.Status(ctx, namespace, name)
}
