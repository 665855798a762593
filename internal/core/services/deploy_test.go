package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fraud-classifier-service/internal/core/domain"
	ports "fraud-classifier-service/internal/core/ports/output"
	"fraud-classifier-service/internal/testutil"
)

type stubRenderer struct {
	rendered []*domain.DeploymentDescriptor
}

func (r *stubRenderer) Render(d *domain.DeploymentDescriptor) ([]byte, error) {
	r.rendered = append(r.rendered, d)
	return []byte("kind: Deployment\nmetadata:\n  name: " + d.Name + "\n"), nil
}

func fraudDescriptor() *domain.DeploymentDescriptor {
	return &domain.DeploymentDescriptor{
		Name:  "fraud-classifier",
		Image: "registry.example.com/fraud-classifier:1.0.0",
		Resources: domain.Resources{
			Limits: domain.ResourceList{Memory: "500Mi", CPU: "1"},
		},
	}
}

func TestDeployService_Apply(t *testing.T) {
	cluster := new(testutil.MockClusterClient)
	svc := NewDeployService(cluster, &stubRenderer{}, "")

	cluster.On("Apply", mock.Anything, mock.MatchedBy(func(d *domain.DeploymentDescriptor) bool {
		return d.Namespace == domain.DefaultNamespace && *d.Replicas == 1 &&
			d.ContainerPort == domain.DefaultContainerPort && d.Expose == domain.ExposeLoadBalancer
	})).Return(&ports.ApplyResult{DeploymentCreated: true, ServiceCreated: true}, nil)

	result, err := svc.Apply(context.Background(), fraudDescriptor())
	require.NoError(t, err)
	assert.True(t, result.DeploymentCreated)
	cluster.AssertExpectations(t)
}

func TestDeployService_Apply_InvalidDescriptor(t *testing.T) {
	cluster := new(testutil.MockClusterClient)
	svc := NewDeployService(cluster, &stubRenderer{}, "")

	d := fraudDescriptor()
	d.Resources.Limits.CPU = ""
	_, err := svc.Apply(context.Background(), d)

	assert.ErrorIs(t, err, domain.ErrInvalidDescriptor)
	cluster.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestDeployService_Apply_ClusterFailure(t *testing.T) {
	cluster := new(testutil.MockClusterClient)
	svc := NewDeployService(cluster, &stubRenderer{}, "")
	cluster.On("Apply", mock.Anything, mock.Anything).
		Return(nil, errors.Join(domain.ErrClusterFailure, errors.New("forbidden")))

	_, err := svc.Apply(context.Background(), fraudDescriptor())
	assert.ErrorIs(t, err, domain.ErrClusterFailure)
	assert.Contains(t, err.Error(), "default/fraud-classifier")
}

func TestDeployService_ClusterDisabled(t *testing.T) {
	renderer := &stubRenderer{}
	svc := NewDeployService(nil, renderer, "")
	ctx := context.Background()

	assert.False(t, svc.IsClusterAvailable())

	_, err := svc.Apply(ctx, fraudDescriptor())
	assert.ErrorIs(t, err, domain.ErrClusterDisabled)
	assert.ErrorIs(t, svc.Teardown(ctx, "", "fraud-classifier"), domain.ErrClusterDisabled)
	_, err = svc.Status(ctx, "", "fraud-classifier")
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	out, err := svc.Render(fraudDescriptor())
	require.NoError(t, err)
	assert.Contains(t, string(out), "fraud-classifier")
	require.Len(t, renderer.rendered, 1)
	assert.Equal(t, domain.DefaultNamespace, renderer.rendered[0].Namespace)
}

func TestDeployService_Render_Invalid(t *testing.T) {
	renderer := &stubRenderer{}
	svc := NewDeployService(nil, renderer, "")

	d := fraudDescriptor()
	d.Image = "not a valid ref!"
	_, err := svc.Render(d)

	assert.ErrorIs(t, err, domain.ErrInvalidDescriptor)
	assert.Empty(t, renderer.rendered)
}

func TestDeployService_TeardownAndStatusDefaultNamespace(t *testing.T) {
	cluster := new(testutil.MockClusterClient)
	svc := NewDeployService(cluster, &stubRenderer{}, "")
	ctx := context.Background()

	cluster.On("Delete", mock.Anything, domain.DefaultNamespace, "fraud-classifier").Return(nil)
	cluster.On("Status", mock.Anything, domain.DefaultNamespace, "fraud-classifier").
		Return(&ports.DeploymentStatus{Name: "fraud-classifier", DesiredReplicas: 1, AvailableReplicas: 1, UpdatedReplicas: 1}, nil)

	status, err := svc.Status(ctx, "", "fraud-classifier")
	require.NoError(t, err)
	assert.True(t, status.Ready())

	require.NoError(t, svc.Teardown(ctx, "", "fraud-classifier"))
	cluster.AssertExpectations(t)
}

func TestDeployService_TeardownMissing(t *testing.T) {
	cluster := new(testutil.MockClusterClient)
	svc := NewDeployService(cluster, &stubRenderer{}, "")
	cluster.On("Delete", mock.Anything, "fraud", "fraud-classifier").Return(domain.ErrDeploymentMissing)

	err := svc.Teardown(context.Background(), "fraud", "fraud-classifier")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeployService_ConfiguredNamespace(t *testing.T) {
	cluster := new(testutil.MockClusterClient)
	renderer := &stubRenderer{}
	svc := NewDeployService(cluster, renderer, "risk")
	ctx := context.Background()

	cluster.On("Apply", mock.Anything, mock.MatchedBy(func(d *domain.DeploymentDescriptor) bool {
		return d.Namespace == "risk"
	})).Return(&ports.ApplyResult{}, nil)
	cluster.On("Status", mock.Anything, "risk", "fraud-classifier").
		Return(&ports.DeploymentStatus{Name: "fraud-classifier", Namespace: "risk"}, nil)
	cluster.On("Delete", mock.Anything, "risk", "fraud-classifier").Return(nil)

	_, err := svc.Render(fraudDescriptor())
	require.NoError(t, err)
	assert.Equal(t, "risk", renderer.rendered[0].Namespace)

	_, err = svc.Apply(ctx, fraudDescriptor())
	require.NoError(t, err)

	explicit := fraudDescriptor()
	explicit.Namespace = "payments"
	_, err = svc.Render(explicit)
	require.NoError(t, err)
	assert.Equal(t, "payments", renderer.rendered[1].Namespace)

	_, err = svc.Status(ctx, "", "fraud-classifier")
	require.NoError(t, err)
	require.NoError(t, svc.Teardown(ctx, "", "fraud-classifier"))
	cluster.AssertExpectations(t)
}
