package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fraud-classifier-service/internal/core/domain"
	ports "fraud-classifier-service/internal/core/ports/output"
)

// MockArtifactRepo is a mock of ArtifactRepository.
type MockArtifactRepo struct {
	mock.Mock
}

func (m *MockArtifactRepo) Save(ctx context.Context, artifact *domain.Artifact) error {
	args := m.Called(ctx, artifact)
	return args.Error(0)
}

func (m *MockArtifactRepo) Get(ctx context.Context, name, tag string) (*domain.Artifact, error) {
	args := m.Called(ctx, name, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Artifact), args.Error(1)
}

func (m *MockArtifactRepo) Latest(ctx context.Context, name string) (*domain.Artifact, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Artifact), args.Error(1)
}

func (m *MockArtifactRepo) ListVersions(ctx context.Context, name string) ([]domain.ArtifactHandle, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ArtifactHandle), args.Error(1)
}

func (m *MockArtifactRepo) ListNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockArtifactRepo) Delete(ctx context.Context, name, tag string) error {
	args := m.Called(ctx, name, tag)
	return args.Error(0)
}

func (m *MockArtifactRepo) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockArtifactRepo) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockArtifactLoader is a mock of the inference service's registry handle.
type MockArtifactLoader struct {
	mock.Mock
}

func (m *MockArtifactLoader) Load(ctx context.Context, name, tag string) (*domain.Artifact, error) {
	args := m.Called(ctx, name, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Artifact), args.Error(1)
}

// MockClusterClient is a mock of ClusterClient.
type MockClusterClient struct {
	mock.Mock
}

func (m *MockClusterClient) Apply(ctx context.Context, d *domain.DeploymentDescriptor) (*ports.ApplyResult, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ApplyResult), args.Error(1)
}

func (m *MockClusterClient) Delete(ctx context.Context, namespace, name string) error {
	args := m.Called(ctx, namespace, name)
	return args.Error(0)
}

func (m *MockClusterClient) Status(ctx context.Context, namespace, name string) (*ports.DeploymentStatus, error) {
	args := m.Called(ctx, namespace, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.DeploymentStatus), args.Error(1)
}

// MockQueue is a mock of QueueConsumer.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Receive(ctx context.Context) ([]ports.QueueMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.QueueMessage), args.Error(1)
}

func (m *MockQueue) Publish(ctx context.Context, result any) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockQueue) Ack(ctx context.Context, msg ports.QueueMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
