package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"fraud-classifier-service/internal/core/domain"
	"fraud-classifier-service/internal/core/model"
	ports "fraud-classifier-service/internal/core/ports/output"
)

type RegistryService struct {
	repo   ports.ArtifactRepository
	now    func() time.Time
	newTag func() (string, error)
}

func NewRegistryService(repo ports.ArtifactRepository) *RegistryService {
	return &RegistryService{repo: repo, now: time.Now, newTag: newTimeOrderedTag}
}

// newTimeOrderedTag returns a UUIDv7 string: unique without coordination
// between writers and sortable by creation time.
func newTimeOrderedTag() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate tag: %w", err)
	}
	return id.String(), nil
}

type SaveRequest struct {
	Name          string
	Predictor     model.Predictor
	Preprocessor  *model.Pipeline
	Labels        map[string]string
	Metadata      map[string]any
	CustomObjects domain.CustomObjects
	Signature     domain.Signature
}

// Save persists req under a fresh tag of req.Name and moves "latest" to it.
// When no feature names are given, the preprocessor's column order is pinned.
func (s *RegistryService) Save(ctx context.Context, req SaveRequest) (*domain.ArtifactHandle, error) {
	artifact := &domain.Artifact{
		Name:          req.Name,
		Labels:        req.Labels,
		Metadata:      req.Metadata,
		Signature:     req.Signature,
		Predictor:     req.Predictor,
		Preprocessor:  req.Preprocessor,
		CustomObjects: req.CustomObjects,
	}
	if artifact.Signature.Method == "" {
		artifact.Signature.Method = domain.DefaultMethod
	}
	if artifact.Labels == nil {
		artifact.Labels = map[string]string{}
	}
	if artifact.Metadata == nil {
		artifact.Metadata = map[string]any{}
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	if len(artifact.CustomObjects.FeatureNames) == 0 {
		artifact.CustomObjects.FeatureNames = artifact.Preprocessor.Columns()
	}

	tag, err := s.newTag()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	artifact.Tag = tag
	// Postgres keeps microseconds; truncate so a reload compares equal.
	artifact.CreatedAt = s.now().UTC().Truncate(time.Microsecond)

	if err := s.repo.Save(ctx, artifact); err != nil {
		return nil, err
	}

	handle := artifact.Handle()
	log.WithFields(log.Fields{
		"artifact":  handle.String(),
		"predictor": artifact.Predictor.Kind(),
		"columns":   len(artifact.CustomObjects.FeatureNames),
	}).Info("artifact saved")
	return &handle, nil
}

// Load resolves tag ("" or "latest" follow the alias) and returns the artifact.
func (s *RegistryService) Load(ctx context.Context, name, tag string) (*domain.Artifact, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}

	var (
		artifact *domain.Artifact
		err      error
	)
	if tag == "" || tag == domain.LatestTag {
		artifact, err = s.repo.Latest(ctx, name)
	} else {
		if err := domain.ValidateTag(tag); err != nil {
			return nil, err
		}
		artifact, err = s.repo.Get(ctx, name, tag)
	}
	if err != nil {
		return nil, err
	}

	if err := artifact.CheckColumns(); err != nil {
		return nil, fmt.Errorf("load %s: %w", artifact.Handle(), err)
	}
	return artifact, nil
}

func (s *RegistryService) ListVersions(ctx context.Context, name string) ([]domain.ArtifactHandle, error) {
	if err := domain.ValidateName(name); err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, name)
	}
	return versions, nil
}

func (s *RegistryService) ListNames(ctx context.Context) ([]string, error) {
	return s.repo.ListNames(ctx)
}

// Delete removes one concrete version. If it was "latest", the alias falls
// back to the newest remaining version.
func (s *RegistryService) Delete(ctx context.Context, name, tag string) error {
	if err := domain.ValidateName(name); err != nil {
		return err
	}
	if err := domain.ValidateTag(tag); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, name, tag); err != nil {
		return err
	}
	log.WithField("artifact", name+":"+tag).Info("artifact deleted")
	return nil
}

func (s *RegistryService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
