package sqlite_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fraud-classifier-service/internal/adapters/secondary/sqlite"
	"fraud-classifier-service/internal/core/domain"
	"fraud-classifier-service/internal/core/model"
	"fraud-classifier-service/internal/core/services"
	"fraud-classifier-service/internal/testutil"
)

func newRegistry(t *testing.T) (*services.RegistryService, *sqlite.ArtifactRepository) {
	t.Helper()
	repo, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return services.NewRegistryService(repo), repo
}

func fraudSaveRequest() services.SaveRequest {
	a := testutil.FraudArtifact("")
	return services.SaveRequest{
		Name:         a.Name,
		Predictor:    a.Predictor,
		Preprocessor: a.Preprocessor,
		Labels:       a.Labels,
		Metadata:     a.Metadata,
		Signature:    a.Signature,
	}
}

func TestRegistry_SaveThenLoadLatest(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	handle, err := reg.Save(ctx, fraudSaveRequest())
	require.NoError(t, err)
	assert.Equal(t, testutil.FraudArtifactName, handle.Name)
	assert.NotEmpty(t, handle.Tag)

	loaded, err := reg.Load(ctx, testutil.FraudArtifactName, domain.LatestTag)
	require.NoError(t, err)
	assert.Equal(t, handle.Tag, loaded.Tag)
	assert.True(t, handle.CreatedAt.Equal(loaded.CreatedAt))
	assert.Equal(t, map[string]string{"owner": "risk-team"}, loaded.Labels)
	assert.Equal(t, 0.91, loaded.Metadata["auc"])
	assert.True(t, loaded.Signature.Batchable)
	assert.Equal(t, testutil.FraudPipeline().Columns(), loaded.CustomObjects.FeatureNames)

	byTag, err := reg.Load(ctx, testutil.FraudArtifactName, handle.Tag)
	require.NoError(t, err)
	assert.Equal(t, handle.Tag, byTag.Tag)
}

func TestRegistry_LoadedArtifactPredictsLikeTheSavedOne(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	req := fraudSaveRequest()
	_, err := reg.Save(ctx, req)
	require.NoError(t, err)
	loaded, err := reg.Load(ctx, testutil.FraudArtifactName, "")
	require.NoError(t, err)

	records := []model.Record{testutil.FraudExampleRecord(), testutil.FraudLowRiskRecord()}
	for _, pair := range []struct {
		pipeline  *model.Pipeline
		predictor model.Predictor
	}{
		{req.Preprocessor, req.Predictor},
		{loaded.Preprocessor, loaded.Predictor},
	} {
		x, err := pair.pipeline.Assemble(records)
		require.NoError(t, err)
		labels, err := pair.predictor.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 0}, labels)
	}
}

func TestRegistry_TwoSavesGiveDistinctVersions(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	first, err := reg.Save(ctx, fraudSaveRequest())
	require.NoError(t, err)
	second, err := reg.Save(ctx, fraudSaveRequest())
	require.NoError(t, err)
	assert.NotEqual(t, first.Tag, second.Tag)

	latest, err := reg.Load(ctx, testutil.FraudArtifactName, domain.LatestTag)
	require.NoError(t, err)
	assert.Equal(t, second.Tag, latest.Tag)

	old, err := reg.Load(ctx, testutil.FraudArtifactName, first.Tag)
	require.NoError(t, err)
	assert.Equal(t, first.Tag, old.Tag)

	versions, err := reg.ListVersions(ctx, testutil.FraudArtifactName)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, second.Tag, versions[0].Tag)
}

func TestRegistry_LoadMissing(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	_, err := reg.Load(ctx, "never_saved", domain.LatestTag)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = reg.Save(ctx, fraudSaveRequest())
	require.NoError(t, err)
	_, err = reg.Load(ctx, testutil.FraudArtifactName, "0190f5e6-0000-7000-8000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = reg.ListVersions(ctx, "never_saved")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_ConcurrentSavesAreAllKept(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	const n = 8
	tags := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := reg.Save(ctx, fraudSaveRequest())
			if assert.NoError(t, err) {
				tags[i] = h.Tag
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, tag := range tags {
		assert.False(t, seen[tag], "duplicate tag %s", tag)
		seen[tag] = true
	}

	versions, err := reg.ListVersions(ctx, testutil.FraudArtifactName)
	require.NoError(t, err)
	assert.Len(t, versions, n)

	latest, err := reg.Load(ctx, testutil.FraudArtifactName, domain.LatestTag)
	require.NoError(t, err)
	assert.Equal(t, versions[0].Tag, latest.Tag)
}

func TestRegistry_RejectsInvalidSaves(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	req := fraudSaveRequest()
	req.Name = ""
	_, err := reg.Save(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	req = fraudSaveRequest()
	req.Signature.BatchDim = 1
	_, err = reg.Save(ctx, req)
	assert.ErrorIs(t, err, domain.ErrUnsupportedBatching)

	names, err := reg.ListNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRegistry_DeleteMovesLatestBack(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	first, err := reg.Save(ctx, fraudSaveRequest())
	require.NoError(t, err)
	second, err := reg.Save(ctx, fraudSaveRequest())
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, testutil.FraudArtifactName, second.Tag))
	latest, err := reg.Load(ctx, testutil.FraudArtifactName, domain.LatestTag)
	require.NoError(t, err)
	assert.Equal(t, first.Tag, latest.Tag)

	require.NoError(t, reg.Delete(ctx, testutil.FraudArtifactName, first.Tag))
	_, err = reg.Load(ctx, testutil.FraudArtifactName, domain.LatestTag)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = reg.Delete(ctx, testutil.FraudArtifactName, first.Tag)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_ListNames(t *testing.T) {
	reg, _ := newRegistry(t)
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		req := fraudSaveRequest()
		req.Name = name
		_, err := reg.Save(ctx, req)
		require.NoError(t, err)
	}

	names, err := reg.ListNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestRegistry_ClosedStoreIsStorageError(t *testing.T) {
	reg, repo := newRegistry(t)
	require.NoError(t, repo.Close())

	_, err := reg.Save(context.Background(), fraudSaveRequest())
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = reg.Load(context.Background(), testutil.FraudArtifactName, domain.LatestTag)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, reg.Ping(context.Background()), domain.ErrStorage)
}

func TestOpen_FileBackedRegistrySurvivesReopen(t *testing.T) {
	path := fmt.Sprintf("%s/registry.db", t.TempDir())

	repo, err := sqlite.Open(path)
	require.NoError(t, err)
	handle, err := services.NewRegistryService(repo).Save(context.Background(), fraudSaveRequest())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = sqlite.Open(path)
	require.NoError(t, err)
	defer repo.Close()

	loaded, err := services.NewRegistryService(repo).Load(context.Background(), testutil.FraudArtifactName, domain.LatestTag)
	require.NoError(t, err)
	assert.Equal(t, handle.Tag, loaded.Tag)
}
