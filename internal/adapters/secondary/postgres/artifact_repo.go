package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fraud-classifier-service/internal/core/domain"
	ports "fraud-classifier-service/internal/core/ports/output"
)

// Schema is applied by Migrate. artifact_latest holds the mutable "latest"
// pointer; versions themselves are never updated. seq is assigned by the
// database and orders versions by save, independent of client clocks.
const Schema = `
CREATE TABLE IF NOT EXISTS artifact_version (
	seq            BIGSERIAL   NOT NULL,
	name           TEXT        NOT NULL,
	tag            TEXT        NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	labels         JSONB       NOT NULL,
	metadata       JSONB       NOT NULL,
	signature      JSONB       NOT NULL,
	predictor      JSONB       NOT NULL,
	preprocessor   JSONB       NOT NULL,
	custom_objects JSONB       NOT NULL,
	PRIMARY KEY (name, tag)
);

ALTER TABLE artifact_version ADD COLUMN IF NOT EXISTS seq BIGSERIAL;

CREATE INDEX IF NOT EXISTS artifact_version_seq_idx
	ON artifact_version (name, seq DESC);

CREATE TABLE IF NOT EXISTS artifact_latest (
	name       TEXT        PRIMARY KEY,
	tag        TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	FOREIGN KEY (name, tag) REFERENCES artifact_version (name, tag)
);
`

const selectVersion = `
	SELECT v.name, v.tag, v.created_at, v.labels, v.metadata, v.signature,
		   v.predictor, v.preprocessor, v.custom_objects
	FROM artifact_version v
`

type artifactRepo struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

func NewArtifactRepository(pool *pgxpool.Pool) ports.ArtifactRepository {
	return &artifactRepo{pool: pool}
}

// Migrate creates the registry tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: migrate registry schema: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *artifactRepo) Save(ctx context.Context, artifact *domain.Artifact) error {
	if r.closed.Load() {
		return domain.ErrRegistryClosed
	}
	enc, err := domain.EncodeArtifact(artifact)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin save: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO artifact_version
			(name, tag, created_at, labels, metadata, signature, predictor, preprocessor, custom_objects)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		enc.Name, enc.Tag, enc.CreatedAt, enc.Labels, enc.Metadata,
		enc.Signature, enc.Predictor, enc.Preprocessor, enc.CustomObjects,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: version %s:%s already exists", domain.ErrStorage, enc.Name, enc.Tag)
		}
		return fmt.Errorf("%w: insert artifact version: %v", domain.ErrStorage, err)
	}

	// The pointer row lock serializes concurrent saves; the last to commit wins.
	_, err = tx.Exec(ctx, `
		INSERT INTO artifact_latest (name, tag, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
			SET tag = EXCLUDED.tag, created_at = EXCLUDED.created_at
	`, enc.Name, enc.Tag, enc.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: move latest pointer: %v", domain.ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit save: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *artifactRepo) Get(ctx context.Context, name, tag string) (*domain.Artifact, error) {
	if r.closed.Load() {
		return nil, domain.ErrRegistryClosed
	}
	query := selectVersion + ` WHERE v.name = $1 AND v.tag = $2`
	a, err := scanArtifact(r.pool.QueryRow(ctx, query, name, tag))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s:%s", domain.ErrArtifactNotFound, name, tag)
		}
		return nil, fmt.Errorf("get artifact %s:%s: %w", name, tag, err)
	}
	return a, nil
}

func (r *artifactRepo) Latest(ctx context.Context, name string) (*domain.Artifact, error) {
	if r.closed.Load() {
		return nil, domain.ErrRegistryClosed
	}
	query := selectVersion + `
		JOIN artifact_latest l ON l.name = v.name AND l.tag = v.tag
		WHERE v.name = $1
	`
	a, err := scanArtifact(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s:%s", domain.ErrArtifactNotFound, name, domain.LatestTag)
		}
		return nil, fmt.Errorf("get latest artifact %s: %w", name, err)
	}
	return a, nil
}

func (r *artifactRepo) ListVersions(ctx context.Context, name string) ([]domain.ArtifactHandle, error) {
	if r.closed.Load() {
		return nil, domain.ErrRegistryClosed
	}
	rows, err := r.pool.Query(ctx, `
		SELECT name, tag, created_at FROM artifact_version
		WHERE name = $1
		ORDER BY seq DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("%w: list versions: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var handles []domain.ArtifactHandle
	for rows.Next() {
		var h domain.ArtifactHandle
		if err := rows.Scan(&h.Name, &h.Tag, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan version: %v", domain.ErrStorage, err)
		}
		h.CreatedAt = h.CreatedAt.UTC()
		handles = append(handles, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list versions: %v", domain.ErrStorage, err)
	}
	return handles, nil
}

func (r *artifactRepo) ListNames(ctx context.Context) ([]string, error) {
	if r.closed.Load() {
		return nil, domain.ErrRegistryClosed
	}
	rows, err := r.pool.Query(ctx, `SELECT name FROM artifact_latest ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: list names: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: scan name: %v", domain.ErrStorage, err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list names: %v", domain.ErrStorage, err)
	}
	return names, nil
}

// Delete removes one version and repoints "latest" at the most recently saved
// remaining version, or drops the pointer when none remain.
func (r *artifactRepo) Delete(ctx context.Context, name, tag string) error {
	if r.closed.Load() {
		return domain.ErrRegistryClosed
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin delete: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM artifact_latest WHERE name = $1 AND tag = $2`, name, tag); err != nil {
		return fmt.Errorf("%w: clear latest pointer: %v", domain.ErrStorage, err)
	}
	result, err := tx.Exec(ctx, `DELETE FROM artifact_version WHERE name = $1 AND tag = $2`, name, tag)
	if err != nil {
		return fmt.Errorf("%w: delete artifact version: %v", domain.ErrStorage, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s:%s", domain.ErrArtifactNotFound, name, tag)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO artifact_latest (name, tag, created_at)
		SELECT name, tag, created_at FROM artifact_version
		WHERE name = $1
		ORDER BY seq DESC
		LIMIT 1
		ON CONFLICT (name) DO NOTHING
	`, name)
	if err != nil {
		return fmt.Errorf("%w: repoint latest: %v", domain.ErrStorage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit delete: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *artifactRepo) Ping(ctx context.Context) error {
	if r.closed.Load() {
		return domain.ErrRegistryClosed
	}
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", domain.ErrStorage, err)
	}
	return nil
}

// Close marks the handle released. The pool itself belongs to the caller.
func (r *artifactRepo) Close() error {
	r.closed.Store(true)
	return nil
}

func scanArtifact(row pgx.Row) (*domain.Artifact, error) {
	var enc domain.EncodedArtifact
	err := row.Scan(
		&enc.Name, &enc.Tag, &enc.CreatedAt, &enc.Labels, &enc.Metadata,
		&enc.Signature, &enc.Predictor, &enc.Preprocessor, &enc.CustomObjects,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	enc.CreatedAt = enc.CreatedAt.UTC()
	a, err := domain.DecodeArtifact(&enc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return a, nil
}
