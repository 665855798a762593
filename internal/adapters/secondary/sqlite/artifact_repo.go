package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"fraud-classifier-service/internal/core/domain"
	ports "fraud-classifier-service/internal/core/ports/output"
)

// ArtifactRepository is the file-backed registry used by fraudctl and local
// runs. created_at is stored as unix microseconds; versions are ordered by
// rowid, which follows insertion order.
type ArtifactRepository struct {
	mu sync.RWMutex
	db *sql.DB
}

var _ ports.ArtifactRepository = (*ArtifactRepository)(nil)

// Open opens (or creates) the registry at path. ":memory:" gives a private
// in-memory registry.
func Open(path string) (*ArtifactRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open registry: %v", domain.ErrStorage, err)
	}

	// One connection serializes writers; an in-memory database also lives
	// only as long as its connection.
	db.SetMaxOpenConns(1)
	if !strings.Contains(path, ":memory:") {
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	r := &ArtifactRepository{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate registry: %v", domain.ErrStorage, err)
	}
	return r, nil
}

func (r *ArtifactRepository) migrate() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS artifact_version (
  name TEXT NOT NULL,
  tag TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  labels BLOB NOT NULL,
  metadata BLOB NOT NULL,
  signature BLOB NOT NULL,
  predictor BLOB NOT NULL,
  preprocessor BLOB NOT NULL,
  custom_objects BLOB NOT NULL,
  PRIMARY KEY (name, tag)
);

CREATE TABLE IF NOT EXISTS artifact_latest (
  name TEXT PRIMARY KEY,
  tag TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`)
	return err
}

// handle returns the open database or ErrRegistryClosed. Callers hold mu.
func (r *ArtifactRepository) handle() (*sql.DB, error) {
	if r.db == nil {
		return nil, domain.ErrRegistryClosed
	}
	return r.db, nil
}

func (r *ArtifactRepository) Save(ctx context.Context, artifact *domain.Artifact) error {
	enc, err := domain.EncodeArtifact(artifact)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	db, err := r.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin save: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback()

	created := enc.CreatedAt.UnixMicro()
	_, err = tx.ExecContext(ctx, `
INSERT INTO artifact_version(name, tag, created_at, labels, metadata, signature, predictor, preprocessor, custom_objects)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, enc.Name, enc.Tag, created, enc.Labels, enc.Metadata, enc.Signature, enc.Predictor, enc.Preprocessor, enc.CustomObjects)
	if err != nil {
		return fmt.Errorf("%w: insert artifact version: %v", domain.ErrStorage, err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO artifact_latest(name, tag, created_at) VALUES(?, ?, ?)
ON CONFLICT(name) DO UPDATE SET tag = excluded.tag, created_at = excluded.created_at;
`, enc.Name, enc.Tag, created)
	if err != nil {
		return fmt.Errorf("%w: move latest pointer: %v", domain.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit save: %v", domain.ErrStorage, err)
	}
	return nil
}

const selectVersion = `
SELECT v.name, v.tag, v.created_at, v.labels, v.metadata, v.signature, v.predictor, v.preprocessor, v.custom_objects
FROM artifact_version v
`

func (r *ArtifactRepository) Get(ctx context.Context, name, tag string) (*domain.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, err := r.handle()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, selectVersion+`WHERE v.name = ? AND v.tag = ?;`, name, tag)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s:%s", domain.ErrArtifactNotFound, name, tag)
	}
	return a, err
}

func (r *ArtifactRepository) Latest(ctx context.Context, name string) (*domain.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, err := r.handle()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, selectVersion+`
JOIN artifact_latest l ON l.name = v.name AND l.tag = v.tag
WHERE v.name = ?;`, name)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s:%s", domain.ErrArtifactNotFound, name, domain.LatestTag)
	}
	return a, err
}

func (r *ArtifactRepository) ListVersions(ctx context.Context, name string) ([]domain.ArtifactHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, err := r.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
SELECT name, tag, created_at FROM artifact_version
WHERE name = ? ORDER BY rowid DESC;
`, name)
	if err != nil {
		return nil, fmt.Errorf("%w: list versions: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var out []domain.ArtifactHandle
	for rows.Next() {
		var (
			h       domain.ArtifactHandle
			created int64
		)
		if err := rows.Scan(&h.Name, &h.Tag, &created); err != nil {
			return nil, fmt.Errorf("%w: scan version: %v", domain.ErrStorage, err)
		}
		h.CreatedAt = time.UnixMicro(created).UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list versions: %v", domain.ErrStorage, err)
	}
	return out, nil
}

func (r *ArtifactRepository) ListNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, err := r.handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name FROM artifact_latest ORDER BY name;`)
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
func (r *ArtifactRepository) Delete(ctx context.Context, name, tag string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, err := r.handle()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin delete: %v", domain.ErrStorage, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM artifact_version WHERE name = ? AND tag = ?;`, name, tag)
	if err != nil {
		return fmt.Errorf("%w: delete artifact version: %v", domain.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete artifact version: %v", domain.ErrStorage, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s:%s", domain.ErrArtifactNotFound, name, tag)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM artifact_latest WHERE name = ? AND tag = ?;`, name, tag); err != nil {
		return fmt.Errorf("%w: clear latest pointer: %v", domain.ErrStorage, err)
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO artifact_latest(name, tag, created_at)
SELECT name, tag, created_at FROM artifact_version
WHERE name = ?
ORDER BY rowid DESC
LIMIT 1
ON CONFLICT(name) DO NOTHING;
`, name)
	if err != nil {
		return fmt.Errorf("%w: repoint latest: %v", domain.ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *ArtifactRepository) Ping(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, err := r.handle()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %v", domain.ErrStorage, err)
	}
	return nil
}

// Close releases the database. Later calls fail with ErrRegistryClosed.
func (r *ArtifactRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func scanArtifact(row *sql.Row) (*domain.Artifact, error) {
	var (
		enc     domain.EncodedArtifact
		created int64
	)
	err := row.Scan(&enc.Name, &enc.Tag, &created, &enc.Labels, &enc.Metadata,
		&enc.Signature, &enc.Predictor, &enc.Preprocessor, &enc.CustomObjects)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	enc.CreatedAt = time.UnixMicro(created).UTC()

	a, err := domain.DecodeArtifact(&enc)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s:%s: %v", domain.ErrStorage, enc.Name, enc.Tag, err)
	}
	return a, nil
}
