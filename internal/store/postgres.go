package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sunfield-ops/solarledger/internal/db"
	"github.com/sunfield-ops/solarledger/internal/model"
	"github.com/sunfield-ops/solarledger/internal/timeline"
)

// PostgresStore implements Store using pgxpool, for deployments where the
// ledger is shared by several operators.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS versions (
	identity_key  TEXT NOT NULL,
	version       INTEGER NOT NULL,
	supplier      TEXT NOT NULL,
	product_code  TEXT NOT NULL,
	fields        JSONB NOT NULL,
	extras        JSONB NOT NULL DEFAULT '{}',
	valid_from    TIMESTAMPTZ NOT NULL,
	valid_to      TIMESTAMPTZ NOT NULL,
	effective_to  TIMESTAMPTZ,
	source_file   TEXT NOT NULL,
	extracted_at  TIMESTAMPTZ NOT NULL,
	supersedes    INTEGER,
	superseded_by INTEGER,
	conflict      BOOLEAN NOT NULL DEFAULT FALSE,
	appended_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (identity_key, version)
);

CREATE TABLE IF NOT EXISTS components (
	identity_key   TEXT PRIMARY KEY,
	supplier       TEXT NOT NULL,
	product_code   TEXT NOT NULL,
	latest_version INTEGER NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_versions_window ON versions(identity_key, valid_from);
CREATE INDEX IF NOT EXISTS idx_versions_appended ON versions(appended_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, v *model.Version) error {
	fieldsJSON, extrasJSON, err := marshalPayload(v)
	if err != nil {
		return err
	}

	if v.AppendedAt.IsZero() {
		v.AppendedAt = time.Now().UTC()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin append")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO versions (identity_key, version, supplier, product_code, fields, extras,
			valid_from, valid_to, source_file, extracted_at, supersedes, conflict, appended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		v.Identity.Key, v.Number, v.Identity.Supplier, v.Identity.ProductCode,
		fieldsJSON, extrasJSON,
		v.ValidFrom.UTC(), v.ValidTo.UTC(), v.SourceFile, v.ExtractedAt.UTC(),
		v.Supersedes, v.Conflict, v.AppendedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return eris.Wrapf(ErrVersionCollision, "identity %s version %d", v.Identity.Key, v.Number)
		}
		return eris.Wrapf(err, "postgres: insert version %s/%d", v.Identity.Key, v.Number)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO components (identity_key, supplier, product_code, latest_version, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (identity_key) DO UPDATE SET
			latest_version = EXCLUDED.latest_version,
			updated_at = EXCLUDED.updated_at`,
		v.Identity.Key, v.Identity.Supplier, v.Identity.ProductCode, v.Number, v.AppendedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update component index %s", v.Identity.Key)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit append")
}

func (s *PostgresStore) MarkSuperseded(ctx context.Context, identityKey string, number, supersededBy int, effectiveTo *time.Time, unresolved bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE versions SET superseded_by = $1, effective_to = $2, conflict = $3
		 WHERE identity_key = $4 AND version = $5`,
		supersededBy, effectiveTo, unresolved, identityKey, number,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark superseded %s/%d", identityKey, number)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("version not found: %s/%d", identityKey, number)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, identityKey string) ([]model.Version, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT identity_key, version, supplier, product_code, fields, extras,
			valid_from, valid_to, effective_to, source_file, extracted_at,
			supersedes, superseded_by, conflict, appended_at
		 FROM versions WHERE identity_key = $1 ORDER BY version ASC`,
		identityKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: history %s", identityKey)
	}
	defer rows.Close()

	var history []model.Version
	for rows.Next() {
		v, err := scanPgVersion(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, *v)
	}
	return history, eris.Wrap(rows.Err(), "postgres: history iterate")
}

func (s *PostgresStore) EffectiveAt(ctx context.Context, identityKey string, at time.Time) (*model.Version, error) {
	history, err := s.History(ctx, identityKey)
	if err != nil {
		return nil, err
	}
	return timeline.Effective(history, at), nil
}

func (s *PostgresStore) Identities(ctx context.Context) ([]model.ComponentRef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT identity_key, supplier, product_code, latest_version, updated_at
		 FROM components ORDER BY supplier, product_code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: identities")
	}
	defer rows.Close()

	var refs []model.ComponentRef
	for rows.Next() {
		var ref model.ComponentRef
		if err := rows.Scan(&ref.Identity.Key, &ref.Identity.Supplier, &ref.Identity.ProductCode,
			&ref.LatestVersion, &ref.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan identity")
		}
		refs = append(refs, ref)
	}
	return refs, eris.Wrap(rows.Err(), "postgres: identities iterate")
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.LedgerStats, error) {
	stats := &model.LedgerStats{}

	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
			COUNT(DISTINCT identity_key),
			COUNT(*) FILTER (WHERE conflict),
			MAX(appended_at)
		 FROM versions`,
	)
	var latest *time.Time
	if err := row.Scan(&stats.TotalVersions, &stats.UniqueComponents, &stats.UnresolvedConflicts, &latest); err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	stats.LatestAppend = latest

	row = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM components WHERE latest_version > 1`)
	if err := row.Scan(&stats.MultiVersionCount); err != nil {
		return nil, eris.Wrap(err, "postgres: stats multi-version")
	}

	return stats, nil
}

func scanPgVersion(rows pgx.Rows) (*model.Version, error) {
	var (
		v            model.Version
		fieldsJSON   []byte
		extrasJSON   []byte
		effectiveTo  *time.Time
		supersedes   *int
		supersededBy *int
	)

	err := rows.Scan(&v.Identity.Key, &v.Number, &v.Identity.Supplier, &v.Identity.ProductCode,
		&fieldsJSON, &extrasJSON, &v.ValidFrom, &v.ValidTo, &effectiveTo,
		&v.SourceFile, &v.ExtractedAt, &supersedes, &supersededBy, &v.Conflict, &v.AppendedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan version")
	}

	if err := unmarshalPayload(fieldsJSON, extrasJSON, &v); err != nil {
		return nil, err
	}

	v.EffectiveTo = effectiveTo
	v.Supersedes = supersedes
	v.SupersededBy = supersededBy
	v.ValidFrom = v.ValidFrom.UTC()
	v.ValidTo = v.ValidTo.UTC()

	return &v, nil
}
