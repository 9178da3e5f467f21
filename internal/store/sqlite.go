package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sunfield-ops/solarledger/internal/model"
	"github.com/sunfield-ops/solarledger/internal/timeline"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. WAL plus the transactional append gives per-append crash safety.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS versions (
	identity_key  TEXT NOT NULL,
	version       INTEGER NOT NULL,
	supplier      TEXT NOT NULL,
	product_code  TEXT NOT NULL,
	fields        TEXT NOT NULL,
	extras        TEXT NOT NULL DEFAULT '{}',
	valid_from    DATETIME NOT NULL,
	valid_to      DATETIME NOT NULL,
	effective_to  DATETIME,
	source_file   TEXT NOT NULL,
	extracted_at  DATETIME NOT NULL,
	supersedes    INTEGER,
	superseded_by INTEGER,
	conflict      INTEGER NOT NULL DEFAULT 0,
	appended_at   DATETIME NOT NULL,
	PRIMARY KEY (identity_key, version)
);

CREATE TABLE IF NOT EXISTS components (
	identity_key   TEXT PRIMARY KEY,
	supplier       TEXT NOT NULL,
	product_code   TEXT NOT NULL,
	latest_version INTEGER NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_versions_window ON versions(identity_key, valid_from);
CREATE INDEX IF NOT EXISTS idx_versions_appended ON versions(appended_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, v *model.Version) error {
	fieldsJSON, extrasJSON, err := marshalPayload(v)
	if err != nil {
		return err
	}

	if v.AppendedAt.IsZero() {
		v.AppendedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO versions (identity_key, version, supplier, product_code, fields, extras,
			valid_from, valid_to, source_file, extracted_at, supersedes, conflict, appended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Identity.Key, v.Number, v.Identity.Supplier, v.Identity.ProductCode,
		fieldsJSON, extrasJSON,
		v.ValidFrom.UTC(), v.ValidTo.UTC(), v.SourceFile, v.ExtractedAt.UTC(),
		v.Supersedes, boolToInt(v.Conflict), v.AppendedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return eris.Wrapf(ErrVersionCollision, "identity %s version %d", v.Identity.Key, v.Number)
		}
		return eris.Wrapf(err, "sqlite: insert version %s/%d", v.Identity.Key, v.Number)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO components (identity_key, supplier, product_code, latest_version, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(identity_key) DO UPDATE SET
			latest_version = excluded.latest_version,
			updated_at = excluded.updated_at`,
		v.Identity.Key, v.Identity.Supplier, v.Identity.ProductCode, v.Number, v.AppendedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update component index %s", v.Identity.Key)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

func (s *SQLiteStore) MarkSuperseded(ctx context.Context, identityKey string, number, supersededBy int, effectiveTo *time.Time, unresolved bool) error {
	var effective any
	if effectiveTo != nil {
		effective = effectiveTo.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE versions SET superseded_by = ?, effective_to = ?, conflict = ?
		 WHERE identity_key = ? AND version = ?`,
		supersededBy, effective, boolToInt(unresolved), identityKey, number,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark superseded %s/%d", identityKey, number)
	}
	return checkRowsAffected(res, identityKey, number)
}

func (s *SQLiteStore) History(ctx context.Context, identityKey string) ([]model.Version, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_key, version, supplier, product_code, fields, extras,
			valid_from, valid_to, effective_to, source_file, extracted_at,
			supersedes, superseded_by, conflict, appended_at
		 FROM versions WHERE identity_key = ? ORDER BY version ASC`,
		identityKey,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: history %s", identityKey)
	}
	defer rows.Close()

	var history []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, *v)
	}
	return history, eris.Wrap(rows.Err(), "sqlite: history iterate")
}

func (s *SQLiteStore) EffectiveAt(ctx context.Context, identityKey string, at time.Time) (*model.Version, error) {
	history, err := s.History(ctx, identityKey)
	if err != nil {
		return nil, err
	}
	return timeline.Effective(history, at), nil
}

func (s *SQLiteStore) Identities(ctx context.Context) ([]model.ComponentRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity_key, supplier, product_code, latest_version, updated_at
		 FROM components ORDER BY supplier, product_code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: identities")
	}
	defer rows.Close()

	var refs []model.ComponentRef
	for rows.Next() {
		var ref model.ComponentRef
		if err := rows.Scan(&ref.Identity.Key, &ref.Identity.Supplier, &ref.Identity.ProductCode,
			&ref.LatestVersion, &ref.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan identity")
		}
		refs = append(refs, ref)
	}
	return refs, eris.Wrap(rows.Err(), "sqlite: identities iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*model.LedgerStats, error) {
	stats := &model.LedgerStats{}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(DISTINCT identity_key),
			COALESCE(SUM(conflict), 0),
			(SELECT appended_at FROM versions ORDER BY appended_at DESC LIMIT 1)
		 FROM versions`,
	)
	var latest sql.NullTime
	if err := row.Scan(&stats.TotalVersions, &stats.UniqueComponents, &stats.UnresolvedConflicts, &latest); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats")
	}
	if latest.Valid {
		t := latest.Time
		stats.LatestAppend = &t
	}

	row = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM components WHERE latest_version > 1`,
	)
	if err := row.Scan(&stats.MultiVersionCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: stats multi-version")
	}

	return stats, nil
}

// helpers

// isUniqueViolation reports whether err is the uniqueness violation for the
// (identity_key, version) primary key. Other constraint classes (NOT NULL,
// CHECK) are real insert errors, not collisions, and must not map to the
// fatal sentinel.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, identityKey string, number int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("version not found: %s/%d", identityKey, number)
	}
	return nil
}

func marshalPayload(v *model.Version) (string, string, error) {
	fieldsJSON, err := json.Marshal(jsonFields(v.Fields))
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal fields")
	}
	extras := v.Extras
	if extras == nil {
		extras = map[string]any{}
	}
	extrasJSON, err := json.Marshal(extras)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal extras")
	}
	return string(fieldsJSON), string(extrasJSON), nil
}

// jsonFields renders time.Time field values as RFC 3339 strings so the
// persisted JSON stays readable and round-trips losslessly.
func jsonFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			out[k] = t.UTC().Format(time.RFC3339)
			continue
		}
		out[k] = v
	}
	return out
}

func unmarshalPayload(fieldsJSON, extrasJSON []byte, v *model.Version) error {
	if err := json.Unmarshal(fieldsJSON, &v.Fields); err != nil {
		return eris.Wrap(err, "store: unmarshal fields")
	}
	if err := json.Unmarshal(extrasJSON, &v.Extras); err != nil {
		return eris.Wrap(err, "store: unmarshal extras")
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanVersion(row scannable) (*model.Version, error) {
	var (
		v            model.Version
		fieldsJSON   string
		extrasJSON   string
		effectiveTo  sql.NullTime
		supersedes   sql.NullInt64
		supersededBy sql.NullInt64
		conflict     int
	)

	err := row.Scan(&v.Identity.Key, &v.Number, &v.Identity.Supplier, &v.Identity.ProductCode,
		&fieldsJSON, &extrasJSON, &v.ValidFrom, &v.ValidTo, &effectiveTo,
		&v.SourceFile, &v.ExtractedAt, &supersedes, &supersededBy, &conflict, &v.AppendedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan version")
	}

	if err := unmarshalPayload([]byte(fieldsJSON), []byte(extrasJSON), &v); err != nil {
		return nil, err
	}

	if effectiveTo.Valid {
		t := effectiveTo.Time.UTC()
		v.EffectiveTo = &t
	}
	if supersedes.Valid {
		n := int(supersedes.Int64)
		v.Supersedes = &n
	}
	if supersededBy.Valid {
		n := int(supersededBy.Int64)
		v.SupersededBy = &n
	}
	v.Conflict = conflict != 0
	v.ValidFrom = v.ValidFrom.UTC()
	v.ValidTo = v.ValidTo.UTC()
	v.ExtractedAt = v.ExtractedAt.UTC()
	v.AppendedAt = v.AppendedAt.UTC()

	return &v, nil
}
