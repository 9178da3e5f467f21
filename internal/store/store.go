// Package store persists the append-only audit trail of component
// configuration versions.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sunfield-ops/solarledger/internal/model"
)

// ErrVersionCollision is returned by Append when (identity, version_number)
// already exists. It means two merges raced past the per-identity
// serialization and must abort the run rather than corrupt the trail.
var ErrVersionCollision = eris.New("store: identity/version collision")

// Store is the persistence interface for the version ledger. Appended
// versions are immutable; supersession is recorded as merge metadata via
// MarkSuperseded, never as an edit.
type Store interface {
	// Append durably records a new version. The write is atomic: on
	// restart either the whole version is present or none of it.
	Append(ctx context.Context, v *model.Version) error

	// MarkSuperseded records that version number of identityKey was
	// replaced by supersededBy. A non-nil effectiveTo truncates the old
	// version's effective window; unresolved flags the pair as a conflict
	// awaiting acknowledgment.
	MarkSuperseded(ctx context.Context, identityKey string, number, supersededBy int, effectiveTo *time.Time, unresolved bool) error

	// History returns all versions for an identity, oldest first. An
	// unknown identity yields an empty history, not an error.
	History(ctx context.Context, identityKey string) ([]model.Version, error)

	// EffectiveAt returns the active version whose window contains at,
	// or nil when no window covers it.
	EffectiveAt(ctx context.Context, identityKey string, at time.Time) (*model.Version, error)

	// Identities enumerates all known identities with their latest
	// version number.
	Identities(ctx context.Context) ([]model.ComponentRef, error)

	// Stats summarizes the ledger.
	Stats(ctx context.Context) (*model.LedgerStats, error)

	Migrate(ctx context.Context) error
	Close() error
}
