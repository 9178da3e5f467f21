package model

import "time"

// ComponentIdentity is the logical key for one physical asset component.
// Key is the normalized comparison form; Supplier and ProductCode retain
// the casing of the first document that resolved to this identity.
type ComponentIdentity struct {
	Key         string `json:"key"`
	Supplier    string `json:"supplier"`
	ProductCode string `json:"product_code"`
}

// Version is the persisted unit of the audit trail. Field content is
// immutable after append; supersession state (EffectiveTo, SupersededBy,
// Conflict) is merge metadata recorded alongside it, never an edit of the
// original window.
type Version struct {
	Identity    ComponentIdentity `json:"identity"`
	Number      int               `json:"version_number"`
	Fields      map[string]any    `json:"fields"`
	Extras      map[string]any    `json:"extras,omitempty"`
	ValidFrom   time.Time         `json:"valid_from"`
	ValidTo     time.Time         `json:"valid_to"`
	SourceFile  string            `json:"source_file"`
	ExtractedAt time.Time         `json:"extracted_at"`

	// Supersedes is the number of the overlapping version this one replaced,
	// set by the merger on conflict.
	Supersedes *int `json:"supersedes,omitempty"`

	// EffectiveTo truncates the window for effective-at lookups when a later
	// version superseded the tail of it. The stored ValidTo is untouched.
	EffectiveTo *time.Time `json:"effective_to,omitempty"`

	// SupersededBy is the number of the version that replaced this one,
	// in whole or in part.
	SupersededBy *int `json:"superseded_by,omitempty"`

	// Conflict marks an unresolved overlap that needs caller acknowledgment
	// before either side is authoritative for the overlapping range.
	Conflict bool `json:"conflict,omitempty"`

	AppendedAt time.Time `json:"appended_at"`
}

// EffectiveWindowEnd returns the end of the window this version is
// authoritative for: the truncated end if set, the asserted ValidTo otherwise.
func (v *Version) EffectiveWindowEnd() time.Time {
	if v.EffectiveTo != nil {
		return *v.EffectiveTo
	}
	return v.ValidTo
}

// Active reports whether the version still covers any part of its window.
// A truncated version stays active for the untruncated head; a version
// superseded without truncation is fully replaced. Conflicted versions
// remain active candidates until acknowledged.
func (v *Version) Active() bool {
	if v.Conflict {
		return true
	}
	if v.SupersededBy != nil && v.EffectiveTo == nil {
		return false
	}
	return v.ValidFrom.Before(v.EffectiveWindowEnd())
}

// Covers reports whether t falls inside the version's effective window.
func (v *Version) Covers(t time.Time) bool {
	return !t.Before(v.ValidFrom) && t.Before(v.EffectiveWindowEnd())
}

// ComponentRef is one entry of the top-level identity index: an identity and
// the latest version number appended for it.
type ComponentRef struct {
	Identity      ComponentIdentity `json:"identity"`
	LatestVersion int               `json:"latest_version"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// LedgerStats summarizes the ledger for the stats command.
type LedgerStats struct {
	TotalVersions       int        `json:"total_versions"`
	UniqueComponents    int        `json:"unique_components"`
	MultiVersionCount   int        `json:"components_with_multiple_versions"`
	UnresolvedConflicts int        `json:"unresolved_conflicts"`
	LatestAppend        *time.Time `json:"latest_append,omitempty"`
}
