// Package timeline decides how a freshly validated record fits into a
// component's version history: version numbering, overlap detection, and
// conflict resolution. Merge outcomes are represented values, never errors;
// overlapping documents are an expected steady state in this domain.
package timeline

import (
	"sort"
	"time"

	"github.com/sunfield-ops/solarledger/internal/model"
)

// Outcome classifies a merge decision.
type Outcome string

const (
	// OutcomeInserted is a clean insert with no overlapping active version.
	OutcomeInserted Outcome = "inserted"
	// OutcomeDuplicate is a re-submission of an already recorded
	// configuration; no new version is created.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeConflict is an overlap with differing field values. A new
	// version is created and the overlapped versions are superseded.
	OutcomeConflict Outcome = "conflict"
)

// configFields are compared for the duplicate check. Extras and window
// bounds are deliberately excluded.
var configFields = []string{
	model.FieldSupplierName,
	model.FieldProductCode,
	model.FieldDescription,
	model.FieldStartupVoltage,
	model.FieldFirmwareVersion,
}

// Supersession instructs the store to mark one prior version as replaced.
type Supersession struct {
	// Number of the superseded version.
	Number int
	// EffectiveTo truncates the old version's effective window. Nil means
	// the version is fully superseded.
	EffectiveTo *time.Time
	// Unresolved marks an overlap the merger refuses to resolve
	// automatically, such as a nested window or a head overlap that would
	// strand the old version's tail; both sides stay flagged until
	// acknowledged.
	Unresolved bool
}

// Decision is the outcome of merging one validated record into a history.
type Decision struct {
	Outcome       Outcome
	Version       *model.Version // nil for OutcomeDuplicate
	DuplicateOf   int            // existing version number for OutcomeDuplicate
	Supersessions []Supersession
}

// Merge integrates a validated record into the ordered history for an
// identity. It never fails for a well-formed record: every outcome,
// conflict included, is a represented value.
func Merge(id model.ComponentIdentity, rec *model.ValidatedRecord, history []model.Version) Decision {
	next := 1
	for _, v := range history {
		if v.Number >= next {
			next = v.Number + 1
		}
	}

	var overlapping []model.Version
	for _, v := range history {
		if !v.Active() {
			continue
		}
		if rec.ValidFrom.Before(v.EffectiveWindowEnd()) && v.ValidFrom.Before(rec.ValidTo) {
			overlapping = append(overlapping, v)
		}
	}

	if len(overlapping) == 0 {
		return Decision{
			Outcome: OutcomeInserted,
			Version: newVersion(id, rec, next, nil, false),
		}
	}

	for _, v := range overlapping {
		if sameConfiguration(v.Fields, rec.Fields) {
			return Decision{Outcome: OutcomeDuplicate, DuplicateOf: v.Number}
		}
	}

	// Genuine conflict: the new record wins going forward.
	var supersessions []Supersession
	unresolved := false
	for _, old := range overlapping {
		s := Supersession{Number: old.Number}
		switch {
		case old.ValidFrom.Before(rec.ValidFrom) && rec.ValidTo.Before(old.EffectiveWindowEnd()):
			// The new window is strictly nested inside the old one. An
			// automatic three-way split would fabricate a version the source
			// document never asserted, so leave the overlap unresolved.
			s.Unresolved = true
			unresolved = true
		case old.ValidFrom.Before(rec.ValidFrom):
			// Truncate the old version at the start of the new one. The
			// stored window stays untouched for audit.
			from := rec.ValidFrom
			s.EffectiveTo = &from
		case rec.ValidTo.Before(old.EffectiveWindowEnd()):
			// The new window starts at or before the old one but the old
			// version's tail extends past it. Resolving automatically would
			// drop coverage of that tail no other version asserts, so this
			// is not a simple truncation either; leave it unresolved.
			s.Unresolved = true
			unresolved = true
		default:
			// The new window covers the old one's whole effective window:
			// the old version is fully replaced. Identical windows land
			// here, which gives the later-processed document the win.
		}
		supersessions = append(supersessions, s)
	}

	supersedes := highestNumber(overlapping)
	return Decision{
		Outcome:       OutcomeConflict,
		Version:       newVersion(id, rec, next, &supersedes, unresolved),
		Supersessions: supersessions,
	}
}

// Effective returns the version whose effective window contains t, or nil.
// When unresolved conflicts leave several candidates, the most recently
// appended one is returned and the caller is expected to check its
// Conflict flag.
func Effective(history []model.Version, t time.Time) *model.Version {
	var candidates []model.Version
	for _, v := range history {
		if v.Active() && v.Covers(t) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].AppendedAt.Equal(candidates[j].AppendedAt) {
			return candidates[i].Number > candidates[j].Number
		}
		return candidates[i].AppendedAt.After(candidates[j].AppendedAt)
	})
	return &candidates[0]
}

func newVersion(id model.ComponentIdentity, rec *model.ValidatedRecord, number int, supersedes *int, conflict bool) *model.Version {
	return &model.Version{
		Identity:    id,
		Number:      number,
		Fields:      rec.Fields,
		Extras:      rec.Extras,
		ValidFrom:   rec.ValidFrom,
		ValidTo:     rec.ValidTo,
		SourceFile:  rec.SourceFile,
		ExtractedAt: rec.ExtractedAt,
		Supersedes:  supersedes,
		Conflict:    conflict,
	}
}

// sameConfiguration compares the configuration fields of two records.
func sameConfiguration(a, b map[string]any) bool {
	for _, name := range configFields {
		if a[name] != b[name] {
			return false
		}
	}
	return true
}

func highestNumber(versions []model.Version) int {
	n := 0
	for _, v := range versions {
		if v.Number > n {
			n = v.Number
		}
	}
	return n
}
