// Package report collects per-document outcomes into the batch outcome
// report consumed by the CLI and downstream tooling.
package report

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// OutcomeKind classifies the result of processing one document.
type OutcomeKind string

const (
	Inserted         OutcomeKind = "inserted"
	Duplicate        OutcomeKind = "duplicate"
	Conflict         OutcomeKind = "conflict"
	ValidationFailed OutcomeKind = "validation_failed"
	ExtractionFailed OutcomeKind = "extraction_failed"
)

// DocumentOutcome is the result of processing a single input document. No
// document disappears silently: failures get an outcome too.
type DocumentOutcome struct {
	SourceFile    string      `json:"source_file"`
	Kind          OutcomeKind `json:"outcome_kind"`
	VersionNumber *int        `json:"version_number,omitempty"`
	IdentityKey   string      `json:"identity,omitempty"`
	Violations    []string    `json:"violations,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// Batch is the outcome report for one processing run.
type Batch struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Outcomes   []DocumentOutcome `json:"outcomes"`
}

// NewBatch starts a batch report with a fresh run ID.
func NewBatch() *Batch {
	return &Batch{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
}

// Counts tallies outcomes by kind.
func (b *Batch) Counts() map[OutcomeKind]int {
	counts := make(map[OutcomeKind]int)
	for _, o := range b.Outcomes {
		counts[o.Kind]++
	}
	return counts
}

// Succeeded counts documents that produced or matched a version.
func (b *Batch) Succeeded() int {
	c := b.Counts()
	return c[Inserted] + c[Duplicate] + c[Conflict]
}

// Failed counts documents that produced no version.
func (b *Batch) Failed() int {
	c := b.Counts()
	return c[ValidationFailed] + c[ExtractionFailed]
}

// WriteJSON writes the report to a file, or stdout when path is "-".
func (b *Batch) WriteJSON(path string) error {
	buf, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return eris.Wrap(err, "report: marshal")
	}
	buf = append(buf, '\n')

	if path == "-" {
		_, err = os.Stdout.Write(buf)
		return eris.Wrap(err, "report: write stdout")
	}
	return eris.Wrapf(os.WriteFile(path, buf, 0o644), "report: write %s", path)
}

// LogSummary logs the processing summary.
func (b *Batch) LogSummary() {
	counts := b.Counts()
	zap.L().Info("processing summary",
		zap.String("run_id", b.RunID),
		zap.Int("total", len(b.Outcomes)),
		zap.Int("inserted", counts[Inserted]),
		zap.Int("duplicates", counts[Duplicate]),
		zap.Int("conflicts", counts[Conflict]),
		zap.Int("validation_failed", counts[ValidationFailed]),
		zap.Int("extraction_failed", counts[ExtractionFailed]),
		zap.Duration("elapsed", b.FinishedAt.Sub(b.StartedAt)),
	)
}
