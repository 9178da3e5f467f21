// Package extract turns document text into candidate records via the LLM
// collaborator. The collaborator is untrusted: any field may be missing or
// mistyped, and every failure surfaces as ErrExtraction so the orchestrator
// can record a per-document outcome instead of aborting the batch.
package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sunfield-ops/solarledger/internal/model"
)

// ErrExtraction marks a collaborator failure: API error, timeout, or an
// unparseable response.
var ErrExtraction = eris.New("extract: extraction failed")

// Document is the input to extraction: the source file name and its text
// content.
type Document struct {
	SourceFile string
	Text       string
}

// Extractor produces a candidate record from a document.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (*model.CandidateRecord, error)
}
