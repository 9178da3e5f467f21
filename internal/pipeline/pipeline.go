// Package pipeline wires document extraction, validation, identity
// resolution, and the timeline merger together, one outcome per document.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sunfield-ops/solarledger/internal/contract"
	"github.com/sunfield-ops/solarledger/internal/extract"
	"github.com/sunfield-ops/solarledger/internal/identity"
	"github.com/sunfield-ops/solarledger/internal/model"
	"github.com/sunfield-ops/solarledger/internal/pdf"
	"github.com/sunfield-ops/solarledger/internal/report"
	"github.com/sunfield-ops/solarledger/internal/store"
	"github.com/sunfield-ops/solarledger/internal/timeline"
	"github.com/sunfield-ops/solarledger/internal/validate"
)

// Pipeline processes maintenance documents into the version ledger.
type Pipeline struct {
	pdf         pdf.TextExtractor
	extractor   extract.Extractor
	contract    *contract.Contract
	store       store.Store
	locks       *keyedMutex
	concurrency int
}

// New creates a pipeline. Concurrency bounds the number of documents in
// flight; the LLM call is the blocking step so it is the unit of
// parallelism.
func New(textExtractor pdf.TextExtractor, extractor extract.Extractor, c *contract.Contract, st store.Store, concurrency int) *Pipeline {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Pipeline{
		pdf:         textExtractor,
		extractor:   extractor,
		contract:    c,
		store:       st,
		locks:       newKeyedMutex(),
		concurrency: concurrency,
	}
}

// ProcessDir processes every PDF in dir, oldest modification time first so
// arrival order matches document age for the merger's tie-break rule.
// Extraction runs in parallel; merges are applied sequentially in listing
// order afterwards, so two same-identity documents can never reach the
// merger in inverted order no matter which extraction finishes first. A
// single document's failure never aborts the batch; a version collision
// does, because it signals the serialization guarantee was violated.
func (p *Pipeline) ProcessDir(ctx context.Context, dir string) (*report.Batch, error) {
	files, err := listPDFs(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		zap.L().Warn("no PDF files found", zap.String("dir", dir))
	}

	// Stage 1: parallel extraction. The LLM call is the unit of
	// parallelism; results land at their listing index.
	candidates := make([]*model.CandidateRecord, len(files))
	failures := make([]*report.DocumentOutcome, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, path := range files {
		g.Go(func() error {
			candidates[i], failures[i] = p.extractFile(gctx, path)
			return nil
		})
	}
	// Goroutines return nil; extraction failures are outcomes, not errors.
	_ = g.Wait()

	// Stage 2: sequential merge in listing order.
	batch := report.NewBatch()
	for i := range files {
		if failures[i] != nil {
			batch.Outcomes = append(batch.Outcomes, *failures[i])
			continue
		}
		outcome, err := p.Ingest(ctx, candidates[i])
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: batch aborted")
		}
		batch.Outcomes = append(batch.Outcomes, outcome)
	}

	batch.FinishedAt = time.Now().UTC()
	batch.LogSummary()
	return batch, nil
}

// extractFile runs the PDF text and LLM extraction steps for one document.
// Exactly one of the results is non-nil: a candidate record on success, a
// failure outcome otherwise.
func (p *Pipeline) extractFile(ctx context.Context, path string) (*model.CandidateRecord, *report.DocumentOutcome) {
	sourceFile := filepath.Base(path)
	log := zap.L().With(zap.String("source_file", sourceFile))
	log.Info("processing document")

	text, err := p.pdf.ExtractText(ctx, path)
	if err != nil {
		log.Error("text extraction failed", zap.Error(err))
		return nil, &report.DocumentOutcome{
			SourceFile: sourceFile,
			Kind:       report.ExtractionFailed,
			Error:      err.Error(),
		}
	}

	cand, err := p.extractor.Extract(ctx, extract.Document{SourceFile: sourceFile, Text: text})
	if err != nil {
		log.Error("field extraction failed", zap.Error(err))
		return nil, &report.DocumentOutcome{
			SourceFile: sourceFile,
			Kind:       report.ExtractionFailed,
			Error:      err.Error(),
		}
	}
	return cand, nil
}

// ProcessFile runs one document through extract, validate, resolve, merge,
// and persist. Recoverable failures are encoded in the outcome; the
// returned error is non-nil only for store invariant violations that must
// abort the run.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (report.DocumentOutcome, error) {
	cand, failure := p.extractFile(ctx, path)
	if failure != nil {
		return *failure, nil
	}
	return p.Ingest(ctx, cand)
}

// Ingest validates a candidate record and merges it into its component's
// timeline. Split from ProcessFile so callers that already have candidate
// records (tests, replays) can enter the pipeline here.
func (p *Pipeline) Ingest(ctx context.Context, cand *model.CandidateRecord) (report.DocumentOutcome, error) {
	log := zap.L().With(zap.String("source_file", cand.SourceFile))

	rec, err := validate.Validate(p.contract, cand)
	if err != nil {
		var verr *validate.Error
		if eris.As(err, &verr) {
			log.Warn("validation failed", zap.Int("violations", len(verr.Violations)))
			return report.DocumentOutcome{
				SourceFile: cand.SourceFile,
				Kind:       report.ValidationFailed,
				Violations: violationStrings(verr),
			}, nil
		}
		return report.DocumentOutcome{
			SourceFile: cand.SourceFile,
			Kind:       report.ValidationFailed,
			Error:      err.Error(),
		}, nil
	}

	id, err := identity.Resolve(rec)
	if err != nil {
		log.Warn("identity unresolvable", zap.Error(err))
		return report.DocumentOutcome{
			SourceFile: cand.SourceFile,
			Kind:       report.ValidationFailed,
			Violations: []string{"cannot resolve component identity: " + err.Error()},
		}, nil
	}

	// Serialize history read, merge, and append per identity so two
	// candidates never compute against a stale history.
	unlock := p.locks.Lock(id.Key)
	defer unlock()

	history, err := p.store.History(ctx, id.Key)
	if err != nil {
		return report.DocumentOutcome{}, err
	}

	decision := timeline.Merge(id, rec, history)
	outcome := report.DocumentOutcome{
		SourceFile:  cand.SourceFile,
		IdentityKey: id.Key,
	}

	switch decision.Outcome {
	case timeline.OutcomeDuplicate:
		n := decision.DuplicateOf
		outcome.Kind = report.Duplicate
		outcome.VersionNumber = &n
		log.Info("duplicate re-submission",
			zap.String("identity", id.Key),
			zap.Int("version", n),
		)
		return outcome, nil

	case timeline.OutcomeInserted:
		outcome.Kind = report.Inserted
	case timeline.OutcomeConflict:
		outcome.Kind = report.Conflict
	}

	if err := p.store.Append(ctx, decision.Version); err != nil {
		// A collision here means the per-identity serialization was
		// violated; this is a bug, not a document problem.
		return report.DocumentOutcome{}, err
	}
	for _, s := range decision.Supersessions {
		if err := p.store.MarkSuperseded(ctx, id.Key, s.Number, decision.Version.Number, s.EffectiveTo, s.Unresolved); err != nil {
			return report.DocumentOutcome{}, err
		}
	}

	n := decision.Version.Number
	outcome.VersionNumber = &n
	log.Info("merged document",
		zap.String("identity", id.Key),
		zap.String("outcome", string(decision.Outcome)),
		zap.Int("version", n),
		zap.Int("superseded", len(decision.Supersessions)),
	)
	return outcome, nil
}

func violationStrings(verr *validate.Error) []string {
	out := make([]string, len(verr.Violations))
	for i, v := range verr.Violations {
		out[i] = v.String()
	}
	return out
}

// listPDFs returns the PDF paths in dir sorted by modification time so the
// merger sees documents in arrival order.
func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read dir %s", dir)
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: stat %s", e.Name())
		}
		files = append(files, fileInfo{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}
