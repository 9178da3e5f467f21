package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sunfield-ops/solarledger/internal/contract"
	"github.com/sunfield-ops/solarledger/internal/extract"
	"github.com/sunfield-ops/solarledger/internal/pdf"
	"github.com/sunfield-ops/solarledger/internal/pipeline"
	"github.com/sunfield-ops/solarledger/internal/store"
	"github.com/sunfield-ops/solarledger/pkg/anthropic"
)

// openStore opens the configured ledger backend and runs migrations.
func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// buildPipeline assembles the full document pipeline on top of an open store.
func buildPipeline(st store.Store) (*pipeline.Pipeline, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic.key is required (SOLARLEDGER_ANTHROPIC_KEY)")
	}

	c, err := contract.Load(cfg.Contract.Path)
	if err != nil {
		return nil, err
	}

	extractor := extract.NewClaude(
		anthropic.NewClient(cfg.Anthropic.Key),
		c,
		extract.Options{
			Model:         cfg.Anthropic.Model,
			MaxTokens:     cfg.Anthropic.MaxTokens,
			Timeout:       time.Duration(cfg.Extract.TimeoutSecs) * time.Second,
			RatePerMinute: cfg.Extract.RatePerMinute,
			MaxAttempts:   cfg.Extract.MaxAttempts,
		},
	)

	return pipeline.New(
		pdf.NewPdfToText(cfg.PDF.PdfToTextPath),
		extractor,
		c,
		st,
		cfg.Batch.MaxConcurrentDocuments,
	), nil
}
