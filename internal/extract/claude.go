package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sunfield-ops/solarledger/internal/contract"
	"github.com/sunfield-ops/solarledger/internal/model"
	"github.com/sunfield-ops/solarledger/pkg/anthropic"
)

const systemPrompt = "You are a data entry specialist extracting structured configuration data " +
	"from solar-site maintenance documents. Return ONLY a valid JSON object. Use null for fields " +
	"not found in the document. Put any additional relevant information in an \"extras\" object."

const promptTemplate = `Extract the following fields from the solar maintenance document:

%s
Important context:
- Inverters convert DC electricity from solar panels to AC electricity
- Startup voltage determines when solar panels turn on in the morning
- Firmware version controls inverter parameters and settings
- Valid from/to dates are crucial for audit trails and root cause analysis

Document text:
%s

Return ONLY a JSON object with the fields above plus an "extras" object for
any other relevant information. Use null for fields not found.`

// ClaudeExtractor implements Extractor against the Anthropic API.
type ClaudeExtractor struct {
	client    anthropic.Client
	contract  *contract.Contract
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	retry     retryConfig
}

// Options tunes the extractor.
type Options struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration
	// RatePerMinute throttles API calls across the whole batch. Zero
	// disables throttling.
	RatePerMinute int
	// MaxAttempts caps retries of transient API failures per document,
	// including the first try. Zero means the default of 3.
	MaxAttempts int
}

// NewClaude creates a ClaudeExtractor.
func NewClaude(client anthropic.Client, c *contract.Contract, opts Options) *ClaudeExtractor {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	var limiter *rate.Limiter
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), opts.RatePerMinute)
	}
	retry := defaultRetryConfig()
	if opts.MaxAttempts > 0 {
		retry.MaxAttempts = opts.MaxAttempts
	}
	return &ClaudeExtractor{
		client:    client,
		contract:  c,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
		limiter:   limiter,
		retry:     retry,
	}
}

// Extract asks the model for the contract fields and parses its reply into
// a candidate record.
func (e *ClaudeExtractor) Extract(ctx context.Context, doc Document) (*model.CandidateRecord, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(ErrExtraction, "rate limit wait for %s: %v", doc.SourceFile, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := callWithRetry(callCtx, e.client, e.retry, doc.SourceFile, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(promptTemplate, e.contract.PromptFields(), doc.Text)},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(ErrExtraction, "%s: %v", doc.SourceFile, err)
	}
	resp.Usage.LogUsage(e.model, doc.SourceFile)

	parsed, err := ParseResponse(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(ErrExtraction, "%s: %v", doc.SourceFile, err)
	}

	cand := e.toCandidate(doc.SourceFile, parsed)
	zap.L().Debug("extracted candidate",
		zap.String("source_file", doc.SourceFile),
		zap.Int("fields", len(cand.Fields)),
		zap.Int("extras", len(cand.Extras)),
	)
	return cand, nil
}

// toCandidate routes parsed keys: contract fields stay fields, everything
// else (including the model's own extras object) lands in extras. Nulls are
// dropped so validation reports them as missing rather than mistyped.
func (e *ClaudeExtractor) toCandidate(sourceFile string, parsed map[string]any) *model.CandidateRecord {
	cand := &model.CandidateRecord{
		SourceFile:  sourceFile,
		ExtractedAt: time.Now().UTC(),
		Fields:      make(map[string]any),
		Extras:      make(map[string]any),
	}

	for key, val := range parsed {
		if val == nil {
			continue
		}
		if key == "extras" {
			if m, ok := val.(map[string]any); ok {
				for k, v := range m {
					if v != nil {
						cand.Extras[k] = v
					}
				}
			}
			continue
		}
		if e.contract.Known(key) {
			cand.Fields[key] = val
		} else {
			cand.Extras[key] = val
		}
	}

	return cand
}
