package core

// batch.go implements chunked batch ingestion.
//
// Input is split into chunks of chunkSize. Every item of a chunk is upserted
// concurrently and the chunk is joined before the next one is dispatched, so
// at most chunkSize upserts are ever in flight for one batch. Row failures are
// recorded in the result and never abort the batch.

import (
	"bytes"
	"context"
	"encoding/json"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/constituents/internal/logging"
)

// DefaultChunkSize is the number of rows upserted concurrently per chunk.
const DefaultChunkSize = 100

const tracerName = "github.com/JonMunkholm/constituents/internal/core"

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithChunkSize sets the chunk size. Values below 1 keep the default.
func WithChunkSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// Pipeline feeds batches of candidates into a Store.
type Pipeline struct {
	store     *Store
	validator *RowValidator
	chunkSize int
}

// NewPipeline creates a pipeline writing to store.
func NewPipeline(store *Store, opts ...PipelineOption) (*Pipeline, error) {
	v, err := NewRowValidator()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		store:     store,
		validator: v,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ChunkSize returns the configured chunk size.
func (p *Pipeline) ChunkSize() int {
	return p.chunkSize
}

// batchItem is one input position. A non-nil rejected error means the row
// failed structural validation and is never upserted.
type batchItem struct {
	candidate Candidate
	rejected  error
}

// ProcessBatch upserts candidates as-is. Only Upsert's own checks apply.
func (p *Pipeline) ProcessBatch(ctx context.Context, candidates []Candidate) (BatchUploadResult, error) {
	items := make([]batchItem, len(candidates))
	for i, c := range candidates {
		items[i] = batchItem{candidate: c}
	}
	return p.run(ctx, "ProcessBatch", items)
}

// ProcessRows validates tokenized rows and upserts the ones that pass.
// Rows failing validation are reported as failed rows.
func (p *Pipeline) ProcessRows(ctx context.Context, rows []map[string]string) (BatchUploadResult, error) {
	items := make([]batchItem, len(rows))
	for i, row := range rows {
		c := CandidateFromFields(row)
		items[i] = batchItem{candidate: c, rejected: p.validator.Validate(c)}
	}
	return p.run(ctx, "ProcessRows", items)
}

// ProcessJSON decodes payload as an array and processes it like ProcessRows.
// Only a payload that is not a JSON array fails with ErrInvalidInput; an
// element that does not decode as a candidate is a failed row.
func (p *Pipeline) ProcessJSON(ctx context.Context, payload []byte) (BatchUploadResult, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return BatchUploadResult{}, ErrInvalidInput
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return BatchUploadResult{}, wrapError(ErrInvalidInput, err)
	}

	items := make([]batchItem, len(elems))
	for i, raw := range elems {
		var c Candidate
		if err := decodeCandidate(raw, &c); err != nil {
			items[i] = batchItem{rejected: errRowFormat}
			continue
		}
		items[i] = batchItem{candidate: c, rejected: p.validator.Validate(c)}
	}
	return p.run(ctx, "ProcessJSON", items)
}

// decodeCandidate accepts only JSON objects; null would otherwise decode to
// an empty candidate.
func decodeCandidate(raw json.RawMessage, c *Candidate) error {
	if len(raw) == 0 || raw[0] != '{' {
		return errRowFormat
	}
	return json.Unmarshal(raw, c)
}

func (p *Pipeline) run(ctx context.Context, op string, items []batchItem) (BatchUploadResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "core."+op)
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.rows", len(items)),
		attribute.Int("batch.chunk_size", p.chunkSize),
	)

	logger := logging.WithFields(ctx, "op", op)

	result := BatchUploadResult{
		TotalProcessed: len(items),
		Errors:         []RowError{},
	}
	var mu sync.Mutex

	record := func(row int, c Candidate, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			result.Successful++
			return
		}
		result.Failed++
		result.Errors = append(result.Errors, RowError{Row: row, Error: err.Error(), Data: c})
	}

	for start := 0; start < len(items); start += p.chunkSize {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch cancelled")
			logger.Warn("batch cancelled", "processed", start, "rows", len(items))
			// Earlier chunks stay applied; report what they did.
			result.TotalProcessed = start
			sortRowErrors(result.Errors)
			return result, err
		}

		end := min(start+p.chunkSize, len(items))

		var g errgroup.Group
		for i := start; i < end; i++ {
			item := items[i]
			row := i + 1
			g.Go(func() error {
				if item.rejected != nil {
					record(row, item.candidate, item.rejected)
					return nil
				}
				_, err := p.store.Upsert(item.candidate)
				record(row, item.candidate, err)
				return nil
			})
		}
		// Row errors are captured in result; the group itself never fails.
		_ = g.Wait()

		logger.Debug("chunk processed", "from_row", start+1, "to_row", end)
	}

	sortRowErrors(result.Errors)

	span.SetAttributes(
		attribute.Int("batch.successful", result.Successful),
		attribute.Int("batch.failed", result.Failed),
	)
	logger.Info("batch processed",
		"rows", result.TotalProcessed,
		"successful", result.Successful,
		"failed", result.Failed,
	)
	return result, nil
}

func sortRowErrors(errs []RowError) {
	slices.SortFunc(errs, func(a, b RowError) int {
		return a.Row - b.Row
	})
}
