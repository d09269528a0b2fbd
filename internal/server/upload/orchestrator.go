// Package upload coordinates a batch of file uploads: each file is resolved
// to a storage location, written to the object store and then recorded in
// the catalog. Every item gets its own outcome; one failure never aborts
// the rest of the batch.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filecatalog/internal/common"
	"github.com/dmitrijs2005/filecatalog/internal/logging"
	"github.com/dmitrijs2005/filecatalog/internal/server/models"
	"github.com/dmitrijs2005/filecatalog/internal/server/resolver"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Transferrer writes one item to the object store.
type Transferrer interface {
	Transfer(ctx context.Context, loc models.ResolvedLocation, item models.FileItem, creds *models.Credentials) error
}

// RecordBuilder derives the catalog record of a transferred item.
type RecordBuilder interface {
	Build(fileName string, size int64, loc models.ResolvedLocation) models.FileMetadata
}

// CatalogWriter persists one catalog record.
type CatalogWriter interface {
	Insert(ctx context.Context, rec *models.FileMetadata) error
}

// Observer receives per-item and per-batch outcomes, typically for metrics.
type Observer interface {
	ObserveItem(res models.ItemResult, bytes int64, elapsed time.Duration)
	ObserveBatch(items, skipped int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveItem(models.ItemResult, int64, time.Duration) {}
func (nopObserver) ObserveBatch(int, int, time.Duration)                {}

// Opts configures an Orchestrator.
type Opts struct {
	// DefaultBucket is used when a request names no bucket.
	DefaultBucket string
	// CredentialsRequired rejects batches that carry no credentials.
	CredentialsRequired bool
	// Concurrency bounds the number of items in flight. Values below 1
	// mean sequential processing.
	Concurrency int
}

// Orchestrator runs upload batches: resolve, transfer, build, insert.
type Orchestrator struct {
	resolver *resolver.Resolver
	transfer Transferrer
	builder  RecordBuilder
	catalog  CatalogWriter
	observer Observer
	logger   logging.Logger
	opts     Opts

	newBatchID func() string
}

// NewOrchestrator wires the pipeline stages. A nil logger or observer is
// replaced by a no-op.
func NewOrchestrator(r *resolver.Resolver, t Transferrer, b RecordBuilder, c CatalogWriter, opts Opts, logger logging.Logger, obs Observer) *Orchestrator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if obs == nil {
		obs = nopObserver{}
	}
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Orchestrator{
		resolver:   r,
		transfer:   t,
		builder:    b,
		catalog:    c,
		observer:   obs,
		logger:     logger.With("module", "upload"),
		opts:       opts,
		newBatchID: uuid.NewString,
	}
}

// ProcessBatch uploads and catalogs every named item of req.
//
// A mismatch between the number of items and identifiers returns an error
// wrapping common.ErrValidation; missing credentials in required mode or a
// missing bucket return common.ErrConfig. Both are reported before any
// store or catalog call. Otherwise the returned result lists one entry per
// item with a non-empty name, in input order.
//
// Once an item has started it runs to completion even if ctx is cancelled;
// items not yet started are reported as not processed.
func (o *Orchestrator) ProcessBatch(ctx context.Context, req models.UploadRequest) (*models.BatchResult, error) {
	if len(req.Items) != len(req.Identifiers) {
		return nil, fmt.Errorf("%w: %d files but %d identifiers", common.ErrValidation, len(req.Items), len(req.Identifiers))
	}
	if o.opts.CredentialsRequired && !req.Credentials.Valid() {
		return nil, fmt.Errorf("%w: credentials are required", common.ErrConfig)
	}

	bucket := req.Bucket
	if bucket == "" {
		bucket = o.opts.DefaultBucket
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: no bucket configured", common.ErrConfig)
	}

	start := time.Now()
	result := &models.BatchResult{BatchID: o.newBatchID()}
	log := o.logger.With("batch_id", result.BatchID)

	pending := make([]int, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Name == "" {
			result.Skipped++
			continue
		}
		pending = append(pending, i)
	}

	results := make([]models.ItemResult, len(pending))
	g := new(errgroup.Group)
	g.SetLimit(o.opts.Concurrency)

	for slot, idx := range pending {
		item, id := req.Items[idx], req.Identifiers[idx]

		if ctx.Err() != nil {
			results[slot] = notProcessed(idx, id, item.Name, ctx.Err())
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[slot] = notProcessed(idx, id, item.Name, err)
				return nil
			}
			results[slot] = o.processItem(context.WithoutCancel(ctx), log, idx, id, item, bucket, req.Credentials)
			return nil
		})
	}
	_ = g.Wait()

	result.Items = results
	o.observer.ObserveBatch(len(results), result.Skipped, time.Since(start))

	log.Info(ctx, "batch processed",
		"items", len(results),
		"succeeded", result.Succeeded(),
		"skipped", result.Skipped,
		"divergent", len(result.Divergent()),
	)
	return result, nil
}

func (o *Orchestrator) processItem(ctx context.Context, log logging.Logger, idx int, id string, item models.FileItem, bucket string, creds *models.Credentials) (res models.ItemResult) {
	start := time.Now()
	res = models.ItemResult{Index: idx, Identifier: id, FileName: item.Name, Bucket: bucket}

	defer func() { o.observer.ObserveItem(res, item.Size, time.Since(start)) }()

	loc, err := o.resolver.Resolve(bucket, id, item.Name)
	if err != nil {
		log.Warn(ctx, "unknown identifier", "index", idx, "id", id, "file", item.Name)
		return failed(res, models.KindUnknownIdentifier, err, false)
	}
	res.ObjectKey = loc.ObjectKey

	if err := o.transfer.Transfer(ctx, loc, item, creds); err != nil {
		log.Error(ctx, "transfer failed", "index", idx, "key", loc.ObjectKey, "error", err)
		return failed(res, kindOf(err, models.KindTransfer), err, false)
	}

	rec := o.builder.Build(item.Name, item.Size, loc)
	if err := o.catalog.Insert(ctx, &rec); err != nil {
		log.Error(ctx, "object stored but not cataloged", "index", idx, "bucket", bucket, "key", loc.ObjectKey, "error", err)
		return failed(res, kindOf(err, models.KindCatalog), err, true)
	}

	log.Debug(ctx, "file uploaded", "index", idx, "key", loc.ObjectKey, "record_id", rec.ID)
	res.Status = models.StatusSuccess
	return res
}

func kindOf(err error, fallback models.ErrorKind) models.ErrorKind {
	if errors.Is(err, common.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return models.KindTimeout
	}
	return fallback
}

func failed(res models.ItemResult, kind models.ErrorKind, err error, divergent bool) models.ItemResult {
	res.Status = models.StatusFailed
	res.Error = &models.ItemError{Kind: kind, Reason: err.Error(), Divergent: divergent}
	return res
}

func notProcessed(idx int, id, fileName string, err error) models.ItemResult {
	return models.ItemResult{
		Index:      idx,
		Identifier: id,
		FileName:   fileName,
		Status:     models.StatusNotProcessed,
		Error:      &models.ItemError{Kind: models.KindCancelled, Reason: err.Error()},
	}
}
