// Package executor turns a classified invoice worklist into a
// bulk.Result while respecting the remote ledger's rate limit and the
// caller's execution-time budget. Execution is strictly sequential: the
// remote rate limit is global, and un-pay must land before void for the same
// invoice, so nothing here fans out.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/practiceledger-recon/internal/config"
	"github.com/practiceledger-recon/internal/domain/audit"
	"github.com/practiceledger-recon/internal/domain/bulk"
	"github.com/practiceledger-recon/internal/domain/invoice"
	"github.com/practiceledger-recon/internal/ledgerapi"
	"github.com/practiceledger-recon/internal/platform/messaging/producers"
)

// ErrNotConfirmed rejects a live destructive run whose caller did not pass
// the confirmation flag. The confirmation token itself is computed and
// checked by the caller; the engine only gates on the boolean.
var ErrNotConfirmed = errors.New("live run requires explicit confirmation")

// Gateway is the slice of the ledger API the executor drives.
type Gateway interface {
	FetchInvoice(ctx context.Context, id string) (*invoice.Record, error)
	UpdateInvoiceStatus(ctx context.Context, id, number string, status invoice.Status) error
	UpdateInvoiceStatusBatch(ctx context.Context, refs []ledgerapi.InvoiceRef, status invoice.Status) error
	DeletePayment(ctx context.Context, paymentID string) error
}

// WorkItem pairs an invoice snapshot with its classified action.
type WorkItem struct {
	Record invoice.Record
	Action invoice.Action
}

// NewWorkItems classifies a fetched invoice set into a worklist.
func NewWorkItems(records []invoice.Record) []WorkItem {
	items := make([]WorkItem, 0, len(records))
	for _, rec := range records {
		items = append(items, WorkItem{Record: rec, Action: invoice.ActionFor(rec.Status)})
	}
	return items
}

// Request is one bulk cleanup invocation.
type Request struct {
	Items         []WorkItem
	DryRun        bool
	Confirmed     bool
	CorrelationID string
}

// Executor drives the classifier's actions against the gateway in ordered
// stages: un-pay, then void, then delete.
type Executor struct {
	gateway   Gateway
	auditRepo audit.Repository
	publisher producers.MessagePublisher
	cfg       config.ExecutorConfig
	logger    *slog.Logger

	// sleep is swapped out by tests so pacing does not slow them down.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a batch executor.
func New(logger *slog.Logger, gateway Gateway, auditRepo audit.Repository, publisher producers.MessagePublisher, cfg config.ExecutorConfig) *Executor {
	return &Executor{
		gateway:   gateway,
		auditRepo: auditRepo,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// voidable carries an item from the un-pay stage into the void stage along
// with how many allocations were removed, so the final item message can
// report both.
type voidable struct {
	ref             ledgerapi.InvoiceRef
	paymentsRemoved int
}

// Run executes the worklist. Per-item failures never abort siblings; the
// returned result accounts for every input invoice exactly once across
// succeeded, failed, skipped and remaining.
func (e *Executor) Run(ctx context.Context, req Request) (*bulk.Result, error) {
	if !req.DryRun && !req.Confirmed {
		return nil, ErrNotConfirmed
	}

	logger := e.logger
	if req.CorrelationID != "" {
		logger = logger.With("correlation_id", req.CorrelationID)
	}
	logger.Info("Starting bulk invoice run",
		"items", len(req.Items),
		"dry_run", req.DryRun,
	)

	result := &bulk.Result{}

	var unpayItems []WorkItem
	var voidQueue []voidable
	var deleteRefs []ledgerapi.InvoiceRef
	for _, item := range req.Items {
		switch item.Action {
		case invoice.ActionUnpayThenVoid:
			unpayItems = append(unpayItems, item)
		case invoice.ActionVoid:
			voidQueue = append(voidQueue, voidable{ref: refOf(item.Record)})
		case invoice.ActionDelete:
			deleteRefs = append(deleteRefs, refOf(item.Record))
		default:
			result.AddSkip(item.Record.ID, item.Record.Number, "no action required for status "+string(item.Record.Status))
		}
	}

	// Hard per-invocation cap on un-pay work: each un-pay costs one fetch
	// plus one delete per allocation, so an unbounded worklist would blow
	// the caller's execution budget. Overflow is returned untouched.
	if len(unpayItems) > e.cfg.UnpayCap {
		for _, item := range unpayItems[e.cfg.UnpayCap:] {
			result.Defer(item.Record.Number)
		}
		logger.Info("Un-pay worklist capped",
			"cap", e.cfg.UnpayCap,
			"deferred", len(unpayItems)-e.cfg.UnpayCap,
		)
		unpayItems = unpayItems[:e.cfg.UnpayCap]
	}

	if err := e.runUnpayStage(ctx, req.DryRun, unpayItems, &voidQueue, result); err != nil {
		return nil, err
	}
	if err := e.runStatusStage(ctx, req.DryRun, voidQueue, invoice.StatusVoided, e.cfg.VoidBatchSize, result); err != nil {
		return nil, err
	}

	deleteQueue := make([]voidable, 0, len(deleteRefs))
	for _, ref := range deleteRefs {
		deleteQueue = append(deleteQueue, voidable{ref: ref})
	}
	if err := e.runStatusStage(ctx, req.DryRun, deleteQueue, invoice.StatusDeleted, e.cfg.DeleteBatchSize, result); err != nil {
		return nil, err
	}

	logger.Info("Bulk invoice run finished",
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"stopped_early", result.StoppedEarly,
		"partial", result.Partial,
	)

	if !req.DryRun {
		e.recordAudit(ctx, req, result)
	}
	return result, nil
}

// runUnpayStage fetches each invoice's fresh state and deletes its payment
// allocations one at a time with pacing between deletions. Successfully
// un-paid invoices join the void queue. A not-found stops the stage: the
// worklist snapshot is stale.
func (e *Executor) runUnpayStage(ctx context.Context, dryRun bool, items []WorkItem, voidQueue *[]voidable, result *bulk.Result) error {
	for i, item := range items {
		if ctx.Err() != nil {
			e.deferRest(items[i:], result)
			return nil
		}

		rec := item.Record
		fresh, err := e.gateway.FetchInvoice(ctx, rec.ID)
		if err != nil {
			var notFound *ledgerapi.NotFoundError
			if errors.As(err, &notFound) {
				result.AddFailure(rec.ID, rec.Number, item.Action, fmt.Sprintf("invoice %s no longer exists; worklist is stale", rec.Number))
				result.StoppedEarly = true
				e.deferRest(items[i+1:], result)
				e.logger.Error("Un-pay stage stopped: invoice missing remotely", "invoice_number", rec.Number)
				return nil
			}
			if isAuthErr(err) {
				return err
			}
			result.AddFailure(rec.ID, rec.Number, item.Action, fmt.Sprintf("failed to fetch invoice %s: %v", rec.Number, err))
			continue
		}

		// The remote state may have moved since the worklist was built.
		if fresh.Status == invoice.StatusVoided || fresh.Status == invoice.StatusDeleted {
			result.AddSkip(rec.ID, rec.Number, "already retired remotely")
			continue
		}

		removed, err := e.removePayments(ctx, dryRun, fresh)
		if err != nil {
			if isAuthErr(err) {
				return err
			}
			result.AddFailure(rec.ID, rec.Number, item.Action, fmt.Sprintf("failed to remove payment from invoice %s: %v", rec.Number, itemMessage(err)))
			continue
		}
		result.Counts.PaymentsRemoved += removed

		*voidQueue = append(*voidQueue, voidable{ref: refOf(rec), paymentsRemoved: removed})
	}
	return nil
}

// removePayments deletes every allocation on the invoice, pacing between
// deletions. The dry run walks the same loop and skips only the write.
func (e *Executor) removePayments(ctx context.Context, dryRun bool, rec *invoice.Record) (int, error) {
	removed := 0
	for _, allocation := range rec.Payments {
		if !dryRun {
			if err := e.gateway.DeletePayment(ctx, allocation.ID); err != nil {
				return removed, err
			}
			if err := e.sleep(ctx, e.cfg.PacingDelay); err != nil {
				return removed, err
			}
		}
		removed++
	}
	return removed, nil
}

// runStatusStage submits the queue in batches. A rejected batch is retried
// item-by-item so a single poisoned invoice only costs itself; the batch
// path and the item path both go through the gateway, with the dry run
// substituting a no-op for the write only.
func (e *Executor) runStatusStage(ctx context.Context, dryRun bool, queue []voidable, target invoice.Status, batchSize int, result *bulk.Result) error {
	for start := 0; start < len(queue); start += batchSize {
		if ctx.Err() != nil {
			e.deferVoidables(queue[start:], result)
			return nil
		}

		end := start + batchSize
		if end > len(queue) {
			end = len(queue)
		}
		batch := queue[start:end]

		refs := make([]ledgerapi.InvoiceRef, 0, len(batch))
		for _, v := range batch {
			refs = append(refs, v.ref)
		}

		var err error
		if !dryRun {
			err = e.gateway.UpdateInvoiceStatusBatch(ctx, refs, target)
		}
		if err == nil {
			for _, v := range batch {
				result.AddSuccess(v.ref.ID, v.ref.Number, actionFor(target), successMessage(target, v.paymentsRemoved))
			}
			e.countStage(target, len(batch), result)
		} else {
			if isAuthErr(err) {
				return err
			}
			e.logger.Warn("Batch rejected, retrying item by item",
				"target_status", string(target),
				"batch_size", len(batch),
				"error", err,
			)
			stopped, err := e.retryItemByItem(ctx, batch, target, result)
			if err != nil {
				return err
			}
			if stopped {
				e.deferVoidables(queue[end:], result)
				return nil
			}
		}

		if !dryRun {
			if err := e.sleep(ctx, e.cfg.PacingDelay); err != nil {
				e.deferVoidables(queue[end:], result)
				return nil
			}
		}
	}
	return nil
}

// retryItemByItem isolates a poisoned batch. Every good item still succeeds;
// a missing invoice stops the stage.
func (e *Executor) retryItemByItem(ctx context.Context, batch []voidable, target invoice.Status, result *bulk.Result) (stopped bool, fatal error) {
	for i, v := range batch {
		if ctx.Err() != nil {
			e.deferVoidables(batch[i:], result)
			return true, nil
		}

		err := e.gateway.UpdateInvoiceStatus(ctx, v.ref.ID, v.ref.Number, target)
		if err == nil {
			result.AddSuccess(v.ref.ID, v.ref.Number, actionFor(target), successMessage(target, v.paymentsRemoved))
			e.countStage(target, 1, result)
			if err := e.sleep(ctx, e.cfg.PacingDelay); err != nil {
				e.deferVoidables(batch[i+1:], result)
				return true, nil
			}
			continue
		}

		if isAuthErr(err) {
			return false, err
		}
		var notFound *ledgerapi.NotFoundError
		if errors.As(err, &notFound) {
			result.AddFailure(v.ref.ID, v.ref.Number, actionFor(target), fmt.Sprintf("invoice %s no longer exists; worklist is stale", v.ref.Number))
			result.StoppedEarly = true
			e.deferVoidables(batch[i+1:], result)
			e.logger.Error("Stage stopped: invoice missing remotely",
				"target_status", string(target),
				"invoice_number", v.ref.Number,
			)
			return true, nil
		}
		result.AddFailure(v.ref.ID, v.ref.Number, actionFor(target), itemMessage(err))
	}
	return false, nil
}

func (e *Executor) deferRest(items []WorkItem, result *bulk.Result) {
	for _, item := range items {
		result.Defer(item.Record.Number)
	}
}

func (e *Executor) deferVoidables(queue []voidable, result *bulk.Result) {
	for _, v := range queue {
		result.Defer(v.ref.Number)
	}
}

func (e *Executor) countStage(target invoice.Status, n int, result *bulk.Result) {
	switch target {
	case invoice.StatusVoided:
		result.Counts.Voided += n
	case invoice.StatusDeleted:
		result.Counts.Deleted += n
	}
}

// recordAudit appends the durable audit record and mirrors it onto the
// audit event stream. Neither failure can fail the operation itself.
func (e *Executor) recordAudit(ctx context.Context, req Request, result *bulk.Result) {
	record := &audit.Record{
		ID:               uuid.New(),
		Operation:        audit.OperationInvoiceCleanup,
		CorrelationID:    req.CorrelationID,
		DryRun:           req.DryRun,
		Attempted:        result.Attempted,
		Succeeded:        result.Succeeded,
		Failed:           result.Failed,
		Skipped:          result.Skipped,
		StoppedEarly:     result.StoppedEarly,
		Partial:          result.Partial,
		RemainingNumbers: result.RemainingNumbers,
		Items:            result.Items,
		CreatedAt:        time.Now().UTC(),
	}
	if err := e.auditRepo.Append(ctx, record); err != nil {
		e.logger.Error("Failed to append audit record", "audit_id", record.ID.String(), "error", err)
	}
	if err := e.publisher.Publish(ctx, record.ID.String(), record); err != nil {
		e.logger.Error("Failed to publish audit event", "audit_id", record.ID.String(), "error", err)
	}
}

func refOf(rec invoice.Record) ledgerapi.InvoiceRef {
	return ledgerapi.InvoiceRef{ID: rec.ID, Number: rec.Number}
}

func actionFor(target invoice.Status) invoice.Action {
	if target == invoice.StatusDeleted {
		return invoice.ActionDelete
	}
	return invoice.ActionVoid
}

func successMessage(target invoice.Status, paymentsRemoved int) string {
	verb := "voided"
	if target == invoice.StatusDeleted {
		verb = "deleted"
	}
	if paymentsRemoved > 0 {
		return fmt.Sprintf("removed %d payment(s), %s", paymentsRemoved, verb)
	}
	return verb
}

func itemMessage(err error) string {
	var valErr *ledgerapi.ValidationError
	if errors.As(err, &valErr) {
		if len(valErr.Items) > 0 {
			return valErr.Items[0].Message
		}
		return valErr.Message
	}
	return err.Error()
}

func isAuthErr(err error) bool {
	var authErr *ledgerapi.AuthError
	return errors.As(err, &authErr)
}

// sleepContext pauses for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
