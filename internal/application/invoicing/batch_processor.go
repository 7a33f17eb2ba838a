// Package invoicing runs the twice-daily invoice batch: confirm
// collected orders on their channel, issue carrier invoices and report
// the tracking numbers back.
package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/domain/catalog"
	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/domain/fulfillment"
	"github.com/shopflow/backend/internal/domain/shared"
	"github.com/shopflow/backend/internal/infrastructure/config"
	"github.com/shopflow/backend/internal/infrastructure/event"
	"github.com/shopflow/backend/internal/infrastructure/keymutex"
	"github.com/shopflow/backend/internal/infrastructure/retry"
	"github.com/shopflow/backend/internal/infrastructure/runlock"
)

// lockName guards the single-running-batch invariant across processes
const lockName = "invoice-batch"

// Stage names recorded on batch failures
const (
	stageConfirm  = "confirm"
	stageIssue    = "issue"
	stageRegister = "register"
)

// BatchProcessor executes invoice batch runs
type BatchProcessor struct {
	channels  channel.Registry
	carriers  carrier.Registry
	orders    fulfillment.OrderRepository
	runs      fulfillment.BatchRunRepository
	products  catalog.Repository
	locker    runlock.Locker
	locks     *keymutex.KeyMutex
	retry     *retry.Policy
	publisher shared.EventPublisher
	sender    config.SenderConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(
	channelRegistry channel.Registry,
	carrierRegistry carrier.Registry,
	orders fulfillment.OrderRepository,
	runs fulfillment.BatchRunRepository,
	products catalog.Repository,
	locker runlock.Locker,
	locks *keymutex.KeyMutex,
	retryPolicy *retry.Policy,
	publisher shared.EventPublisher,
	sender config.SenderConfig,
	logger *zap.Logger,
) *BatchProcessor {
	return &BatchProcessor{
		channels:  channelRegistry,
		carriers:  carrierRegistry,
		orders:    orders,
		runs:      runs,
		products:  products,
		locker:    locker,
		locks:     locks,
		retry:     retryPolicy,
		publisher: publisher,
		sender:    sender,
		logger:    logger.Named("invoicing"),
		now:       time.Now,
	}
}

// Run executes one invoice batch. The only refusal is another run
// holding the lock: re-running a slot that already ran today is
// accepted and simply selects whatever is still pending, so operators
// can re-fire a slot after a failure. The returned BatchRun is
// recorded regardless of per-order outcomes.
func (p *BatchProcessor) Run(ctx context.Context, batchNumber int) (*fulfillment.BatchRun, error) {
	handle, err := p.locker.Acquire(ctx, lockName)
	if err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			return nil, fmt.Errorf("%w: another batch run is in progress", shared.ErrConflict)
		}
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	defer func() {
		if err := handle.Release(context.Background()); err != nil {
			p.logger.Warn("failed to release batch lock", zap.Error(err))
		}
	}()

	batchDate := p.now().Format("2006-01-02")
	run, err := fulfillment.StartBatchRun(batchNumber, batchDate, p.now())
	if err != nil {
		return nil, err
	}
	if err := p.runs.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("record batch run: %w", err)
	}

	p.logger.Info("batch run started",
		zap.Int("batch_number", batchNumber),
		zap.String("batch_date", batchDate))

	// Orders stuck in INVOICE_ISSUED already have an invoice; only the
	// registration step is repeated for them.
	stuck, err := p.orders.ListBatchable(ctx, fulfillment.StatusInvoiceIssued)
	if err != nil {
		p.logger.Error("failed to list stuck orders", zap.Error(err))
		stuck = nil
	}
	for _, order := range stuck {
		if p.registerOrder(ctx, run, order) {
			run.RecordSuccess()
		}
	}

	pending, err := p.orders.ListBatchable(ctx, fulfillment.StatusCollected)
	if err != nil {
		run.Finish(p.now())
		if uerr := p.runs.Update(ctx, run); uerr != nil {
			p.logger.Error("failed to record batch run", zap.Error(uerr))
		}
		return run, fmt.Errorf("list batchable orders: %w", err)
	}
	run.TotalOrders = len(pending) + len(stuck)

	confirmed := make([]*fulfillment.Order, 0, len(pending))
	for _, order := range pending {
		if p.confirmOrder(ctx, run, order) {
			confirmed = append(confirmed, order)
		}
	}

	issued := p.issueInvoices(ctx, run, confirmed)
	for _, order := range issued {
		if p.registerOrder(ctx, run, order) {
			run.RecordSuccess()
		}
	}

	run.Finish(p.now())
	if err := p.runs.Update(ctx, run); err != nil {
		p.logger.Error("failed to record batch run", zap.Error(err))
	}
	p.publish(ctx, event.NewBatchRunCompleted(run.ID, run.BatchNumber, run.BatchDate, run.Succeeded, run.Failed))

	p.logger.Info("batch run finished",
		zap.Int("batch_number", batchNumber),
		zap.Int("total", run.TotalOrders),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed))
	return run, nil
}

// RetryOrder puts a FAILED order back into the status it failed from
// so the next batch picks it up
func (p *BatchProcessor) RetryOrder(ctx context.Context, orderID uuid.UUID) (*fulfillment.Order, error) {
	order, err := p.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	var retried *fulfillment.Order
	err = p.locks.WithLock(orderKey(order), func() error {
		order, err := p.orders.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.Retry(); err != nil {
			return err
		}
		if err := p.orders.Update(ctx, order); err != nil {
			return err
		}
		retried = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("order retried",
		zap.String("order_ref", retried.Ref()),
		zap.String("status", retried.Status.String()))
	return retried, nil
}

// confirmOrder acknowledges the order on its channel. A failure leaves
// the order COLLECTED so the next run tries again.
func (p *BatchProcessor) confirmOrder(ctx context.Context, run *fulfillment.BatchRun, order *fulfillment.Order) bool {
	if order.ConfirmedAt != nil {
		return true
	}
	adapter, err := p.channels.Get(order.Channel)
	if err != nil {
		run.RecordFailure(order.ID, order.Ref(), stageConfirm, err.Error(), p.now())
		return false
	}
	err = p.retry.Execute(ctx, func(ctx context.Context) error {
		return adapter.ConfirmOrder(ctx, order.ChannelOrderID)
	})
	if err != nil {
		p.logger.Warn("order confirmation failed",
			zap.String("order_ref", order.Ref()),
			zap.Error(err))
		run.RecordFailure(order.ID, order.Ref(), stageConfirm, reasonFor(err), p.now())
		return false
	}
	order.MarkConfirmed(p.now())
	if err := p.orders.Update(ctx, order); err != nil {
		run.RecordFailure(order.ID, order.Ref(), stageConfirm, err.Error(), p.now())
		return false
	}
	return true
}

// issueInvoices requests carrier invoices for the given orders through
// the default carrier, bulk where the adapter supports it, and returns
// the orders that reached INVOICE_ISSUED.
func (p *BatchProcessor) issueInvoices(ctx context.Context, run *fulfillment.BatchRun, orders []*fulfillment.Order) []*fulfillment.Order {
	if len(orders) == 0 {
		return nil
	}
	adapter := p.carriers.Default()

	reqs := make([]carrier.InvoiceRequest, 0, len(orders))
	byRef := make(map[string]*fulfillment.Order, len(orders))
	for _, order := range orders {
		reqs = append(reqs, p.invoiceRequest(order))
		byRef[order.Ref()] = order
	}

	var results []carrier.InvoiceResult
	err := p.retry.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		results, callErr = adapter.IssueInvoices(ctx, reqs)
		return callErr
	})
	if err != nil {
		// Whole-batch failure: no invoice was issued for anyone.
		for _, order := range orders {
			p.failIssue(ctx, run, order, err)
		}
		return nil
	}

	issued := make([]*fulfillment.Order, 0, len(results))
	for _, result := range results {
		order, ok := byRef[result.Reference]
		if !ok {
			p.logger.Error("carrier returned unknown reference", zap.String("reference", result.Reference))
			continue
		}
		entryErr := result.Err
		if entryErr != nil && carrier.IsRetryable(entryErr) {
			// Retry rejected entries one at a time before giving up.
			var single *carrier.InvoiceResult
			entryErr = p.retry.Execute(ctx, func(ctx context.Context) error {
				var issueErr error
				single, issueErr = adapter.IssueInvoice(ctx, p.invoiceRequest(order))
				return issueErr
			})
			if entryErr == nil {
				result = *single
			}
		}
		if entryErr != nil {
			p.failIssue(ctx, run, order, entryErr)
			continue
		}
		if ok := p.attachInvoice(ctx, run, order, adapter.Code(), result); ok {
			issued = append(issued, order)
		}
	}
	return issued
}

// attachInvoice moves the order to INVOICE_ISSUED under its key lock,
// re-reading first so a concurrent claim is not overwritten
func (p *BatchProcessor) attachInvoice(ctx context.Context, run *fulfillment.BatchRun, order *fulfillment.Order, code carrier.Code, result carrier.InvoiceResult) bool {
	err := p.locks.WithLock(orderKey(order), func() error {
		fresh, err := p.orders.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if fresh.Status != fulfillment.StatusCollected {
			return fmt.Errorf("%w: order moved to %s during batch", shared.ErrConflict, fresh.Status)
		}
		if err := fresh.AttachInvoice(code, result.TrackingNumber, result.IssuedAt); err != nil {
			return err
		}
		fresh.StampBatch(run.BatchNumber, run.BatchDate)
		if err := p.orders.Update(ctx, fresh); err != nil {
			return err
		}
		*order = *fresh
		return nil
	})
	if err != nil {
		p.logger.Warn("could not attach invoice",
			zap.String("order_ref", order.Ref()),
			zap.Error(err))
		run.RecordFailure(order.ID, order.Ref(), stageIssue, err.Error(), p.now())
		return false
	}
	return true
}

// failIssue moves an order to FAILED after invoicing failed fatally or
// exhausted its retries
func (p *BatchProcessor) failIssue(ctx context.Context, run *fulfillment.BatchRun, order *fulfillment.Order, cause error) {
	reason := reasonFor(cause)
	run.RecordFailure(order.ID, order.Ref(), stageIssue, reason, p.now())

	err := p.locks.WithLock(orderKey(order), func() error {
		fresh, err := p.orders.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if fresh.Status != fulfillment.StatusCollected {
			return nil
		}
		if err := fresh.Fail(reason, p.now()); err != nil {
			return err
		}
		fresh.StampBatch(run.BatchNumber, run.BatchDate)
		return p.orders.Update(ctx, fresh)
	})
	if err != nil {
		p.logger.Error("failed to mark order FAILED",
			zap.String("order_ref", order.Ref()),
			zap.Error(err))
	}
}

// registerOrder reports the tracking number to the channel. On
// exhausted retries the order stays INVOICE_ISSUED: it already has a
// valid invoice and must not be re-invoiced.
func (p *BatchProcessor) registerOrder(ctx context.Context, run *fulfillment.BatchRun, order *fulfillment.Order) bool {
	if order.Invoice == nil {
		run.RecordFailure(order.ID, order.Ref(), stageRegister, "order has no invoice", p.now())
		return false
	}
	adapter, err := p.channels.Get(order.Channel)
	if err != nil {
		run.RecordFailure(order.ID, order.Ref(), stageRegister, err.Error(), p.now())
		return false
	}

	carrierCode := order.Invoice.Carrier.MarketplaceCode()
	trackingNumber := order.Invoice.TrackingNumber
	err = p.retry.Execute(ctx, func(ctx context.Context) error {
		return adapter.RegisterTracking(ctx, order.ChannelOrderID, carrierCode, trackingNumber)
	})
	if err != nil {
		p.logger.Warn("tracking registration failed, order stays INVOICE_ISSUED",
			zap.String("order_ref", order.Ref()),
			zap.Error(err))
		run.RecordFailure(order.ID, order.Ref(), stageRegister, reasonFor(err), p.now())
		return false
	}

	err = p.locks.WithLock(orderKey(order), func() error {
		fresh, err := p.orders.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := fresh.MarkRegistered(p.now()); err != nil {
			return err
		}
		if fresh.BatchNumber == 0 {
			fresh.StampBatch(run.BatchNumber, run.BatchDate)
		}
		if err := p.orders.Update(ctx, fresh); err != nil {
			return err
		}
		*order = *fresh
		return nil
	})
	if err != nil {
		run.RecordFailure(order.ID, order.Ref(), stageRegister, err.Error(), p.now())
		return false
	}

	p.decrementStock(ctx, order)
	p.logger.Info("tracking registered",
		zap.String("order_ref", order.Ref()),
		zap.String("tracking_number", trackingNumber))
	return true
}

// decrementStock books the shipped quantities out of local stock.
// Items with no product mapping are skipped.
func (p *BatchProcessor) decrementStock(ctx context.Context, order *fulfillment.Order) {
	for _, item := range order.Items {
		product, err := p.products.FindByChannelLink(ctx, order.Channel, item.RemoteItemID)
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				p.logger.Error("failed to resolve product for stock decrement",
					zap.String("remote_item_id", item.RemoteItemID),
					zap.Error(err))
			}
			continue
		}
		err = p.locks.WithLock("product:"+product.ID.String(), func() error {
			fresh, err := p.products.FindByID(ctx, product.ID)
			if err != nil {
				return err
			}
			movement, err := fresh.ApplyMovement(-item.Quantity, catalog.ReasonOrder, "order "+order.Ref())
			if err != nil {
				return err
			}
			if err := p.products.SaveMovement(ctx, movement); err != nil {
				return err
			}
			if err := p.products.Update(ctx, fresh); err != nil {
				return err
			}
			if fresh.IsLowStock() {
				p.publish(ctx, event.NewLowStockDetected(fresh.ID, fresh.SKU, fresh.StockQuantity, fresh.LowStockThreshold))
			}
			return nil
		})
		if err != nil {
			p.logger.Error("stock decrement failed",
				zap.String("order_ref", order.Ref()),
				zap.String("sku", item.RemoteItemID),
				zap.Error(err))
		}
	}
}

func (p *BatchProcessor) invoiceRequest(order *fulfillment.Order) carrier.InvoiceRequest {
	return carrier.InvoiceRequest{
		Reference:     order.Ref(),
		SenderName:    p.sender.Name,
		SenderPhone:   p.sender.Phone,
		SenderZip:     p.sender.Zip,
		SenderAddress: p.sender.Address,
		RecipientName: order.Recipient.Name,
		Phone:         order.Recipient.Phone,
		Zip:           order.Recipient.Zip,
		Address1:      order.Recipient.Address1,
		Address2:      order.Recipient.Address2,
		ItemSummary:   order.ItemSummary(),
		BoxCount:      1,
		Message:       order.Recipient.Message,
	}
}

func (p *BatchProcessor) publish(ctx context.Context, ev shared.DomainEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, ev); err != nil {
		p.logger.Warn("failed to publish event", zap.String("event_type", ev.EventType()), zap.Error(err))
	}
}

// reasonFor renders a failure reason, marking exhausted retries so a
// reader can tell them from fatal rejections
func reasonFor(err error) string {
	if retry.IsExhausted(err) {
		return "retryable-exhausted: " + err.Error()
	}
	return err.Error()
}

func orderKey(order *fulfillment.Order) string {
	return "order:" + order.Channel.String() + ":" + order.ChannelOrderID
}
