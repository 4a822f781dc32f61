package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faxsync/golang_services/internal/fax_sync_service/adapters/blobstore"
	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// RetryController re-publishes faxes whose downstream processing failed.
type RetryController struct {
	repo     domain.FaxRecordRepository
	blobs    BlobStore
	notifier *Notifier
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewRetryController(repo domain.FaxRecordRepository, blobs BlobStore, notifier *Notifier, window time.Duration, logger *slog.Logger) *RetryController {
	return &RetryController{
		repo:     repo,
		blobs:    blobs,
		notifier: notifier,
		window:   window,
		logger:   logger.With("component", "retry_controller"),
		now:      time.Now,
	}
}

// Sweep re-publishes every active FAIL record received inside the retry window
// and returns how many were handed back to processing.
func (c *RetryController) Sweep(ctx context.Context) (int, error) {
	since := c.now().Add(-c.window)
	failed, err := c.repo.ListFailedSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("listing failed faxes: %w", err)
	}

	retried := 0
	for _, rec := range failed {
		if ctx.Err() != nil {
			return retried, ctx.Err()
		}
		if err := c.republish(ctx, rec); err != nil {
			retriedFaxesCounter.WithLabelValues("sweep", "error").Inc()
			c.logger.WarnContext(ctx, "Fax retry failed", "error", err, "partner_id", rec.PartnerID, "id", rec.ID)
			continue
		}
		retriedFaxesCounter.WithLabelValues("sweep", "ok").Inc()
		retried++
	}
	if len(failed) > 0 {
		c.logger.InfoContext(ctx, "Retry sweep finished", "candidates", len(failed), "retried", retried, "since", since)
	}
	return retried, nil
}

// RetryFax re-publishes one record regardless of its age.
func (c *RetryController) RetryFax(ctx context.Context, partnerID int64, id uuid.UUID) error {
	rec, err := c.repo.GetByID(ctx, partnerID, id)
	if err != nil {
		return err
	}
	if err := c.republish(ctx, rec); err != nil {
		retriedFaxesCounter.WithLabelValues("manual", "error").Inc()
		return err
	}
	retriedFaxesCounter.WithLabelValues("manual", "ok").Inc()
	c.logger.InfoContext(ctx, "Fax retried", "partner_id", partnerID, "id", id)
	return nil
}

// republish moves rec back to PROCESSING only once the bus accepted the message,
// so a failed publish leaves the record eligible for the next sweep.
func (c *RetryController) republish(ctx context.Context, rec *domain.FaxRecord) error {
	key := blobstore.FaxDocumentKey(rec.PartnerID, rec.PdfDocID, blobstore.ExtPDF)
	ok, err := c.blobs.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("checking pdf blob: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: pdf blob %s", domain.ErrNotFound, key)
	}
	if err := c.notifier.FaxPersisted(ctx, rec); err != nil {
		return err
	}
	return c.repo.UpdateProcessingStatus(ctx, rec.PartnerID, rec.ID, domain.ProcessingStatusProcessing, nil)
}
