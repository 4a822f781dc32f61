package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// QueueSubscriber is the subscribe half of the NATS client.
type QueueSubscriber interface {
	SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler func(*nats.Msg)) error
}

// StatusConsumer applies processing reports that downstream services publish.
type StatusConsumer struct {
	subscriber QueueSubscriber
	subject    string
	queueGroup string
	faxes      *FaxManagementService
	timeout    time.Duration
	logger     *slog.Logger
}

func NewStatusConsumer(subscriber QueueSubscriber, subject, queueGroup string, faxes *FaxManagementService, logger *slog.Logger) *StatusConsumer {
	return &StatusConsumer{
		subscriber: subscriber,
		subject:    subject,
		queueGroup: queueGroup,
		faxes:      faxes,
		timeout:    30 * time.Second,
		logger:     logger.With("component", "status_consumer"),
	}
}

func (c *StatusConsumer) Start(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Starting fax status consumer", "subject", c.subject, "queue_group", c.queueGroup)
	if err := c.subscriber.SubscribeToSubjectWithQueue(ctx, c.subject, c.queueGroup, c.handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", c.subject, err)
	}
	return nil
}

func (c *StatusConsumer) handle(msg *nats.Msg) {
	var report domain.FaxStatusReport
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		c.logger.Error("Failed to decode fax status report", "error", err, "data", string(msg.Data))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.faxes.UpdateStatus(ctx, report); err != nil {
		c.logger.ErrorContext(ctx, "Failed to apply fax status report", "error", err, "partner_id", report.PartnerID, "id", report.ID)
	}
}
