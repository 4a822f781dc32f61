package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/messagebroker"
)

// Notifier publishes fax lifecycle events on the message bus.
type Notifier struct {
	publisher       messagebroker.Publisher
	inboundSubject  string
	outboundSubject string
	logger          *slog.Logger
}

func NewNotifier(publisher messagebroker.Publisher, inboundSubject, outboundSubject string, logger *slog.Logger) *Notifier {
	return &Notifier{
		publisher:       publisher,
		inboundSubject:  inboundSubject,
		outboundSubject: outboundSubject,
		logger:          logger.With("component", "notifier"),
	}
}

// FaxPersisted announces a stored inbound fax to downstream processors.
func (n *Notifier) FaxPersisted(ctx context.Context, rec *domain.FaxRecord) error {
	payload := domain.FaxPersistedNotification{
		PartnerID:  rec.PartnerID,
		ID:         rec.ID,
		DocumentID: rec.PdfDocID,
		URL:        rec.PdfURL,
	}
	return n.publish(ctx, n.inboundSubject, payload)
}

// FaxOutbound announces the terminal state of an outbound send. Failures are logged only.
func (n *Notifier) FaxOutbound(ctx context.Context, note domain.FaxOutboundNotification) {
	if err := n.publish(ctx, n.outboundSubject, note); err != nil {
		n.logger.ErrorContext(ctx, "Failed to publish outbound notification", "error", err, "partner_id", note.PartnerID)
	}
}

func (n *Notifier) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", subject, err)
	}
	if err := n.publisher.Publish(ctx, subject, data); err != nil {
		notificationsPublishedCounter.WithLabelValues(subject, "error").Inc()
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	notificationsPublishedCounter.WithLabelValues(subject, "ok").Inc()
	return nil
}
