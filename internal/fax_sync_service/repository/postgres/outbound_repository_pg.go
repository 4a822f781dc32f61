package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/database"
)

type PgOutboundFaxRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgOutboundFaxRepository(db database.DBTX, logger *slog.Logger) domain.OutboundFaxRepository {
	return &PgOutboundFaxRepository{db: db, logger: logger.With("component", "outbound_repository_pg")}
}

func (r *PgOutboundFaxRepository) Create(ctx context.Context, rec *domain.OutboundFaxRecord) error {
	query := `INSERT INTO fax_outbound_details (id, partner_id, appointment_id, patient_id, referral_id,
		recipient_fax_number, fax_template_type, fax_send_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now().UTC()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.FaxSendStatus == "" {
		rec.FaxSendStatus = domain.SendStatusPending
	}
	rec.CreatedAt, rec.UpdatedAt = now, now

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.PartnerID, rec.AppointmentID, rec.PatientID, rec.ReferralID,
		rec.RecipientFaxNumber, rec.FaxTemplateType, rec.FaxSendStatus, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert outbound fax record", "error", err, "partner_id", rec.PartnerID)
		return fmt.Errorf("inserting outbound fax record: %w", err)
	}
	return nil
}

// UpdateSendStatus only touches PENDING rows; terminal rows are immutable.
func (r *PgOutboundFaxRepository) UpdateSendStatus(ctx context.Context, partnerID int64, keys domain.CorrelationKeys, recipient string, result domain.SendResult) (int64, error) {
	if keys.Empty() {
		return 0, nil
	}
	status := domain.SendStatusFail
	var sendErr, providerMsgID *string
	if result.Success {
		status = domain.SendStatusSuccess
	} else if result.Error != "" {
		sendErr = &result.Error
	}
	if result.ProviderMessageID != "" {
		providerMsgID = &result.ProviderMessageID
	}

	query := `UPDATE fax_outbound_details
		SET fax_provider = $1, sender_fax_number = $2, fax_send_status = $3, fax_send_error = $4,
			provider_message_id = $5, updated_at = $6
		WHERE partner_id = $7
			AND (appointment_id = $8 OR patient_id = $9)
			AND recipient_fax_number = $10
			AND fax_send_status = $11`
	tag, err := r.db.Exec(ctx, query,
		result.Provider, result.SenderFaxNumber, status, sendErr, providerMsgID, time.Now().UTC(),
		partnerID, keys.AppointmentID, keys.PatientID, recipient, domain.SendStatusPending,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update outbound send status", "error", err, "partner_id", partnerID, "recipient", recipient)
		return 0, fmt.Errorf("updating outbound send status: %w", err)
	}
	return tag.RowsAffected(), nil
}
