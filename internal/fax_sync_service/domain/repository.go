package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FaxRecordRepository is the dedup and persistence store for inbound faxes.
type FaxRecordRepository interface {
	// Create inserts rec. A concurrent or prior insert of the same (partner, fax id) returns ErrDuplicateEntry.
	Create(ctx context.Context, rec *FaxRecord) error
	FindByFaxIDs(ctx context.Context, partnerID int64, faxIDs []string) ([]*FaxRecord, error)
	FindByFaxID(ctx context.Context, partnerID int64, faxID string) (*FaxRecord, error)
	GetByID(ctx context.Context, partnerID int64, id uuid.UUID) (*FaxRecord, error)
	UpdateProcessingStatus(ctx context.Context, partnerID int64, id uuid.UUID, status ProcessingStatus, processingErr *string) error
	UpdateFaxStatus(ctx context.Context, partnerID int64, id uuid.UUID, status FaxStatus) error
	// ListFailedSince returns active FAIL records whose provider timestamp is after since.
	ListFailedSince(ctx context.Context, since time.Time) ([]*FaxRecord, error)
	List(ctx context.Context, filter FaxListFilter) (*FaxPage, error)
	// Deactivate soft-deletes (trash=false) or trashes (trash=true) the given records.
	Deactivate(ctx context.Context, partnerID int64, ids []uuid.UUID, trash bool) (int64, error)
	CountActive(ctx context.Context, partnerID int64) (int64, error)
	Analytics(ctx context.Context, partnerID int64, from, to time.Time) (*FaxAnalytics, error)
}

// OutboundFaxRepository tracks outbound send status.
type OutboundFaxRepository interface {
	Create(ctx context.Context, rec *OutboundFaxRecord) error
	// UpdateSendStatus sets the terminal status on PENDING rows matching the correlation keys and recipient.
	UpdateSendStatus(ctx context.Context, partnerID int64, keys CorrelationKeys, recipient string, result SendResult) (int64, error)
}

// WatermarkRepository persists the end of the last completed realtime window per partner config.
type WatermarkRepository interface {
	Get(ctx context.Context, partnerID int64, provider ProviderType, configID int64) (*time.Time, error)
	Advance(ctx context.Context, partnerID int64, provider ProviderType, configID int64, end time.Time) error
}
