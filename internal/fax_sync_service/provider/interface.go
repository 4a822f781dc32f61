package provider

import (
	"context"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// FaxProvider is implemented once per external fax vendor. Implementations hold no
// per-call state; every result is returned to the caller.
type FaxProvider interface {
	Name() domain.ProviderType

	// FetchInboundBatch lists the inbound faxes whose creation time falls inside window.
	// An error means the whole batch for this config is unusable.
	FetchInboundBatch(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, window domain.SyncWindow) ([]domain.RawFaxRecord, error)

	// FetchDocuments downloads the artifacts of one raw record. Documents.TIFF is nil
	// when the vendor only serves PDF.
	FetchDocuments(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, raw domain.RawFaxRecord) (*domain.Documents, error)

	// SendOutbound submits doc to recipients. Transport failures are reported in the
	// result, never as an error.
	SendOutbound(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, doc domain.OutboundDocument, recipients []string) domain.SendResult
}
