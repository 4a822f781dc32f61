package app

import (
	"context"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// PartnerDirectory reads partner details and provider credentials.
type PartnerDirectory interface {
	ListPartners(ctx context.Context) ([]*domain.Partner, error)
	GetPartner(ctx context.Context, partnerID int64) (*domain.Partner, error)
}

// BlobStore holds fax documents and HTML templates.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

type DocumentConverter interface {
	ToTiff(ctx context.Context, pdf []byte) ([]byte, int, error)
	RenderToPdf(ctx context.Context, html []byte) ([]byte, error)
}

type InboxService interface {
	ReportBatch(ctx context.Context, partnerID int64, entries []domain.InboxFaxEntry) error
	UpdateHL7Status(ctx context.Context, partnerID, referralID int64, status string) error
}

type DocumentService interface {
	SaveFile(ctx context.Context, partnerID int64, patientID, referralID *int64, fileName string, pdf []byte) (string, error)
	FetchDocument(ctx context.Context, partnerID int64, ref domain.DocumentRef) ([]byte, error)
}

type ReferralService interface {
	Deactivate(ctx context.Context, partnerID int64, patientID *int64, referralID int64) error
}

// FeatureToggles exposes flags that may flip while the service runs.
type FeatureToggles interface {
	RingCentralEnabled() bool
}
