package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// --- Mocks ---

type MockPartnerDirectory struct {
	mock.Mock
}

func (m *MockPartnerDirectory) ListPartners(ctx context.Context) ([]*domain.Partner, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Partner), args.Error(1)
}

func (m *MockPartnerDirectory) GetPartner(ctx context.Context, partnerID int64) (*domain.Partner, error) {
	args := m.Called(ctx, partnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Partner), args.Error(1)
}

type MockFaxProvider struct {
	mock.Mock
	ProviderName domain.ProviderType
}

func (m *MockFaxProvider) Name() domain.ProviderType { return m.ProviderName }

func (m *MockFaxProvider) FetchInboundBatch(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, window domain.SyncWindow) ([]domain.RawFaxRecord, error) {
	args := m.Called(ctx, partner, cfg, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RawFaxRecord), args.Error(1)
}

func (m *MockFaxProvider) FetchDocuments(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, raw domain.RawFaxRecord) (*domain.Documents, error) {
	args := m.Called(ctx, partner, cfg, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Documents), args.Error(1)
}

func (m *MockFaxProvider) SendOutbound(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, doc domain.OutboundDocument, recipients []string) domain.SendResult {
	args := m.Called(ctx, partner, cfg, doc, recipients)
	return args.Get(0).(domain.SendResult)
}

type MockFaxRecordRepository struct {
	mock.Mock
}

func (m *MockFaxRecordRepository) Create(ctx context.Context, rec *domain.FaxRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockFaxRecordRepository) FindByFaxIDs(ctx context.Context, partnerID int64, faxIDs []string) ([]*domain.FaxRecord, error) {
	args := m.Called(ctx, partnerID, faxIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FaxRecord), args.Error(1)
}

func (m *MockFaxRecordRepository) FindByFaxID(ctx context.Context, partnerID int64, faxID string) (*domain.FaxRecord, error) {
	args := m.Called(ctx, partnerID, faxID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FaxRecord), args.Error(1)
}

func (m *MockFaxRecordRepository) GetByID(ctx context.Context, partnerID int64, id uuid.UUID) (*domain.FaxRecord, error) {
	args := m.Called(ctx, partnerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FaxRecord), args.Error(1)
}

func (m *MockFaxRecordRepository) UpdateProcessingStatus(ctx context.Context, partnerID int64, id uuid.UUID, status domain.ProcessingStatus, processingErr *string) error {
	args := m.Called(ctx, partnerID, id, status, processingErr)
	return args.Error(0)
}

func (m *MockFaxRecordRepository) UpdateFaxStatus(ctx context.Context, partnerID int64, id uuid.UUID, status domain.FaxStatus) error {
	args := m.Called(ctx, partnerID, id, status)
	return args.Error(0)
}

func (m *MockFaxRecordRepository) ListFailedSince(ctx context.Context, since time.Time) ([]*domain.FaxRecord, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FaxRecord), args.Error(1)
}

func (m *MockFaxRecordRepository) List(ctx context.Context, filter domain.FaxListFilter) (*domain.FaxPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FaxPage), args.Error(1)
}

func (m *MockFaxRecordRepository) Deactivate(ctx context.Context, partnerID int64, ids []uuid.UUID, trash bool) (int64, error) {
	args := m.Called(ctx, partnerID, ids, trash)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFaxRecordRepository) CountActive(ctx context.Context, partnerID int64) (int64, error) {
	args := m.Called(ctx, partnerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockFaxRecordRepository) Analytics(ctx context.Context, partnerID int64, from, to time.Time) (*domain.FaxAnalytics, error) {
	args := m.Called(ctx, partnerID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FaxAnalytics), args.Error(1)
}

type MockWatermarkRepository struct {
	mock.Mock
}

func (m *MockWatermarkRepository) Get(ctx context.Context, partnerID int64, provider domain.ProviderType, configID int64) (*time.Time, error) {
	args := m.Called(ctx, partnerID, provider, configID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *MockWatermarkRepository) Advance(ctx context.Context, partnerID int64, provider domain.ProviderType, configID int64, end time.Time) error {
	args := m.Called(ctx, partnerID, provider, configID, end)
	return args.Error(0)
}

type MockOutboundFaxRepository struct {
	mock.Mock
}

func (m *MockOutboundFaxRepository) Create(ctx context.Context, rec *domain.OutboundFaxRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockOutboundFaxRepository) UpdateSendStatus(ctx context.Context, partnerID int64, keys domain.CorrelationKeys, recipient string, result domain.SendResult) (int64, error) {
	args := m.Called(ctx, partnerID, keys, recipient, result)
	return args.Get(0).(int64), args.Error(1)
}

type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, key, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockConverter struct {
	mock.Mock
}

func (m *MockConverter) ToTiff(ctx context.Context, pdf []byte) ([]byte, int, error) {
	args := m.Called(ctx, pdf)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]byte), args.Int(1), args.Error(2)
}

func (m *MockConverter) RenderToPdf(ctx context.Context, html []byte) ([]byte, error) {
	args := m.Called(ctx, html)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockInboxService struct {
	mock.Mock
}

func (m *MockInboxService) ReportBatch(ctx context.Context, partnerID int64, entries []domain.InboxFaxEntry) error {
	args := m.Called(ctx, partnerID, entries)
	return args.Error(0)
}

func (m *MockInboxService) UpdateHL7Status(ctx context.Context, partnerID, referralID int64, status string) error {
	args := m.Called(ctx, partnerID, referralID, status)
	return args.Error(0)
}

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) SaveFile(ctx context.Context, partnerID int64, patientID, referralID *int64, fileName string, pdf []byte) (string, error) {
	args := m.Called(ctx, partnerID, patientID, referralID, fileName, pdf)
	return args.String(0), args.Error(1)
}

func (m *MockDocumentService) FetchDocument(ctx context.Context, partnerID int64, ref domain.DocumentRef) ([]byte, error) {
	args := m.Called(ctx, partnerID, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockReferralService struct {
	mock.Mock
}

func (m *MockReferralService) Deactivate(ctx context.Context, partnerID int64, patientID *int64, referralID int64) error {
	args := m.Called(ctx, partnerID, patientID, referralID)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

func (m *MockPublisher) Close() {}

type staticToggles bool

func (t staticToggles) RingCentralEnabled() bool { return bool(t) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	testInboundSubject  = "fax.inbound.persisted"
	testOutboundSubject = "fax.outbound.completed"
)

func int64Ptr(v int64) *int64 { return &v }
