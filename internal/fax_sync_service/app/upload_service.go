package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/faxsync/golang_services/internal/fax_sync_service/adapters/blobstore"
	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

const uploadCallbackTimeout = 5 * time.Minute

// UploadService stores faxes that arrive outside the provider sync: PDFs posted
// directly and PDFs another service has already put in the bucket.
type UploadService struct {
	repo      domain.FaxRecordRepository
	blobs     BlobStore
	converter DocumentConverter
	inbox     InboxService
	notifier  *Notifier
	logger    *slog.Logger
	now       func() time.Time
	pending   sync.WaitGroup
}

func NewUploadService(repo domain.FaxRecordRepository, blobs BlobStore, converter DocumentConverter, inbox InboxService, notifier *Notifier, logger *slog.Logger) *UploadService {
	return &UploadService{
		repo:      repo,
		blobs:     blobs,
		converter: converter,
		inbox:     inbox,
		notifier:  notifier,
		logger:    logger.With("service", "fax_upload"),
		now:       time.Now,
	}
}

// Upload stores the PDF and its TIFF rendition and records the fax as PROCESSING.
func (s *UploadService) Upload(ctx context.Context, partnerID int64, up domain.FaxUpload) (*domain.FaxRecord, error) {
	if !bytes.HasPrefix(up.PDF, []byte("%PDF")) {
		return nil, domain.ErrNotPDF
	}
	pdfID := uuid.New()
	pdfKey := blobstore.FaxDocumentKey(partnerID, pdfID, blobstore.ExtPDF)
	pdfURL, err := s.blobs.Put(ctx, pdfKey, up.PDF, blobstore.ContentTypePDF)
	if err != nil {
		return nil, fmt.Errorf("storing pdf: %w", err)
	}

	createdAt := s.now().UTC()
	if up.CreatedAt != nil {
		createdAt = up.CreatedAt.UTC()
	}
	rec := &domain.FaxRecord{
		PartnerID:          partnerID,
		FromFaxNumber:      up.FromFaxNumber,
		RecipientFaxNumber: up.RecipientFaxNumber,
		PdfDocID:           pdfID,
		PdfDocName:         path.Base(pdfKey),
		PdfURL:             pdfURL,
		FaxCreatedAt:       createdAt,
		CreatedAt:          createdAt,
	}
	if err := s.store(ctx, rec, up.PDF); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Uploaded fax stored", "partner_id", partnerID, "id", rec.ID, "pages", rec.Pages)
	return rec, nil
}

// RegisterStored checks the PDF exists in the bucket and finishes the fax in
// the background. Only a missing or malformed reference is reported to the caller.
func (s *UploadService) RegisterStored(ctx context.Context, partnerID int64, cb domain.FaxUploadCallback) error {
	if cb.BucketFilePath == "" || cb.DocumentID == uuid.Nil {
		return fmt.Errorf("%w: bucket path and document id are required", domain.ErrInvalidPayload)
	}
	if !strings.EqualFold(path.Ext(cb.BucketFilePath), blobstore.ExtPDF) {
		return domain.ErrNotPDF
	}
	ok, err := s.blobs.Exists(ctx, cb.BucketFilePath)
	if err != nil {
		return fmt.Errorf("checking %s: %w", cb.BucketFilePath, err)
	}
	if !ok {
		s.logger.WarnContext(ctx, "Uploaded document not found", "partner_id", partnerID, "path", cb.BucketFilePath)
		return fmt.Errorf("%w: %s", domain.ErrNotFound, cb.BucketFilePath)
	}

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadCallbackTimeout)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.finishStored(bgCtx, partnerID, cb); err != nil {
			s.logger.ErrorContext(bgCtx, "Failed to register uploaded fax", "error", err,
				"partner_id", partnerID, "path", cb.BucketFilePath, "document_id", cb.DocumentID)
		}
	}()
	return nil
}

// Wait blocks until background registrations have finished.
func (s *UploadService) Wait() {
	s.pending.Wait()
}

func (s *UploadService) finishStored(ctx context.Context, partnerID int64, cb domain.FaxUploadCallback) error {
	pdf, err := s.blobs.Get(ctx, cb.BucketFilePath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", cb.BucketFilePath, err)
	}
	now := s.now().UTC()
	rec := &domain.FaxRecord{
		PartnerID:          partnerID,
		FromFaxNumber:      cb.FromFaxNumber,
		RecipientFaxNumber: cb.RecipientFaxNumber,
		PdfDocID:           cb.DocumentID,
		PdfDocName:         cb.DocumentID.String() + blobstore.ExtPDF,
		PdfURL:             cb.FileURL,
		FaxCreatedAt:       now,
		CreatedAt:          now,
	}
	if err := s.store(ctx, rec, pdf); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Bucket fax registered", "partner_id", partnerID, "id", rec.ID, "document_id", cb.DocumentID)
	return nil
}

// store converts pdf, writes the TIFF and inserts rec, then hands it to the
// inbox and the persisted subject.
func (s *UploadService) store(ctx context.Context, rec *domain.FaxRecord, pdf []byte) error {
	tiff, pages, err := s.converter.ToTiff(ctx, pdf)
	if err != nil {
		return err
	}
	tifID := uuid.New()
	tifKey := blobstore.FaxDocumentKey(rec.PartnerID, tifID, blobstore.ExtTIFF)
	if _, err := s.blobs.Put(ctx, tifKey, tiff, blobstore.ContentTypeTIFF); err != nil {
		return fmt.Errorf("storing tiff: %w", err)
	}

	rec.ID = uuid.New()
	rec.FaxID = domain.ProviderOther.FaxIDPrefix() + rec.ID.String()
	rec.SyncID = uuid.New()
	rec.Provider = domain.ProviderOther
	rec.Pages = pages
	rec.TifDocID = tifID
	rec.TifDocName = path.Base(tifKey)
	rec.ProcessingStatus = domain.ProcessingStatusProcessing
	rec.IsActive = true
	rec.UpdatedAt = s.now().UTC()
	if err := s.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("persisting uploaded fax: %w", err)
	}

	if err := s.inbox.ReportBatch(ctx, rec.PartnerID, []domain.InboxFaxEntry{inboxEntry(rec, false)}); err != nil {
		s.logger.ErrorContext(ctx, "Failed to report uploaded fax to inbox", "error", err, "partner_id", rec.PartnerID, "id", rec.ID)
	}
	if err := s.notifier.FaxPersisted(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish uploaded fax", "error", err, "partner_id", rec.PartnerID, "id", rec.ID)
	}
	return nil
}
