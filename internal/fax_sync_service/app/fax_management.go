package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// FaxManagementService backs the fax listing and status endpoints and the status subject.
type FaxManagementService struct {
	repo   domain.FaxRecordRepository
	retry  *RetryController
	logger *slog.Logger
}

func NewFaxManagementService(repo domain.FaxRecordRepository, retry *RetryController, logger *slog.Logger) *FaxManagementService {
	return &FaxManagementService{repo: repo, retry: retry, logger: logger.With("service", "fax_management")}
}

func (s *FaxManagementService) List(ctx context.Context, filter domain.FaxListFilter) (*domain.FaxPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}
	filter.Limit = min(filter.Limit, maxPageLimit)
	return s.repo.List(ctx, filter)
}

// Deactivate soft-deletes or trashes ids and returns how many rows changed.
func (s *FaxManagementService) Deactivate(ctx context.Context, partnerID int64, ids []uuid.UUID, trash bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.repo.Deactivate(ctx, partnerID, ids, trash)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "Faxes deactivated", "partner_id", partnerID, "requested", len(ids), "updated", n, "trash", trash)
	return n, nil
}

// UpdateStatus applies a downstream processing report.
func (s *FaxManagementService) UpdateStatus(ctx context.Context, report domain.FaxStatusReport) error {
	if report.Status == "" && report.FaxStatus == nil {
		return fmt.Errorf("%w: empty report", domain.ErrInvalidStatus)
	}
	if report.Status != "" {
		if !report.Status.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, report.Status)
		}
		if err := s.repo.UpdateProcessingStatus(ctx, report.PartnerID, report.ID, report.Status, report.Error); err != nil {
			return err
		}
	}
	if report.FaxStatus != nil {
		if !report.FaxStatus.Valid() {
			return fmt.Errorf("%w: fax status %q", domain.ErrInvalidStatus, *report.FaxStatus)
		}
		if err := s.repo.UpdateFaxStatus(ctx, report.PartnerID, report.ID, *report.FaxStatus); err != nil {
			return err
		}
	}
	s.logger.InfoContext(ctx, "Fax status updated", "partner_id", report.PartnerID, "id", report.ID, "status", report.Status)
	return nil
}

func (s *FaxManagementService) Retry(ctx context.Context, partnerID int64, id uuid.UUID) error {
	return s.retry.RetryFax(ctx, partnerID, id)
}

// CountActive returns how many faxes the partner has not deleted.
func (s *FaxManagementService) CountActive(ctx context.Context, partnerID int64) (int64, error) {
	return s.repo.CountActive(ctx, partnerID)
}

// Analytics reports inbox activity over [from, to).
func (s *FaxManagementService) Analytics(ctx context.Context, partnerID int64, from, to time.Time) (*domain.FaxAnalytics, error) {
	if from.IsZero() || to.IsZero() || !to.After(from) {
		return nil, fmt.Errorf("%w: analytics range %s..%s", domain.ErrInvalidWindow, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return s.repo.Analytics(ctx, partnerID, from.UTC(), to.UTC())
}
