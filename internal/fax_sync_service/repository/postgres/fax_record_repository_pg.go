package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/database"
)

const faxRecordColumns = `id, fax_id, sync_id, partner_id, provider, from_fax_number, recipient_fax_number, pages,
	pdf_doc_id, pdf_doc_name, pdf_url, tif_doc_id, tif_doc_name, processing_status, processing_error,
	is_active, fax_status, fax_status_date, trashed, fax_created_at, created_at, updated_at`

type PgFaxRecordRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgFaxRecordRepository(db database.DBTX, logger *slog.Logger) domain.FaxRecordRepository {
	return &PgFaxRecordRepository{db: db, logger: logger.With("component", "fax_record_repository_pg")}
}

func (r *PgFaxRecordRepository) Create(ctx context.Context, rec *domain.FaxRecord) error {
	query := `INSERT INTO fax_details (id, fax_id, sync_id, partner_id, provider, from_fax_number, recipient_fax_number, pages,
		pdf_doc_id, pdf_doc_name, pdf_url, tif_doc_id, tif_doc_name, processing_status, is_active, trashed,
		fax_created_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	now := time.Now().UTC()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.FaxID, rec.SyncID, rec.PartnerID, rec.Provider, rec.FromFaxNumber, rec.RecipientFaxNumber, rec.Pages,
		rec.PdfDocID, rec.PdfDocName, rec.PdfURL, rec.TifDocID, rec.TifDocName, rec.ProcessingStatus, rec.IsActive, rec.Trashed,
		rec.FaxCreatedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			r.logger.InfoContext(ctx, "Fax record already exists", "partner_id", rec.PartnerID, "fax_id", rec.FaxID)
			return domain.ErrDuplicateEntry
		}
		r.logger.ErrorContext(ctx, "Failed to insert fax record", "error", err, "partner_id", rec.PartnerID, "fax_id", rec.FaxID)
		return fmt.Errorf("inserting fax record %s: %w", rec.FaxID, err)
	}
	return nil
}

func (r *PgFaxRecordRepository) FindByFaxIDs(ctx context.Context, partnerID int64, faxIDs []string) ([]*domain.FaxRecord, error) {
	if len(faxIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + faxRecordColumns + ` FROM fax_details WHERE partner_id = $1 AND fax_id = ANY($2)`
	rows, err := r.db.Query(ctx, query, partnerID, faxIDs)
	if err != nil {
		return nil, fmt.Errorf("querying fax records by fax id: %w", err)
	}
	return collectFaxRecords(rows)
}

func (r *PgFaxRecordRepository) FindByFaxID(ctx context.Context, partnerID int64, faxID string) (*domain.FaxRecord, error) {
	query := `SELECT ` + faxRecordColumns + ` FROM fax_details WHERE partner_id = $1 AND fax_id = $2`
	rec, err := scanFaxRecord(r.db.QueryRow(ctx, query, partnerID, faxID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying fax record %s: %w", faxID, err)
	}
	return rec, nil
}

func (r *PgFaxRecordRepository) GetByID(ctx context.Context, partnerID int64, id uuid.UUID) (*domain.FaxRecord, error) {
	query := `SELECT ` + faxRecordColumns + ` FROM fax_details WHERE partner_id = $1 AND id = $2`
	rec, err := scanFaxRecord(r.db.QueryRow(ctx, query, partnerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying fax record by id: %w", err)
	}
	return rec, nil
}

func (r *PgFaxRecordRepository) UpdateProcessingStatus(ctx context.Context, partnerID int64, id uuid.UUID, status domain.ProcessingStatus, processingErr *string) error {
	query := `UPDATE fax_details SET processing_status = $1, processing_error = $2, updated_at = $3
		WHERE partner_id = $4 AND id = $5`
	tag, err := r.db.Exec(ctx, query, status, processingErr, time.Now().UTC(), partnerID, id)
	if err != nil {
		return fmt.Errorf("updating processing status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgFaxRecordRepository) UpdateFaxStatus(ctx context.Context, partnerID int64, id uuid.UUID, status domain.FaxStatus) error {
	now := time.Now().UTC()
	query := `UPDATE fax_details SET fax_status = $1, fax_status_date = $2, trashed = $3, updated_at = $2
		WHERE partner_id = $4 AND id = $5`
	tag, err := r.db.Exec(ctx, query, status, now, status == domain.FaxStatusTrash, partnerID, id)
	if err != nil {
		return fmt.Errorf("updating fax status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgFaxRecordRepository) ListFailedSince(ctx context.Context, since time.Time) ([]*domain.FaxRecord, error) {
	query := `SELECT ` + faxRecordColumns + ` FROM fax_details
		WHERE is_active = TRUE AND processing_status = $1 AND fax_created_at > $2
		ORDER BY fax_created_at`
	rows, err := r.db.Query(ctx, query, domain.ProcessingStatusFail, since)
	if err != nil {
		return nil, fmt.Errorf("querying failed fax records: %w", err)
	}
	return collectFaxRecords(rows)
}

func (r *PgFaxRecordRepository) List(ctx context.Context, filter domain.FaxListFilter) (*domain.FaxPage, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}

	where := []string{"partner_id = $1", "is_active = TRUE", "trashed = $2"}
	args := []any{filter.PartnerID, filter.Trashed}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		where = append(where, fmt.Sprintf("(fax_id ILIKE $%d OR from_fax_number ILIKE $%d)", len(args), len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM fax_details WHERE ` + whereClause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting fax records: %w", err)
	}

	listArgs := append(append([]any{}, args...), filter.Limit, (filter.Page-1)*filter.Limit)
	listQuery := fmt.Sprintf(`SELECT %s FROM fax_details WHERE %s ORDER BY fax_created_at DESC LIMIT $%d OFFSET $%d`,
		faxRecordColumns, whereClause, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, fmt.Errorf("listing fax records: %w", err)
	}
	records, err := collectFaxRecords(rows)
	if err != nil {
		return nil, err
	}

	return &domain.FaxPage{
		Records:    records,
		TotalCount: total,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

func (r *PgFaxRecordRepository) Deactivate(ctx context.Context, partnerID int64, ids []uuid.UUID, trash bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	var query string
	if trash {
		query = `UPDATE fax_details SET trashed = TRUE, fax_status = 'trash', fax_status_date = $1, updated_at = $1
			WHERE partner_id = $2 AND id = ANY($3) AND is_active = TRUE`
	} else {
		query = `UPDATE fax_details SET is_active = FALSE, fax_status = 'delete', fax_status_date = $1, updated_at = $1
			WHERE partner_id = $2 AND id = ANY($3) AND is_active = TRUE`
	}
	tag, err := r.db.Exec(ctx, query, now, partnerID, ids)
	if err != nil {
		return 0, fmt.Errorf("deactivating fax records: %w", err)
	}
	r.logger.InfoContext(ctx, "Fax records deactivated", "partner_id", partnerID, "trash", trash, "count", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func (r *PgFaxRecordRepository) CountActive(ctx context.Context, partnerID int64) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM fax_details WHERE partner_id = $1 AND is_active = TRUE`
	if err := r.db.QueryRow(ctx, query, partnerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting active faxes: %w", err)
	}
	return n, nil
}

// Analytics counts arrivals by created_at and status changes by fax_status_date,
// both over [from, to).
func (r *PgFaxRecordRepository) Analytics(ctx context.Context, partnerID int64, from, to time.Time) (*domain.FaxAnalytics, error) {
	query := `SELECT
		COUNT(*) FILTER (WHERE created_at >= $2 AND created_at < $3),
		COUNT(*) FILTER (WHERE fax_status = $4 AND fax_status_date >= $2 AND fax_status_date < $3),
		COUNT(*) FILTER (WHERE fax_status = $5 AND fax_status_date >= $2 AND fax_status_date < $3),
		COUNT(*) FILTER (WHERE fax_status = $6 AND fax_status_date >= $2 AND fax_status_date < $3),
		COALESCE(AVG(EXTRACT(EPOCH FROM (fax_status_date - created_at)) / 60)
			FILTER (WHERE fax_status IS NOT NULL AND fax_status_date >= $2 AND fax_status_date < $3), 0)::float8
		FROM fax_details WHERE partner_id = $1`

	var a domain.FaxAnalytics
	err := r.db.QueryRow(ctx, query, partnerID, from, to,
		domain.FaxStatusReferral, domain.FaxStatusSave, domain.FaxStatusDelete,
	).Scan(&a.Total, &a.Referral, &a.Saved, &a.Deleted, &a.AvgMinutesToAction)
	if err != nil {
		return nil, fmt.Errorf("querying fax analytics: %w", err)
	}
	return &a, nil
}

func scanFaxRecord(row pgx.Row) (*domain.FaxRecord, error) {
	var rec domain.FaxRecord
	var provider, status string
	var faxStatus *string
	err := row.Scan(
		&rec.ID, &rec.FaxID, &rec.SyncID, &rec.PartnerID, &provider, &rec.FromFaxNumber, &rec.RecipientFaxNumber, &rec.Pages,
		&rec.PdfDocID, &rec.PdfDocName, &rec.PdfURL, &rec.TifDocID, &rec.TifDocName, &status, &rec.ProcessingError,
		&rec.IsActive, &faxStatus, &rec.FaxStatusDate, &rec.Trashed, &rec.FaxCreatedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Provider = domain.ProviderType(provider)
	rec.ProcessingStatus = domain.ProcessingStatus(status)
	if faxStatus != nil {
		fs := domain.FaxStatus(*faxStatus)
		rec.FaxStatus = &fs
	}
	return &rec, nil
}

func collectFaxRecords(rows pgx.Rows) ([]*domain.FaxRecord, error) {
	defer rows.Close()
	var records []*domain.FaxRecord
	for rows.Next() {
		rec, err := scanFaxRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning fax record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fax records: %w", err)
	}
	return records, nil
}
