package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/database"
)

type PgWatermarkRepository struct {
	db     database.DBTX
	logger *slog.Logger
}

func NewPgWatermarkRepository(db database.DBTX, logger *slog.Logger) domain.WatermarkRepository {
	return &PgWatermarkRepository{db: db, logger: logger.With("component", "watermark_repository_pg")}
}

// Get returns nil without error when no watermark has been recorded yet.
func (r *PgWatermarkRepository) Get(ctx context.Context, partnerID int64, provider domain.ProviderType, configID int64) (*time.Time, error) {
	var lastEnd time.Time
	err := r.db.QueryRow(ctx,
		`SELECT last_end FROM fax_sync_watermarks WHERE partner_id = $1 AND provider = $2 AND config_id = $3`,
		partnerID, provider, configID,
	).Scan(&lastEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying sync watermark: %w", err)
	}
	return &lastEnd, nil
}

// Advance never moves a watermark backwards.
func (r *PgWatermarkRepository) Advance(ctx context.Context, partnerID int64, provider domain.ProviderType, configID int64, end time.Time) error {
	query := `INSERT INTO fax_sync_watermarks (partner_id, provider, config_id, last_end, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (partner_id, provider, config_id)
		DO UPDATE SET last_end = GREATEST(fax_sync_watermarks.last_end, EXCLUDED.last_end), updated_at = NOW()`
	if _, err := r.db.Exec(ctx, query, partnerID, provider, configID, end.UTC()); err != nil {
		return fmt.Errorf("advancing sync watermark: %w", err)
	}
	return nil
}
