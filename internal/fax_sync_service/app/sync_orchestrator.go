package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/faxsync/golang_services/internal/fax_sync_service/adapters/blobstore"
	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/fax_sync_service/provider"
)

const tracerName = "github.com/faxsync/golang_services/internal/fax_sync_service/app"

// SyncConfig bounds the fan-out of a sync pass.
type SyncConfig struct {
	PartnerConcurrency int
	RecordConcurrency  int
	MaxCatchUp         time.Duration
}

// SyncOrchestrator pulls inbound faxes from every partner's providers and stores them.
type SyncOrchestrator struct {
	partners   PartnerDirectory
	providers  map[domain.ProviderType]provider.FaxProvider
	faxRepo    domain.FaxRecordRepository
	watermarks domain.WatermarkRepository
	blobs      BlobStore
	converter  DocumentConverter
	inbox      InboxService
	notifier   *Notifier
	toggles    FeatureToggles
	cfg        SyncConfig
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time
	inflight   singleflight.Group
}

func NewSyncOrchestrator(
	partners PartnerDirectory,
	providers []provider.FaxProvider,
	faxRepo domain.FaxRecordRepository,
	watermarks domain.WatermarkRepository,
	blobs BlobStore,
	converter DocumentConverter,
	inbox InboxService,
	notifier *Notifier,
	toggles FeatureToggles,
	cfg SyncConfig,
	logger *slog.Logger,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		partners:   partners,
		providers:  providerRegistry(providers),
		faxRepo:    faxRepo,
		watermarks: watermarks,
		blobs:      blobs,
		converter:  converter,
		inbox:      inbox,
		notifier:   notifier,
		toggles:    toggles,
		cfg:        cfg,
		logger:     logger.With("service", "fax_sync_orchestrator"),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
	}
}

func providerRegistry(list []provider.FaxProvider) map[domain.ProviderType]provider.FaxProvider {
	m := make(map[domain.ProviderType]provider.FaxProvider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return m
}

// RunSyncPass runs one pass over the selected partners. Only failures that stop
// the whole pass (bad window, partner listing) are returned; per-config and
// per-record failures are logged and reflected in the summary.
func (o *SyncOrchestrator) RunSyncPass(ctx context.Context, req domain.SyncRequest) (*domain.SyncSummary, error) {
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "fax_sync.RunSyncPass",
		trace.WithAttributes(attribute.String("sync.mode", string(req.Mode))))
	defer span.End()

	summary, err := o.runSyncPass(ctx, req)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	syncPassesCounter.WithLabelValues(string(req.Mode), status).Inc()
	syncPassDurationHist.WithLabelValues(string(req.Mode)).Observe(time.Since(started).Seconds())
	return summary, err
}

func (o *SyncOrchestrator) runSyncPass(ctx context.Context, req domain.SyncRequest) (*domain.SyncSummary, error) {
	var fixed *domain.SyncWindow
	switch req.Mode {
	case domain.SyncModeRealtime:
		// computed per combination from its watermark
	case domain.SyncModeOneDay:
		w := domain.OneDayWindow(o.now())
		fixed = &w
	case domain.SyncModeRange:
		w, err := domain.RangeWindow(req.Start, req.End)
		if err != nil {
			return nil, err
		}
		fixed = &w
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidWindow, req.Mode)
	}

	partners, err := o.loadPartners(ctx, req.PartnerID)
	if err != nil {
		return nil, err
	}

	syncID := uuid.New()
	summary := &domain.SyncSummary{Partners: len(partners)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(max(1, o.cfg.PartnerConcurrency))
	for _, partner := range partners {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := o.syncPartner(ctx, partner, req.Mode, fixed, syncID)
			mu.Lock()
			addSummary(summary, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	o.logger.InfoContext(ctx, "Sync pass finished",
		"mode", req.Mode, "sync_id", syncID, "partners", summary.Partners,
		"combinations", summary.Combinations, "fetched", summary.Fetched,
		"created", summary.Created, "existing", summary.Existing,
		"failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

func (o *SyncOrchestrator) loadPartners(ctx context.Context, partnerID *int64) ([]*domain.Partner, error) {
	if partnerID != nil {
		p, err := o.partners.GetPartner(ctx, *partnerID)
		if err != nil {
			return nil, fmt.Errorf("loading partner %d: %w", *partnerID, err)
		}
		return []*domain.Partner{p}, nil
	}
	partners, err := o.partners.ListPartners(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing partners: %w", err)
	}
	return partners, nil
}

func (o *SyncOrchestrator) syncPartner(ctx context.Context, partner *domain.Partner, mode domain.SyncMode, fixed *domain.SyncWindow, syncID uuid.UUID) domain.SyncSummary {
	var (
		mu    sync.Mutex
		total domain.SyncSummary
		g     errgroup.Group
	)
	configs := partner.ProviderConfigs()
	eligible := make([]domain.ProviderConfig, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.PullEnabled() {
			continue
		}
		if cfg.Provider() == domain.ProviderRingCentral && !o.toggles.RingCentralEnabled() {
			continue
		}
		eligible = append(eligible, cfg)
	}
	// Set before any worker starts; workers only touch total under mu.
	total.Combinations = len(eligible)
	for _, cfg := range eligible {
		g.Go(func() error {
			res := o.syncCombination(ctx, partner, cfg, mode, fixed, syncID)
			mu.Lock()
			addSummary(&total, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return total
}

type recordOutcome struct {
	rec      *domain.FaxRecord
	existing bool
	err      error
}

func (o *SyncOrchestrator) syncCombination(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, mode domain.SyncMode, fixed *domain.SyncWindow, syncID uuid.UUID) domain.SyncSummary {
	var res domain.SyncSummary
	ptype := cfg.Provider()
	logger := o.logger.With("partner_id", partner.ID, "provider", ptype, "config_id", cfg.ConfigID())

	ctx, span := o.tracer.Start(ctx, "fax_sync.combination", trace.WithAttributes(
		attribute.Int64("partner.id", partner.ID),
		attribute.String("fax.provider", string(ptype)),
		attribute.Int64("fax.config_id", cfg.ConfigID()),
	))
	defer span.End()

	skip := func(reason string, err error) domain.SyncSummary {
		combinationsSkippedCounter.WithLabelValues(string(ptype), reason).Inc()
		if err != nil {
			span.RecordError(err)
		}
		res.Skipped++
		return res
	}

	if err := cfg.CheckComplete(); err != nil {
		logger.WarnContext(ctx, "Skipping incomplete provider config", "error", err)
		return skip("incomplete", err)
	}
	if _, err := partner.Location(); err != nil {
		logger.WarnContext(ctx, "Skipping partner without a usable timezone", "error", err, "timezone", partner.Timezone)
		return skip("incomplete", err)
	}
	prov, ok := o.providers[ptype]
	if !ok {
		logger.WarnContext(ctx, "No adapter registered for provider")
		return skip("no_adapter", nil)
	}

	window := o.windowFor(ctx, logger, partner.ID, cfg, mode, fixed)

	fetchStarted := time.Now()
	raws, err := prov.FetchInboundBatch(ctx, partner, cfg, window)
	providerRequestDurationHist.WithLabelValues(string(ptype), "fetch_inbound").Observe(time.Since(fetchStarted).Seconds())
	if err != nil {
		logger.ErrorContext(ctx, "Inbound batch fetch failed", "error", err, "window", window.String())
		return skip("fetch_failed", err)
	}
	raws = dedupeRaw(raws)
	res.Fetched = len(raws)

	known := make(map[string]*domain.FaxRecord)
	if len(raws) > 0 {
		ids := make([]string, len(raws))
		for i, raw := range raws {
			ids[i] = raw.ProviderScopedID()
		}
		existing, err := o.faxRepo.FindByFaxIDs(ctx, partner.ID, ids)
		if err != nil {
			logger.ErrorContext(ctx, "Existing fax lookup failed", "error", err)
			return skip("lookup_failed", err)
		}
		for _, rec := range existing {
			known[rec.FaxID] = rec
		}
	}

	// Each worker owns one slot; the slots are merged after Wait.
	outcomes := make([]recordOutcome, len(raws))
	var g errgroup.Group
	g.SetLimit(max(1, o.cfg.RecordConcurrency))
	for i, raw := range raws {
		if rec, ok := known[raw.ProviderScopedID()]; ok {
			outcomes[i] = recordOutcome{rec: rec, existing: true}
			continue
		}
		g.Go(func() error {
			rec, existed, err := o.ingestOnce(ctx, partner, cfg, prov, raw, syncID)
			outcomes[i] = recordOutcome{rec: rec, existing: existed, err: err}
			return nil
		})
	}
	_ = g.Wait()

	entries := make([]domain.InboxFaxEntry, 0, len(raws))
	var firstFailed *time.Time
	for i, raw := range raws {
		out := outcomes[i]
		switch {
		case out.err != nil:
			if firstFailed == nil || raw.CreatedAt.Before(*firstFailed) {
				created := raw.CreatedAt
				firstFailed = &created
			}
			res.Failed++
			inboundRecordsCounter.WithLabelValues(string(ptype), "failed").Inc()
			logger.WarnContext(ctx, "Skipping fax record", "fax_id", raw.ProviderScopedID(), "error", out.err)
			continue
		case out.existing:
			res.Existing++
			inboundRecordsCounter.WithLabelValues(string(ptype), "existing").Inc()
		default:
			res.Created++
			inboundRecordsCounter.WithLabelValues(string(ptype), "created").Inc()
		}
		entries = append(entries, inboxEntry(out.rec, out.existing))
	}

	if err := o.inbox.ReportBatch(ctx, partner.ID, entries); err != nil {
		logger.ErrorContext(ctx, "Failed to report batch to inbox", "error", err, "entries", len(entries))
	}

	if mode == domain.SyncModeRealtime {
		end := watermarkEnd(window, firstFailed)
		if end.Before(window.End) {
			logger.WarnContext(ctx, "Holding sync watermark before failed record",
				"end", end, "window_end", window.End, "failed", res.Failed)
		}
		if err := o.watermarks.Advance(ctx, partner.ID, ptype, cfg.ConfigID(), end); err != nil {
			logger.WarnContext(ctx, "Failed to advance sync watermark", "error", err, "end", end)
		}
	}

	logger.InfoContext(ctx, "Provider batch synced", "window", window.String(),
		"fetched", res.Fetched, "created", res.Created, "existing", res.Existing, "failed", res.Failed)
	return res
}

// watermarkEnd is the instant the next REALTIME window may start from. A failed
// record pins it one minute before the record's minute so the following window
// still contains it under every provider's filter. The pin never moves below
// the window start; once it falls out of MaxCatchUp the record is abandoned.
func watermarkEnd(window domain.SyncWindow, firstFailed *time.Time) time.Time {
	if firstFailed == nil {
		return window.End
	}
	end := firstFailed.UTC().Truncate(time.Minute).Add(-time.Minute)
	if end.Before(window.Start) {
		end = window.Start
	}
	if end.After(window.End) {
		end = window.End
	}
	return end
}

func (o *SyncOrchestrator) windowFor(ctx context.Context, logger *slog.Logger, partnerID int64, cfg domain.ProviderConfig, mode domain.SyncMode, fixed *domain.SyncWindow) domain.SyncWindow {
	if mode != domain.SyncModeRealtime {
		return *fixed
	}
	lastEnd, err := o.watermarks.Get(ctx, partnerID, cfg.Provider(), cfg.ConfigID())
	if err != nil {
		logger.WarnContext(ctx, "Sync watermark unavailable, using nominal window", "error", err)
		lastEnd = nil
	}
	return domain.RealtimeWindow(o.now(), lastEnd, o.cfg.MaxCatchUp)
}

type ingestResult struct {
	rec     *domain.FaxRecord
	existed bool
}

// ingestOnce collapses concurrent ingestion of the same fax within this process.
func (o *SyncOrchestrator) ingestOnce(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, prov provider.FaxProvider, raw domain.RawFaxRecord, syncID uuid.UUID) (*domain.FaxRecord, bool, error) {
	key := fmt.Sprintf("%d/%s", partner.ID, raw.ProviderScopedID())
	v, err, _ := o.inflight.Do(key, func() (any, error) {
		rec, existed, err := o.ingest(ctx, partner, cfg, prov, raw, syncID)
		if err != nil {
			return nil, err
		}
		return ingestResult{rec: rec, existed: existed}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(ingestResult)
	return r.rec, r.existed, nil
}

func (o *SyncOrchestrator) ingest(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, prov provider.FaxProvider, raw domain.RawFaxRecord, syncID uuid.UUID) (*domain.FaxRecord, bool, error) {
	ptype := prov.Name()

	fetchStarted := time.Now()
	docs, err := prov.FetchDocuments(ctx, partner, cfg, raw)
	providerRequestDurationHist.WithLabelValues(string(ptype), "fetch_documents").Observe(time.Since(fetchStarted).Seconds())
	if err != nil {
		return nil, false, fmt.Errorf("fetching documents: %w", err)
	}
	if len(docs.PDF) == 0 {
		return nil, false, fmt.Errorf("%w: no pdf returned", domain.ErrProviderTransport)
	}

	pages := raw.Pages
	if pages == 0 {
		pages = docs.Pages
	}
	tiff := docs.TIFF
	if tiff == nil {
		converted, convertedPages, err := o.converter.ToTiff(ctx, docs.PDF)
		if err != nil {
			return nil, false, err
		}
		tiff = converted
		if pages == 0 {
			pages = convertedPages
		}
	}

	pdfID, tifID := uuid.New(), uuid.New()
	pdfKey := blobstore.FaxDocumentKey(partner.ID, pdfID, blobstore.ExtPDF)
	tifKey := blobstore.FaxDocumentKey(partner.ID, tifID, blobstore.ExtTIFF)
	pdfURL, err := o.blobs.Put(ctx, pdfKey, docs.PDF, blobstore.ContentTypePDF)
	if err != nil {
		return nil, false, fmt.Errorf("storing pdf: %w", err)
	}
	if _, err := o.blobs.Put(ctx, tifKey, tiff, blobstore.ContentTypeTIFF); err != nil {
		return nil, false, fmt.Errorf("storing tiff: %w", err)
	}

	now := o.now().UTC()
	rec := &domain.FaxRecord{
		ID:                 uuid.New(),
		FaxID:              raw.ProviderScopedID(),
		SyncID:             syncID,
		PartnerID:          partner.ID,
		Provider:           ptype,
		FromFaxNumber:      raw.FromNumber,
		RecipientFaxNumber: raw.ToNumber,
		Pages:              pages,
		PdfDocID:           pdfID,
		PdfDocName:         path.Base(pdfKey),
		PdfURL:             pdfURL,
		TifDocID:           tifID,
		TifDocName:         path.Base(tifKey),
		ProcessingStatus:   domain.ProcessingStatusProcessing,
		IsActive:           true,
		FaxCreatedAt:       raw.CreatedAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := o.faxRepo.Create(ctx, rec); err != nil {
		if !errors.Is(err, domain.ErrDuplicateEntry) {
			return nil, false, fmt.Errorf("persisting fax: %w", err)
		}
		stored, findErr := o.faxRepo.FindByFaxID(ctx, partner.ID, rec.FaxID)
		if findErr != nil {
			return nil, false, fmt.Errorf("reconciling duplicate fax: %w", findErr)
		}
		o.logger.InfoContext(ctx, "Fax stored concurrently, using existing row",
			"partner_id", partner.ID, "fax_id", rec.FaxID, "id", stored.ID)
		return stored, true, nil
	}

	if err := o.notifier.FaxPersisted(ctx, rec); err != nil {
		o.logger.ErrorContext(ctx, "Failed to publish persisted fax", "error", err, "partner_id", partner.ID, "id", rec.ID)
	}
	return rec, false, nil
}

func dedupeRaw(raws []domain.RawFaxRecord) []domain.RawFaxRecord {
	seen := make(map[string]struct{}, len(raws))
	out := raws[:0:0]
	for _, raw := range raws {
		id := raw.ProviderScopedID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, raw)
	}
	return out
}

func inboxEntry(rec *domain.FaxRecord, existing bool) domain.InboxFaxEntry {
	return domain.InboxFaxEntry{
		ID:                 rec.ID,
		FaxID:              rec.FaxID,
		SyncID:             rec.SyncID,
		FromFaxNumber:      rec.FromFaxNumber,
		RecipientFaxNumber: rec.RecipientFaxNumber,
		Pages:              rec.Pages,
		PdfDocID:           rec.PdfDocID,
		PdfURL:             rec.PdfURL,
		TifDocID:           rec.TifDocID,
		ProcessingStatus:   rec.ProcessingStatus,
		FaxCreatedAt:       rec.FaxCreatedAt.UTC().Format(time.RFC3339),
		Existing:           existing,
	}
}

func addSummary(dst *domain.SyncSummary, src domain.SyncSummary) {
	dst.Combinations += src.Combinations
	dst.Fetched += src.Fetched
	dst.Created += src.Created
	dst.Existing += src.Existing
	dst.Failed += src.Failed
	dst.Skipped += src.Skipped
}
