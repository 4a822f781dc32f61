package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

type SyncRunner interface {
	RunSyncPass(ctx context.Context, req domain.SyncRequest) (*domain.SyncSummary, error)
}

type OutboundSender interface {
	Send(ctx context.Context, req domain.OutboundFaxRequest) (domain.SendResult, error)
}

type FaxManager interface {
	List(ctx context.Context, filter domain.FaxListFilter) (*domain.FaxPage, error)
	Deactivate(ctx context.Context, partnerID int64, ids []uuid.UUID, trash bool) (int64, error)
	UpdateStatus(ctx context.Context, report domain.FaxStatusReport) error
	Retry(ctx context.Context, partnerID int64, id uuid.UUID) error
	CountActive(ctx context.Context, partnerID int64) (int64, error)
	Analytics(ctx context.Context, partnerID int64, from, to time.Time) (*domain.FaxAnalytics, error)
}

// FaxUploader stores faxes that did not come from a provider sync.
type FaxUploader interface {
	Upload(ctx context.Context, partnerID int64, up domain.FaxUpload) (*domain.FaxRecord, error)
	RegisterStored(ctx context.Context, partnerID int64, cb domain.FaxUploadCallback) error
}

const maxUploadBytes = 32 << 20

// Pinger reports database reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type FaxHandler struct {
	sync     SyncRunner
	outbound OutboundSender
	faxes    FaxManager
	uploads  FaxUploader
	validate *validator.Validate
	logger   *slog.Logger
}

func NewFaxHandler(sync SyncRunner, outbound OutboundSender, faxes FaxManager, uploads FaxUploader, validate *validator.Validate, logger *slog.Logger) *FaxHandler {
	return &FaxHandler{
		sync:     sync,
		outbound: outbound,
		faxes:    faxes,
		uploads:  uploads,
		validate: validate,
		logger:   logger.With("component", "http_handler"),
	}
}

// NewRouter mounts the internal API. Everything under /v1 requires a service token.
func NewRouter(h *FaxHandler, jwtSecret []byte, db Pinger, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "Health check failed", "error", err)
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(ServiceAuth(jwtSecret, logger))
		r.Post("/sync", h.TriggerSync)
		r.Route("/partners/{partnerID}/faxes", func(r chi.Router) {
			r.Get("/", h.ListFaxes)
			r.Delete("/", h.DeactivateFaxes)
			r.Post("/outbound", h.SendFax)
			r.Post("/upload", h.UploadFax)
			r.Post("/upload/callback", h.UploadCallback)
			r.Get("/count", h.CountFaxes)
			r.Get("/analytics", h.FaxAnalytics)
			r.Post("/{id}/retry", h.RetryFax)
			r.Patch("/{id}/status", h.UpdateFaxStatus)
		})
	})
	return r
}

func (h *FaxHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var dto SyncRequestDTO
	if !h.decodeAndValidate(w, r, &dto) {
		return
	}

	req := domain.SyncRequest{Mode: domain.SyncMode(dto.Mode), PartnerID: dto.PartnerID}
	if dto.Start != nil {
		req.Start = *dto.Start
	}
	if dto.End != nil {
		req.End = *dto.End
	}

	h.logger.InfoContext(ctx, "Manual sync requested", "mode", req.Mode, "caller", ctx.Value(CallerContextKey))
	summary, err := h.sync.RunSyncPass(ctx, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, SyncSummaryDTO(*summary))
}

func (h *FaxHandler) SendFax(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.partnerID(w, r)
	if !ok {
		return
	}
	var dto SendFaxRequestDTO
	if !h.decodeAndValidate(w, r, &dto) {
		return
	}

	req := dto.toDomain(partnerID)
	result, err := h.outbound.Send(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, h.logger, status, SendResultDTO{
		RequestID:         req.ID,
		Success:           result.Success,
		Provider:          string(result.Provider),
		SenderFaxNumber:   result.SenderFaxNumber,
		ProviderMessageID: result.ProviderMessageID,
		Error:             result.Error,
	})
}

func (h *FaxHandler) ListFaxes(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.partnerID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	trashed, _ := strconv.ParseBool(q.Get("trashed"))

	result, err := h.faxes.List(r.Context(), domain.FaxListFilter{
		PartnerID: partnerID,
		Trashed:   trashed,
		Search:    q.Get("search"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dto := FaxPageDTO{Data: make([]FaxDTO, 0, len(result.Records)), TotalCount: result.TotalCount, TotalPages: result.TotalPages, Page: max(page, 1)}
	for _, rec := range result.Records {
		dto.Data = append(dto.Data, toFaxDTO(rec))
	}
	writeJSON(w, h.logger, http.StatusOK, dto)
}

func (h *FaxHandler) DeactivateFaxes(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.partnerID(w, r)
	if !ok {
		return
	}
	var dto DeactivateRequestDTO
	if !h.decodeAndValidate(w, r, &dto) {
		return
	}
	n, err := h.faxes.Deactivate(r.Context(), partnerID, dto.IDs, dto.Trash)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, DeactivateResponseDTO{Updated: n})
}

func (h *FaxHandler) RetryFax(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.partnerID(w, r)
	if !ok {
		return
	}
	id, ok := h.faxID(w, r)
	if !ok {
		return
	}
	if err := h.faxes.Retry(r.Context(), partnerID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *FaxHandler) UpdateFaxStatus(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.partnerID(w, r)
	if !ok {
		return
	}
	id, ok := h.faxID(w, r)
	if !ok {
		return
	}
	var dto StatusUpdateDTO
	if !h.decodeAndValidate(w, r, &dto) {
		return
	}

	report := domain.FaxStatusReport{
		PartnerID: partnerID,
		ID:        id,
		Status:    domain.ProcessingStatus(dto.Status),
		Error:     dto.Error,
	}
	if dto.FaxStatus != nil {
		fs := domain.FaxStatus(*dto.FaxStatus)
		report.FaxStatus = &fs
	}
	if err := h.faxes.UpdateStatus(r.Context(), report); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadFax accepts a multipart form with the PDF in the "document" field.
func (h *FaxHandler) UploadFax(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.partnerID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.logger.WarnContext(ctx, "Failed to parse upload form", "error", err)
		jsonError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("document")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "document file is required")
		return
	}
	defer file.Close()
	pdf, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("reading upload: %w", err))
		return
	}

	up := domain.FaxUpload{
		PDF:                pdf,
		FromFaxNumber:      r.FormValue("fromFaxNumber"),
		RecipientFaxNumber: r.FormValue("recipientFaxNumber"),
	}
	if v := r.FormValue("createdAt"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "createdAt must be RFC3339")
			return
		}
		up.CreatedAt = &at
	}

	rec, err := h.uploads.Upload(ctx, partnerID, up)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, toFaxDTO(rec))
}

func (h *FaxHandler) UploadCallback(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.partnerID(w, r)
	if !ok {
		return
	}
	var dto UploadCallbackDTO
	if !h.decodeAndValidate(w, r, &dto) {
		return
	}
	err := h.uploads.RegisterStored(r.Context(), partnerID, domain.FaxUploadCallback{
		BucketFilePath:     dto.BucketFilePath,
		DocumentID:         dto.DocumentID,
		FileURL:            dto.FileURL,
		FromFaxNumber:      dto.FromFaxNumber,
		RecipientFaxNumber: dto.RecipientFaxNumber,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *FaxHandler) CountFaxes(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.partnerID(w, r)
	if !ok {
		return
	}
	n, err := h.faxes.CountActive(r.Context(), partnerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, FaxCountDTO{Count: n})
}

// FaxAnalytics takes start and end as RFC3339 query parameters.
func (h *FaxHandler) FaxAnalytics(w http.ResponseWriter, r *http.Request) {
	partnerID, ok := h.partnerID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "end must be RFC3339")
		return
	}
	a, err := h.faxes.Analytics(r.Context(), partnerID, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, FaxAnalyticsDTO{
		AllFaxCount:         a.Total,
		ReferralCount:       a.Referral,
		SaveCount:           a.Saved,
		DeleteCount:         a.Deleted,
		AvgMinutesToProcess: a.AvgMinutesToAction,
	})
}

func (h *FaxHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(ctx, "Failed to decode request body", "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.StructCtx(ctx, dst); err != nil {
		h.logger.WarnContext(ctx, "Request validation failed", "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return false
	}
	return true
}

func (h *FaxHandler) partnerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "partnerID"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid partner id")
		return 0, false
	}
	return id, true
}

func (h *FaxHandler) faxID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid fax id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *FaxHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateEntry):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotPDF):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrNoRecipients),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidStatus):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		jsonError(w, status, "internal server error")
		return
	}
	h.logger.WarnContext(r.Context(), "Request rejected", "path", r.URL.Path, "status", status, "error", err)
	jsonError(w, status, err.Error())
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}
