package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/fax_sync_service/provider"
)

// OutboundRouter picks exactly one provider per send and records the outcome.
type OutboundRouter struct {
	partners     PartnerDirectory
	providers    map[domain.ProviderType]provider.FaxProvider
	outboundRepo domain.OutboundFaxRepository
	notifier     *Notifier
	defaultSRFax *domain.SrFaxConfig
	toggles      FeatureToggles
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewOutboundRouter creates a router. defaultSRFax is the process-wide fallback
// account and may be nil.
func NewOutboundRouter(
	partners PartnerDirectory,
	providers []provider.FaxProvider,
	outboundRepo domain.OutboundFaxRepository,
	notifier *Notifier,
	defaultSRFax *domain.SrFaxConfig,
	toggles FeatureToggles,
	logger *slog.Logger,
) *OutboundRouter {
	return &OutboundRouter{
		partners:     partners,
		providers:    providerRegistry(providers),
		outboundRepo: outboundRepo,
		notifier:     notifier,
		defaultSRFax: defaultSRFax,
		toggles:      toggles,
		logger:       logger.With("component", "outbound_router"),
		tracer:       otel.Tracer(tracerName),
	}
}

// Resolve returns the config used for a partner's outbound faxes. Precedence:
// the explicit outgoing type and id, a usable RingCentral config, a complete
// SRFax config, then the default SRFax account.
func (r *OutboundRouter) Resolve(partner *domain.Partner) (domain.ProviderConfig, error) {
	if cfg := r.explicitConfig(partner); cfg != nil {
		return cfg, nil
	}
	if r.toggles.RingCentralEnabled() {
		for _, rc := range partner.RingCentralConfig {
			if rc.UsableForOutbound() {
				return rc, nil
			}
		}
	}
	for _, sr := range partner.SrFaxConfigs {
		if sr != nil && sr.CheckComplete() == nil {
			return sr, nil
		}
	}
	if r.defaultSRFax != nil && r.defaultSRFax.CheckComplete() == nil {
		return r.defaultSRFax, nil
	}
	return nil, fmt.Errorf("%w: no outbound provider for partner %d", domain.ErrConfigIncomplete, partner.ID)
}

func (r *OutboundRouter) explicitConfig(p *domain.Partner) domain.ProviderConfig {
	if p.OutgoingFaxID == nil {
		return nil
	}
	id := *p.OutgoingFaxID
	switch p.OutgoingFaxType {
	case domain.OutgoingFaxTypeSRFax:
		for _, c := range p.SrFaxConfigs {
			if c != nil && c.ID == id && c.CheckComplete() == nil {
				return c
			}
		}
	case domain.OutgoingFaxTypeRingCentral:
		if !r.toggles.RingCentralEnabled() {
			return nil
		}
		for _, c := range p.RingCentralConfig {
			if c != nil && c.ID == id && c.UsableForOutbound() {
				return c
			}
		}
	case domain.OutgoingFaxTypeUniteFax:
		for _, c := range p.UniteFaxConfigs {
			if c != nil && c.ID == id && c.CheckComplete() == nil {
				return c
			}
		}
	}
	return nil
}

// Route sends req.Payload.PDF through the resolved provider, then records the result.
func (r *OutboundRouter) Route(ctx context.Context, req domain.OutboundFaxRequest) domain.SendResult {
	ctx, span := r.tracer.Start(ctx, "fax_sync.Route", trace.WithAttributes(
		attribute.Int64("partner.id", req.PartnerID),
		attribute.Int("fax.recipients", len(req.RecipientNumbers)),
	))
	defer span.End()

	result := r.send(ctx, req)
	span.SetAttributes(attribute.String("fax.provider", string(result.Provider)))
	if !result.Success {
		span.SetStatus(codes.Error, result.Error)
	}
	r.Record(ctx, req, result)
	return result
}

func (r *OutboundRouter) send(ctx context.Context, req domain.OutboundFaxRequest) domain.SendResult {
	fail := func(err error) domain.SendResult {
		r.logger.WarnContext(ctx, "Outbound fax not sent", "partner_id", req.PartnerID, "error", err)
		return domain.SendResult{Success: false, Error: err.Error()}
	}
	if len(req.Payload.PDF) == 0 {
		return fail(domain.ErrInvalidPayload)
	}
	partner, err := r.partners.GetPartner(ctx, req.PartnerID)
	if err != nil {
		return fail(fmt.Errorf("loading partner: %w", err))
	}
	cfg, err := r.Resolve(partner)
	if err != nil {
		return fail(err)
	}
	prov, ok := r.providers[cfg.Provider()]
	if !ok {
		return fail(fmt.Errorf("no adapter for provider %s", cfg.Provider()))
	}

	doc := domain.OutboundDocument{FileName: req.ID.String() + ".pdf", PDF: req.Payload.PDF}
	started := time.Now()
	result := prov.SendOutbound(ctx, partner, cfg, doc, req.RecipientNumbers)
	providerRequestDurationHist.WithLabelValues(string(cfg.Provider()), "send").Observe(time.Since(started).Seconds())
	result.Provider = cfg.Provider()

	r.logger.InfoContext(ctx, "Outbound fax routed",
		"partner_id", req.PartnerID, "provider", result.Provider, "config_id", cfg.ConfigID(),
		"recipients", len(req.RecipientNumbers), "success", result.Success, "message_id", result.ProviderMessageID)
	return result
}

// Record persists result on every recipient's PENDING row and publishes the outcome.
func (r *OutboundRouter) Record(ctx context.Context, req domain.OutboundFaxRequest, result domain.SendResult) {
	if !req.Correlation.Empty() {
		for _, recipient := range req.RecipientNumbers {
			if _, err := r.outboundRepo.UpdateSendStatus(ctx, req.PartnerID, req.Correlation, recipient, result); err != nil {
				r.logger.ErrorContext(ctx, "Failed to record outbound send status",
					"error", err, "partner_id", req.PartnerID, "recipient", recipient)
			}
		}
	}

	status := "success"
	if !result.Success {
		status = "fail"
	}
	outboundSendsCounter.WithLabelValues(string(result.Provider), status).Inc()

	note := domain.FaxOutboundNotification{
		PartnerID:     req.PartnerID,
		AppointmentID: req.Correlation.AppointmentID,
		PatientID:     req.Correlation.PatientID,
		ReferralID:    req.Correlation.ReferralID,
		ProviderID:    result.Provider,
		Recipients:    req.RecipientNumbers,
		IsFaxSent:     result.Success,
		Error:         result.Error,
	}
	if req.Payload.Document != nil {
		note.DocID = req.Payload.Document.DocumentID
	}
	r.notifier.FaxOutbound(ctx, note)
}
