package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/faxsync/golang_services/internal/fax_sync_service/adapters/downstream"
	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// OutboundService accepts outbound fax requests, resolves their document and
// hands them to the router.
type OutboundService struct {
	router       *OutboundRouter
	outboundRepo domain.OutboundFaxRepository
	partners     PartnerDirectory
	documents    DocumentService
	referrals    ReferralService
	inbox        InboxService
	renderer     *TemplateRenderer
	logger       *slog.Logger
	now          func() time.Time
}

func NewOutboundService(
	router *OutboundRouter,
	outboundRepo domain.OutboundFaxRepository,
	partners PartnerDirectory,
	documents DocumentService,
	referrals ReferralService,
	inbox InboxService,
	renderer *TemplateRenderer,
	logger *slog.Logger,
) *OutboundService {
	return &OutboundService{
		router:       router,
		outboundRepo: outboundRepo,
		partners:     partners,
		documents:    documents,
		referrals:    referrals,
		inbox:        inbox,
		renderer:     renderer,
		logger:       logger.With("service", "fax_outbound"),
		now:          time.Now,
	}
}

// Send delivers one document to every recipient. The returned error is set only
// for invalid requests or when the PENDING rows cannot be written; send failures
// are reported in the SendResult.
func (s *OutboundService) Send(ctx context.Context, req domain.OutboundFaxRequest) (domain.SendResult, error) {
	if err := validateOutbound(req); err != nil {
		return domain.SendResult{}, err
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if err := s.createPending(ctx, req); err != nil {
		return domain.SendResult{}, err
	}

	pdf, partner, err := s.resolvePayload(ctx, req)
	if err != nil {
		s.logger.WarnContext(ctx, "Outbound payload could not be resolved", "error", err, "partner_id", req.PartnerID, "request_id", req.ID)
		result := domain.SendResult{Success: false, Error: err.Error()}
		s.router.Record(ctx, req, result)
		return result, nil
	}
	req.Payload.PDF = pdf

	result := s.router.Route(ctx, req)
	if result.Success && req.Payload.Template != "" {
		s.afterTemplateSend(ctx, req, partner, pdf)
	}
	return result, nil
}

func validateOutbound(req domain.OutboundFaxRequest) error {
	if len(req.RecipientNumbers) == 0 {
		return domain.ErrNoRecipients
	}
	for _, n := range req.RecipientNumbers {
		if strings.TrimSpace(n) == "" {
			return domain.ErrNoRecipients
		}
	}
	kinds := 0
	if len(req.Payload.PDF) > 0 {
		kinds++
	}
	if req.Payload.Document != nil {
		kinds++
	}
	if req.Payload.Template != "" {
		if req.Payload.Template.TemplateFile() == "" {
			return fmt.Errorf("%w: unknown template %q", domain.ErrInvalidPayload, req.Payload.Template)
		}
		kinds++
	}
	if kinds != 1 {
		return domain.ErrInvalidPayload
	}
	return nil
}

// createPending writes one PENDING row per recipient. Requests without correlation
// keys are not tracked.
func (s *OutboundService) createPending(ctx context.Context, req domain.OutboundFaxRequest) error {
	if req.Correlation.Empty() {
		return nil
	}
	var tmpl *domain.FaxTemplateType
	if req.Payload.Template != "" {
		t := req.Payload.Template
		tmpl = &t
	}
	now := s.now().UTC()
	for _, recipient := range req.RecipientNumbers {
		rec := &domain.OutboundFaxRecord{
			ID:                 uuid.New(),
			PartnerID:          req.PartnerID,
			AppointmentID:      req.Correlation.AppointmentID,
			PatientID:          req.Correlation.PatientID,
			ReferralID:         req.Correlation.ReferralID,
			RecipientFaxNumber: recipient,
			FaxTemplateType:    tmpl,
			FaxSendStatus:      domain.SendStatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.outboundRepo.Create(ctx, rec); err != nil {
			return fmt.Errorf("creating pending outbound row: %w", err)
		}
	}
	return nil
}

func (s *OutboundService) resolvePayload(ctx context.Context, req domain.OutboundFaxRequest) ([]byte, *domain.Partner, error) {
	p := req.Payload
	switch {
	case len(p.PDF) > 0:
		return p.PDF, nil, nil
	case p.Document != nil:
		pdf, err := s.documents.FetchDocument(ctx, req.PartnerID, *p.Document)
		if err != nil {
			return nil, nil, fmt.Errorf("fetching document %s: %w", p.Document.DocumentID, err)
		}
		return pdf, nil, nil
	default:
		partner, err := s.partners.GetPartner(ctx, req.PartnerID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading partner: %w", err)
		}
		pdf, err := s.renderer.Render(ctx, p.Template, partner, p.TemplateData)
		if err != nil {
			return nil, nil, err
		}
		return pdf, partner, nil
	}
}

// afterTemplateSend notifies collaborating services of a delivered template fax.
// Failures are logged and never change the send result.
func (s *OutboundService) afterTemplateSend(ctx context.Context, req domain.OutboundFaxRequest, partner *domain.Partner, pdf []byte) {
	tmpl := req.Payload.Template
	keys := req.Correlation
	logger := s.logger.With("partner_id", req.PartnerID, "template", tmpl, "request_id", req.ID)

	fileName := fmt.Sprintf("%s_%s.pdf", strings.ToLower(string(tmpl)), req.ID)
	if docID, err := s.documents.SaveFile(ctx, partner.ID, keys.PatientID, keys.ReferralID, fileName, pdf); err != nil {
		logger.ErrorContext(ctx, "Failed to save sent fax document", "error", err)
	} else {
		logger.InfoContext(ctx, "Sent fax document saved", "document_id", docID)
	}

	if keys.ReferralID == nil {
		return
	}
	switch tmpl {
	case domain.FaxTemplateReferralReceived, domain.FaxTemplateMissingItem, domain.FaxTemplateReferralDeclined:
		if err := s.referrals.Deactivate(ctx, partner.ID, keys.PatientID, *keys.ReferralID); err != nil {
			logger.ErrorContext(ctx, "Failed to update referral after fax", "error", err, "referral_id", *keys.ReferralID)
		}
	}
	if tmpl == domain.FaxTemplateReferralDeclined {
		if err := s.inbox.UpdateHL7Status(ctx, partner.ID, *keys.ReferralID, downstream.InboxStatusReportSent); err != nil {
			logger.ErrorContext(ctx, "Failed to update HL7 status after fax", "error", err, "referral_id", *keys.ReferralID)
		}
	}
}
