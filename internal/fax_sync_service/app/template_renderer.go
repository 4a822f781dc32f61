package app

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/cbroglie/mustache"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// TemplateRenderer turns a stored HTML fax template into a PDF.
type TemplateRenderer struct {
	blobs     BlobStore
	converter DocumentConverter
	folder    string
	logger    *slog.Logger
}

func NewTemplateRenderer(blobs BlobStore, converter DocumentConverter, folder string, logger *slog.Logger) *TemplateRenderer {
	return &TemplateRenderer{
		blobs:     blobs,
		converter: converter,
		folder:    folder,
		logger:    logger.With("component", "template_renderer"),
	}
}

// Render fills tmpl with data plus the partner's name and contact details.
// Keys already present in data win over partner defaults.
func (t *TemplateRenderer) Render(ctx context.Context, tmpl domain.FaxTemplateType, partner *domain.Partner, data map[string]any) ([]byte, error) {
	file := tmpl.TemplateFile()
	if file == "" {
		return nil, fmt.Errorf("%w: unknown template %q", domain.ErrInvalidPayload, tmpl)
	}
	key := path.Join(t.folder, file)
	raw, err := t.blobs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading template %s: %w", key, err)
	}

	html, err := mustache.Render(string(raw), templateView(partner, data))
	if err != nil {
		return nil, fmt.Errorf("rendering template %s: %w", key, err)
	}
	pdf, err := t.converter.RenderToPdf(ctx, []byte(html))
	if err != nil {
		return nil, err
	}
	t.logger.DebugContext(ctx, "Template rendered", "partner_id", partner.ID, "template", tmpl, "bytes", len(pdf))
	return pdf, nil
}

func templateView(partner *domain.Partner, data map[string]any) map[string]any {
	name := partner.FullName
	if name == "" {
		name = partner.Name
	}
	view := map[string]any{
		"clinicName":       name,
		"partnerEmail":     partner.ContactDetail.EmailAddress,
		"partnerFaxNumber": partner.ContactDetail.FaxNumber,
		"partnerPhone":     partner.ContactDetail.PhoneNumber,
	}
	for k, v := range data {
		view[k] = v
	}
	return view
}
