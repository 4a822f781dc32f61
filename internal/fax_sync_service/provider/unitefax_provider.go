package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hooklift/gowsdl/soap"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/httpretry"
)

const uniteFaxResultLimit = 500

type uniteAuthentication struct {
	Login    string `xml:"Login"`
	Password string `xml:"Password"`
}

type uniteQueryReceiveFax struct {
	XMLName xml.Name                  `xml:"QueryReceiveFax"`
	Input   uniteQueryReceiveFaxInput `xml:"QueryReceiveFaxInput"`
}

type uniteQueryReceiveFaxInput struct {
	Authentication uniteAuthentication `xml:"Authentication"`
	DatetimeAfter  string              `xml:"DatetimeAfter"`
	DatetimeBefore string              `xml:"DatetimeBefore"`
	ResultLimit    int                 `xml:"ResultLimit,omitempty"`
}

type uniteFaxInfo struct {
	FaxID        string `xml:"FaxId"`
	CallerNumber string `xml:"CallerNumber"`
	CalleeNumber string `xml:"CalleeNumber"`
	Pages        int    `xml:"Pages"`
	CreateTime   string `xml:"CreateTime"`
}

// The response wrapper element name differs between UniteFax deployments, so
// response types carry no XMLName.
type uniteQueryReceiveFaxResponse struct {
	Output struct {
		FaxInfo []uniteFaxInfo `xml:"FaxInfo"`
	} `xml:"QueryReceiveFaxOutput"`
}

type uniteSendFax struct {
	XMLName xml.Name          `xml:"SendFax"`
	Input   uniteSendFaxInput `xml:"SendFaxInput"`
}

type uniteSendFaxInput struct {
	Authentication uniteAuthentication `xml:"Authentication"`
	FaxRecipient   struct {
		FaxNumber string `xml:"FaxNumber"`
	} `xml:"FaxRecipient"`
	Attachment struct {
		ContentType       string `xml:"ContentType"`
		FileName          string `xml:"FileName"`
		AttachmentContent string `xml:"AttachmentContent"`
	} `xml:"Attachment"`
}

type uniteSendFaxResponse struct {
	Output struct {
		FaxID string `xml:"FaxId"`
	} `xml:"SendFaxOutput"`
}

type UniteFaxProvider struct {
	logger     *slog.Logger
	httpClient *http.Client
	client     *httpretry.Client
	pdfURL     string
	timeout    time.Duration

	soapClients sync.Map // endpoint URL -> *soap.Client
}

func NewUniteFaxProvider(logger *slog.Logger, pdfURL string, httpClient *http.Client, policy httpretry.Policy) *UniteFaxProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &UniteFaxProvider{
		logger:     logger.With("provider", "unitefax"),
		httpClient: httpClient,
		client:     httpretry.New(httpClient, policy),
		pdfURL:     pdfURL,
		timeout:    httpClient.Timeout,
	}
}

func (p *UniteFaxProvider) Name() domain.ProviderType { return domain.ProviderUniteFax }

func (p *UniteFaxProvider) soapClient(endpoint string) *soap.Client {
	if c, ok := p.soapClients.Load(endpoint); ok {
		return c.(*soap.Client)
	}
	opts := []soap.Option{soap.WithHTTPClient(p.httpClient)}
	if p.timeout > 0 {
		opts = append(opts, soap.WithTimeout(p.timeout))
	}
	c, _ := p.soapClients.LoadOrStore(endpoint, soap.NewClient(endpoint, opts...))
	return c.(*soap.Client)
}

func (p *UniteFaxProvider) FetchInboundBatch(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, window domain.SyncWindow) ([]domain.RawFaxRecord, error) {
	ufCfg, err := asUniteFaxConfig(cfg)
	if err != nil {
		return nil, err
	}

	req := uniteQueryReceiveFax{Input: uniteQueryReceiveFaxInput{
		Authentication: uniteAuthentication{Login: ufCfg.Username, Password: ufCfg.Password},
		DatetimeAfter:  window.Start.UTC().Format(time.RFC3339),
		DatetimeBefore: window.End.UTC().Format(time.RFC3339),
		ResultLimit:    uniteFaxResultLimit,
	}}
	var resp uniteQueryReceiveFaxResponse
	if err := p.soapClient(ufCfg.URL).CallContext(ctx, "QueryReceiveFax", &req, &resp); err != nil {
		return nil, fmt.Errorf("%w: unitefax QueryReceiveFax for partner %d: %v", domain.ErrProviderTransport, partner.ID, err)
	}

	var records []domain.RawFaxRecord
	for _, info := range resp.Output.FaxInfo {
		if info.FaxID == "" {
			continue
		}
		createdAt, err := parseUniteFaxTime(info.CreateTime)
		if err != nil {
			p.logger.WarnContext(ctx, "Skipping UniteFax entry with unparseable time", "partner_id", partner.ID, "fax_id", info.FaxID, "error", err)
			continue
		}
		if !window.Contains(createdAt) {
			continue
		}
		records = append(records, domain.RawFaxRecord{
			Provider:    domain.ProviderUniteFax,
			NativeID:    fmt.Sprintf("%d_%s", ufCfg.ID, info.FaxID),
			FromNumber:  info.CallerNumber,
			ToNumber:    info.CalleeNumber,
			Pages:       info.Pages,
			CreatedAt:   createdAt,
			DocumentRef: info.FaxID,
		})
	}
	p.logger.DebugContext(ctx, "UniteFax inbox fetched", "partner_id", partner.ID, "config_id", ufCfg.ID, "listed", len(resp.Output.FaxInfo), "in_window", len(records))
	return records, nil
}

func (p *UniteFaxProvider) FetchDocuments(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, raw domain.RawFaxRecord) (*domain.Documents, error) {
	ufCfg, err := asUniteFaxConfig(cfg)
	if err != nil {
		return nil, err
	}

	var form bytes.Buffer
	w := multipart.NewWriter(&form)
	for _, f := range [][2]string{
		{"FaxId", raw.DocumentRef},
		{"FaxContentType", "pdf"},
		{"username", ufCfg.Username},
		{"password", ufCfg.Password},
		{"url", ufCfg.URL},
	} {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("building unitefax pdf request: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("building unitefax pdf request: %w", err)
	}
	payload, contentType := form.Bytes(), w.FormDataContentType()

	body, err := p.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.pdfURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: unitefax pdf link for %s: %v", domain.ErrProviderTransport, raw.NativeID, err)
	}
	var link struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &link); err != nil || link.URL == "" {
		return nil, fmt.Errorf("%w: unitefax pdf link for %s missing", domain.ErrProviderTransport, raw.NativeID)
	}

	pdf, err := p.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: downloading unitefax pdf %s: %v", domain.ErrProviderTransport, raw.NativeID, err)
	}
	return &domain.Documents{PDF: pdf, Pages: raw.Pages}, nil
}

func (p *UniteFaxProvider) SendOutbound(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, doc domain.OutboundDocument, recipients []string) domain.SendResult {
	res := domain.SendResult{Provider: domain.ProviderUniteFax}
	ufCfg, err := asUniteFaxConfig(cfg)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.SenderFaxNumber = ufCfg.Username
	if len(recipients) == 0 {
		res.Error = domain.ErrNoRecipients.Error()
		return res
	}

	req := uniteSendFax{}
	req.Input.Authentication = uniteAuthentication{Login: ufCfg.Username, Password: ufCfg.Password}
	req.Input.FaxRecipient.FaxNumber = strings.Join(recipients, ",")
	req.Input.Attachment.ContentType = "application/pdf"
	req.Input.Attachment.FileName = doc.FileName
	req.Input.Attachment.AttachmentContent = base64.StdEncoding.EncodeToString(doc.PDF)

	var resp uniteSendFaxResponse
	if err := p.soapClient(ufCfg.URL).CallContext(ctx, "SendFax", &req, &resp); err != nil {
		p.logger.ErrorContext(ctx, "UniteFax send failed", "partner_id", partner.ID, "recipients", len(recipients), "error", err)
		res.Error = fmt.Sprintf("%s: %v", domain.ErrProviderTransport, err)
		return res
	}
	res.Success = true
	res.ProviderMessageID = resp.Output.FaxID
	p.logger.InfoContext(ctx, "UniteFax fax sent", "partner_id", partner.ID, "provider_msg_id", res.ProviderMessageID)
	return res
}

func asUniteFaxConfig(cfg domain.ProviderConfig) (*domain.UniteFaxConfig, error) {
	ufCfg, ok := cfg.(*domain.UniteFaxConfig)
	if !ok || ufCfg == nil {
		return nil, fmt.Errorf("unitefax provider given %T config", cfg)
	}
	return ufCfg, nil
}

func parseUniteFaxTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
