package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/httpretry"
)

type RingCentralProvider struct {
	logger  *slog.Logger
	client  *httpretry.Client
	tokens  *TokenManager
	baseURL string
}

func NewRingCentralProvider(logger *slog.Logger, baseURL string, tokens *TokenManager, httpClient *http.Client, policy httpretry.Policy) *RingCentralProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RingCentralProvider{
		logger:  logger.With("provider", "ringcentral"),
		client:  httpretry.New(httpClient, policy),
		tokens:  tokens,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type rcPhone struct {
	PhoneNumber string `json:"phoneNumber"`
}

type rcAttachment struct {
	ID          int64  `json:"id"`
	URI         string `json:"uri"`
	ContentType string `json:"contentType"`
}

type rcMessage struct {
	ID           int64          `json:"id"`
	CreationTime time.Time      `json:"creationTime"`
	From         rcPhone        `json:"from"`
	To           []rcPhone      `json:"to"`
	FaxPageCount int            `json:"faxPageCount"`
	Attachments  []rcAttachment `json:"attachments"`
}

type rcMessageList struct {
	Records []rcMessage `json:"records"`
}

type rcSendRequest struct {
	To []rcPhone `json:"to"`
}

type rcSendResponse struct {
	ID            int64   `json:"id"`
	MessageStatus string  `json:"messageStatus"`
	From          rcPhone `json:"from"`
}

func (p *RingCentralProvider) Name() domain.ProviderType { return domain.ProviderRingCentral }

func (p *RingCentralProvider) FetchInboundBatch(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, window domain.SyncWindow) ([]domain.RawFaxRecord, error) {
	rcCfg, err := asRingCentralConfig(cfg)
	if err != nil {
		return nil, err
	}
	token, err := p.tokens.AccessToken(ctx, partner.ID, rcCfg)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"messageType": {"Fax"},
		"direction":   {"Inbound"},
		"dateFrom":    {window.Start.Add(-time.Minute).UTC().Format(time.RFC3339)},
		"dateTo":      {window.End.Add(time.Minute).UTC().Format(time.RFC3339)},
		"perPage":     {"1000"},
	}
	listURL := p.baseURL + "/account/~/extension/~/message-store?" + q.Encode()
	body, err := p.client.Do(ctx, bearerGet(listURL, token))
	if err != nil {
		return nil, fmt.Errorf("%w: ringcentral message-store for partner %d: %v", domain.ErrProviderTransport, partner.ID, err)
	}
	var list rcMessageList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: decoding ringcentral message list: %v", domain.ErrProviderTransport, err)
	}

	var records []domain.RawFaxRecord
	for _, msg := range list.Records {
		// Acceptance is decided on minute granularity.
		if !window.Contains(msg.CreationTime.UTC().Truncate(time.Minute)) {
			continue
		}
		if len(msg.Attachments) == 0 {
			p.logger.WarnContext(ctx, "RingCentral fax without attachment", "partner_id", partner.ID, "message_id", msg.ID)
			continue
		}
		var to string
		if len(msg.To) > 0 {
			to = trimNorthAmericanPrefix(msg.To[0].PhoneNumber)
		}
		att := msg.Attachments[0]
		ref := att.URI
		if ref == "" {
			ref = fmt.Sprintf("%s/account/~/extension/~/message-store/%d/content/%d", p.baseURL, msg.ID, att.ID)
		}
		records = append(records, domain.RawFaxRecord{
			Provider:    domain.ProviderRingCentral,
			NativeID:    strconv.FormatInt(msg.ID, 10),
			FromNumber:  trimNorthAmericanPrefix(msg.From.PhoneNumber),
			ToNumber:    to,
			Pages:       msg.FaxPageCount,
			CreatedAt:   msg.CreationTime.UTC(),
			DocumentRef: ref,
			AccessToken: token,
		})
	}
	p.logger.DebugContext(ctx, "RingCentral message store fetched", "partner_id", partner.ID, "listed", len(list.Records), "in_window", len(records))
	return records, nil
}

func (p *RingCentralProvider) FetchDocuments(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, raw domain.RawFaxRecord) (*domain.Documents, error) {
	rcCfg, err := asRingCentralConfig(cfg)
	if err != nil {
		return nil, err
	}
	token := raw.AccessToken
	if token == "" {
		if token, err = p.tokens.AccessToken(ctx, partner.ID, rcCfg); err != nil {
			return nil, err
		}
	}
	pdf, err := p.client.Do(ctx, bearerGet(raw.DocumentRef, token))
	if err != nil {
		return nil, fmt.Errorf("%w: ringcentral attachment %s: %v", domain.ErrProviderTransport, raw.NativeID, err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: ringcentral attachment %s is empty", domain.ErrProviderTransport, raw.NativeID)
	}
	return &domain.Documents{PDF: pdf, Pages: raw.Pages}, nil
}

func (p *RingCentralProvider) SendOutbound(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, doc domain.OutboundDocument, recipients []string) domain.SendResult {
	res := domain.SendResult{Provider: domain.ProviderRingCentral}
	rcCfg, err := asRingCentralConfig(cfg)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if len(recipients) == 0 {
		res.Error = domain.ErrNoRecipients.Error()
		return res
	}
	token, err := p.tokens.AccessToken(ctx, partner.ID, rcCfg)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	payload, contentType, err := buildRingCentralFax(doc, recipients)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	sendURL := p.baseURL + "/account/~/extension/~/fax"
	body, err := p.client.DoOnce(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "RingCentral send fax failed", "partner_id", partner.ID, "recipients", len(recipients), "error", err)
		res.Error = fmt.Sprintf("%s: %v", domain.ErrProviderTransport, err)
		return res
	}

	var sent rcSendResponse
	if err := json.Unmarshal(body, &sent); err != nil {
		p.logger.WarnContext(ctx, "RingCentral accepted fax but response was unreadable", "partner_id", partner.ID, "error", err)
	}
	res.Success = true
	if sent.ID != 0 {
		res.ProviderMessageID = strconv.FormatInt(sent.ID, 10)
	}
	res.SenderFaxNumber = trimNorthAmericanPrefix(sent.From.PhoneNumber)
	p.logger.InfoContext(ctx, "RingCentral fax submitted", "partner_id", partner.ID, "provider_msg_id", res.ProviderMessageID, "status", sent.MessageStatus)
	return res
}

func buildRingCentralFax(doc domain.OutboundDocument, recipients []string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	req := rcSendRequest{To: make([]rcPhone, len(recipients))}
	for i, n := range recipients {
		req.To[i] = rcPhone{PhoneNumber: withNorthAmericanPrefix(n)}
	}
	jsonPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":        {"application/json"},
		"Content-Disposition": {`form-data; name="request"`},
	})
	if err != nil {
		return nil, "", err
	}
	if err := json.NewEncoder(jsonPart).Encode(req); err != nil {
		return nil, "", fmt.Errorf("encoding fax request: %w", err)
	}

	filePart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":        {"application/pdf"},
		"Content-Disposition": {fmt.Sprintf(`form-data; name="attachment"; filename=%q`, doc.FileName)},
	})
	if err != nil {
		return nil, "", err
	}
	if _, err := filePart.Write(doc.PDF); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func bearerGet(rawURL, token string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	}
}

func asRingCentralConfig(cfg domain.ProviderConfig) (*domain.RingCentralConfig, error) {
	rcCfg, ok := cfg.(*domain.RingCentralConfig)
	if !ok || rcCfg == nil {
		return nil, fmt.Errorf("ringcentral provider given %T config", cfg)
	}
	return rcCfg, nil
}

func trimNorthAmericanPrefix(n string) string {
	return strings.TrimPrefix(n, "+1")
}
