package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/httpretry"
)

// SRFax inbox dates come back in the account's local time in one of these layouts.
var srFaxDateLayouts = []string{
	"Jan 02/06 03:04 PM",
	"Jan 02/06 15:04",
	"Jan 02/2006 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

type SRFaxProvider struct {
	logger *slog.Logger
	client *httpretry.Client
	apiURL string
}

func NewSRFaxProvider(logger *slog.Logger, apiURL string, httpClient *http.Client, policy httpretry.Policy) *SRFaxProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &SRFaxProvider{
		logger: logger.With("provider", "srfax"),
		client: httpretry.New(httpClient, policy),
		apiURL: apiURL,
	}
}

func (p *SRFaxProvider) Name() domain.ProviderType { return domain.ProviderSRFax }

func (p *SRFaxProvider) FetchInboundBatch(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, window domain.SyncWindow) ([]domain.RawFaxRecord, error) {
	srCfg, err := asSRFaxConfig(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := partner.Location()
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"action":           {"Get_Fax_Inbox"},
		"access_id":        {srCfg.AccountNumber},
		"access_pwd":       {srCfg.Password},
		"sPeriod":          {"RANGE"},
		"sStartDate":       {window.Start.In(loc).Format("20060102")},
		"sEndDate":         {window.End.In(loc).Format("20060102")},
		"sIncludeSubUsers": {"Y"},
	}

	result, err := p.call(ctx, form, false)
	if err != nil {
		return nil, fmt.Errorf("srfax inbox for partner %d: %w", partner.ID, err)
	}

	var records []domain.RawFaxRecord
	for _, item := range result.Array() {
		fileName := item.Get("FileName").String()
		nativeID, _, _ := strings.Cut(fileName, "|")
		if nativeID == "" {
			p.logger.WarnContext(ctx, "Skipping SRFax inbox entry without file name", "partner_id", partner.ID)
			continue
		}
		createdAt, err := parseSRFaxDate(item, loc)
		if err != nil {
			p.logger.WarnContext(ctx, "Skipping SRFax inbox entry with unparseable date", "partner_id", partner.ID, "file_name", fileName, "error", err)
			continue
		}
		if !window.Contains(createdAt) {
			continue
		}
		records = append(records, domain.RawFaxRecord{
			Provider:    domain.ProviderSRFax,
			NativeID:    nativeID,
			FromNumber:  item.Get("CallerID").String(),
			ToNumber:    item.Get("User_FaxNumber").String(),
			Pages:       int(item.Get("Pages").Int()),
			CreatedAt:   createdAt,
			DocumentRef: fileName,
		})
	}
	p.logger.DebugContext(ctx, "SRFax inbox fetched", "partner_id", partner.ID, "config_id", srCfg.ID, "listed", len(result.Array()), "in_window", len(records))
	return records, nil
}

func (p *SRFaxProvider) FetchDocuments(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, raw domain.RawFaxRecord) (*domain.Documents, error) {
	srCfg, err := asSRFaxConfig(cfg)
	if err != nil {
		return nil, err
	}
	_, detailsID, _ := strings.Cut(raw.DocumentRef, "|")

	retrieve := func(format string) ([]byte, error) {
		form := url.Values{
			"action":        {"Retrieve_Fax"},
			"access_id":     {srCfg.AccountNumber},
			"access_pwd":    {srCfg.Password},
			"sFaxFileName":  {raw.DocumentRef},
			"sDirection":    {"IN"},
			"sFaxDetailsID": {detailsID},
			"sFaxFormat":    {format},
		}
		result, err := p.call(ctx, form, false)
		if err != nil {
			return nil, fmt.Errorf("srfax retrieve %s for %s: %w", format, raw.NativeID, err)
		}
		data, err := decodeBase64Document(result.String())
		if err != nil {
			return nil, fmt.Errorf("srfax retrieve %s for %s: %w", format, raw.NativeID, err)
		}
		return data, nil
	}

	pdf, err := retrieve("PDF")
	if err != nil {
		return nil, err
	}
	tiff, err := retrieve("TIFF")
	if err != nil {
		return nil, err
	}
	return &domain.Documents{PDF: pdf, TIFF: tiff, Pages: raw.Pages}, nil
}

func (p *SRFaxProvider) SendOutbound(ctx context.Context, partner *domain.Partner, cfg domain.ProviderConfig, doc domain.OutboundDocument, recipients []string) domain.SendResult {
	res := domain.SendResult{Provider: domain.ProviderSRFax}
	srCfg, err := asSRFaxConfig(cfg)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.SenderFaxNumber = srCfg.Number
	if len(recipients) == 0 {
		res.Error = domain.ErrNoRecipients.Error()
		return res
	}

	numbers := make([]string, len(recipients))
	for i, n := range recipients {
		numbers[i] = withNorthAmericanPrefix(n)
	}
	form := url.Values{
		"action":         {"Queue_Fax"},
		"access_id":      {srCfg.AccountNumber},
		"access_pwd":     {srCfg.Password},
		"sCallerID":      {srCfg.Number},
		"sSenderEmail":   {srCfg.Email},
		"sFaxType":       {"SINGLE"},
		"sToFaxNumber":   {strings.Join(numbers, "|")},
		"sFileName_1":    {doc.FileName},
		"sFileContent_1": {base64.StdEncoding.EncodeToString(doc.PDF)},
	}

	result, err := p.call(ctx, form, true)
	if err != nil {
		p.logger.ErrorContext(ctx, "SRFax queue fax failed", "partner_id", partner.ID, "recipients", len(recipients), "error", err)
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.ProviderMessageID = result.String()
	p.logger.InfoContext(ctx, "SRFax fax queued", "partner_id", partner.ID, "provider_msg_id", res.ProviderMessageID, "recipients", len(recipients))
	return res
}

// call posts form and returns the Result member of a successful response. A
// non-success Status carries its error text in Result.
func (p *SRFaxProvider) call(ctx context.Context, form url.Values, once bool) (gjson.Result, error) {
	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	var body []byte
	var err error
	if once {
		body, err = p.client.DoOnce(ctx, newReq)
	} else {
		body, err = p.client.Do(ctx, newReq)
	}
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", domain.ErrProviderTransport, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: srfax returned non-JSON body", domain.ErrProviderTransport)
	}
	parsed := gjson.ParseBytes(body)
	if status := parsed.Get("Status").String(); !strings.EqualFold(status, "Success") {
		return gjson.Result{}, fmt.Errorf("%w: srfax status %q: %s", domain.ErrProviderTransport, status, parsed.Get("Result").String())
	}
	return parsed.Get("Result"), nil
}

func asSRFaxConfig(cfg domain.ProviderConfig) (*domain.SrFaxConfig, error) {
	srCfg, ok := cfg.(*domain.SrFaxConfig)
	if !ok || srCfg == nil {
		return nil, fmt.Errorf("srfax provider given %T config", cfg)
	}
	return srCfg, nil
}

func parseSRFaxDate(item gjson.Result, loc *time.Location) (time.Time, error) {
	if epoch := item.Get("EpochTime").Int(); epoch > 0 {
		return time.Unix(epoch, 0).UTC(), nil
	}
	raw := strings.TrimSpace(item.Get("Date").String())
	for _, layout := range srFaxDateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// decodeBase64Document accepts both raw base64 and data URLs.
func decodeBase64Document(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if _, payload, ok := strings.Cut(s, ";base64,"); ok {
			s = payload
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	return data, nil
}

// withNorthAmericanPrefix adds the country code to bare ten-digit numbers.
func withNorthAmericanPrefix(n string) string {
	n = strings.TrimSpace(n)
	if len(n) == 10 {
		return "1" + n
	}
	return n
}
