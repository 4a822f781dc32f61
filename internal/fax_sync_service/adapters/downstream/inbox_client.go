package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/httpretry"
)

// HL7 inbox message statuses understood by the inbox service.
const (
	InboxStatusNew        = "NEW"
	InboxStatusOpen       = "OPEN"
	InboxStatusReportSent = "REPORT_SENT"
)

type InboxClient struct {
	logger  *slog.Logger
	client  *httpretry.Client
	baseURL string
	creds   Credentials
}

func NewInboxClient(logger *slog.Logger, baseURL string, creds Credentials, httpClient *http.Client, policy httpretry.Policy) *InboxClient {
	return &InboxClient{
		logger:  logger.With("component", "inbox_client"),
		client:  httpretry.New(httpClient, policy),
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
	}
}

// ReportBatch posts the outcome of one sync batch, new and existing records alike.
func (c *InboxClient) ReportBatch(ctx context.Context, partnerID int64, entries []domain.InboxFaxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	newReq, err := c.creds.newJSONRequest(http.MethodPost, c.baseURL+"/fax", partnerID, entries)
	if err != nil {
		return err
	}
	if _, err := c.client.Do(ctx, newReq); err != nil {
		return fmt.Errorf("posting fax batch for partner %d: %w", partnerID, err)
	}
	c.logger.InfoContext(ctx, "Fax batch reported to inbox", "partner_id", partnerID, "entries", len(entries))
	return nil
}

type hl7Message struct {
	UUID   string `json:"uuid"`
	Status string `json:"status"`
}

type hl7Patch struct {
	UUID               string `json:"uuid"`
	InboxMessageStatus string `json:"inboxMessageStatus,omitempty"`
	ReferralID         int64  `json:"referralId,omitempty"`
}

// UpdateHL7Status moves the inbox message linked to referralID to status.
func (c *InboxClient) UpdateHL7Status(ctx context.Context, partnerID, referralID int64, status string) error {
	lookupURL := c.baseURL + "/hl7?" + url.Values{"referralId": {strconv.FormatInt(referralID, 10)}}.Encode()
	newReq, err := c.creds.newJSONRequest(http.MethodGet, lookupURL, partnerID, nil)
	if err != nil {
		return err
	}
	body, err := c.client.Do(ctx, newReq)
	if err != nil {
		return fmt.Errorf("fetching inbox message for referral %d: %w", referralID, err)
	}
	var found struct {
		Data  []hl7Message `json:"data"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal(body, &found); err != nil {
		return fmt.Errorf("decoding inbox message for referral %d: %w", referralID, err)
	}
	if len(found.Data) == 0 {
		return fmt.Errorf("inbox message for referral %d: %w", referralID, domain.ErrNotFound)
	}

	patchReq, err := c.creds.newJSONRequest(http.MethodPatch, c.baseURL+"/hl7/status", partnerID,
		hl7Patch{UUID: found.Data[0].UUID, InboxMessageStatus: status})
	if err != nil {
		return err
	}
	if _, err := c.client.Do(ctx, patchReq); err != nil {
		return fmt.Errorf("updating inbox message %s: %w", found.Data[0].UUID, err)
	}
	c.logger.InfoContext(ctx, "Inbox HL7 status updated", "partner_id", partnerID, "referral_id", referralID, "status", status)
	return nil
}
