package downstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/faxsync/golang_services/internal/platform/httpretry"
)

type ReferralClient struct {
	logger  *slog.Logger
	client  *httpretry.Client
	baseURL string
	creds   Credentials
}

func NewReferralClient(logger *slog.Logger, baseURL string, creds Credentials, httpClient *http.Client, policy httpretry.Policy) *ReferralClient {
	return &ReferralClient{
		logger:  logger.With("component", "referral_client"),
		client:  httpretry.New(httpClient, policy),
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
	}
}

type referralPatch struct {
	ActiveStatus bool   `json:"activeStatus"`
	PatientID    *int64 `json:"patientId,omitempty"`
	ReferralID   int64  `json:"referralId"`
}

// Deactivate marks the referral inactive once its outbound fax has gone out.
func (c *ReferralClient) Deactivate(ctx context.Context, partnerID int64, patientID *int64, referralID int64) error {
	newReq, err := c.creds.newJSONRequest(http.MethodPatch, c.baseURL+"/V2/active", partnerID,
		referralPatch{ActiveStatus: false, PatientID: patientID, ReferralID: referralID})
	if err != nil {
		return err
	}
	if _, err := c.client.Do(ctx, newReq); err != nil {
		return fmt.Errorf("deactivating referral %d: %w", referralID, err)
	}
	c.logger.InfoContext(ctx, "Referral deactivated", "partner_id", partnerID, "referral_id", referralID)
	return nil
}
