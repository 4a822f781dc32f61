package downstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/httpretry"
)

// PartnerClient reads partner details and writes back rotated RingCentral tokens.
type PartnerClient struct {
	logger  *slog.Logger
	client  *httpretry.Client
	baseURL string
	creds   Credentials
}

func NewPartnerClient(logger *slog.Logger, baseURL string, creds Credentials, httpClient *http.Client, policy httpretry.Policy) *PartnerClient {
	return &PartnerClient{
		logger:  logger.With("component", "partner_client"),
		client:  httpretry.New(httpClient, policy),
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
	}
}

// ListPartners returns every partner known to the partner service.
func (c *PartnerClient) ListPartners(ctx context.Context) ([]*domain.Partner, error) {
	newReq, err := c.creds.newJSONRequest(http.MethodGet, c.baseURL, 0, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.client.Do(ctx, newReq)
	if err != nil {
		return nil, fmt.Errorf("listing partners: %w", err)
	}

	// The list is returned either bare or wrapped in {"data": [...]}.
	list := gjson.ParseBytes(body)
	if list.IsObject() {
		list = list.Get("data")
	}
	var partners []*domain.Partner
	if err := json.Unmarshal([]byte(list.Raw), &partners); err != nil {
		return nil, fmt.Errorf("decoding partner list: %w", err)
	}
	return partners, nil
}

func (c *PartnerClient) GetPartner(ctx context.Context, partnerID int64) (*domain.Partner, error) {
	newReq, err := c.creds.newJSONRequest(http.MethodGet, c.baseURL, partnerID, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.client.Do(ctx, newReq)
	if err != nil {
		var statusErr *httpretry.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetching partner %d: %w", partnerID, err)
	}
	var partner domain.Partner
	if err := json.Unmarshal(body, &partner); err != nil {
		return nil, fmt.Errorf("decoding partner %d: %w", partnerID, err)
	}
	return &partner, nil
}

// LoadRingCentralRefreshToken re-reads the stored refresh token for one config.
func (c *PartnerClient) LoadRingCentralRefreshToken(ctx context.Context, partnerID, configID int64) (string, error) {
	newReq, err := c.creds.newJSONRequest(http.MethodGet, c.baseURL+"/ring-central/config", partnerID, nil)
	if err != nil {
		return "", err
	}
	body, err := c.client.Do(ctx, newReq)
	if err != nil {
		return "", fmt.Errorf("fetching ringcentral config for partner %d: %w", partnerID, err)
	}

	res := gjson.ParseBytes(body)
	if res.IsObject() && res.Get("data").Exists() {
		res = res.Get("data")
	}
	if !res.IsArray() {
		return res.Get("ringCentralRefreshToken").String(), nil
	}
	for _, cfg := range res.Array() {
		if cfg.Get("id").Int() == configID {
			return cfg.Get("ringCentralRefreshToken").String(), nil
		}
	}
	return "", fmt.Errorf("ringcentral config %d for partner %d: %w", configID, partnerID, domain.ErrNotFound)
}

// SaveRingCentralTokens persists a rotated token pair.
func (c *PartnerClient) SaveRingCentralTokens(ctx context.Context, partnerID, configID int64, accessToken, refreshToken string) error {
	u := c.baseURL + "/ring-central/config?" + url.Values{"id": {strconv.FormatInt(configID, 10)}}.Encode()
	newReq, err := c.creds.newJSONRequest(http.MethodPatch, u, partnerID, map[string]string{
		"ringCentralToken":        accessToken,
		"ringCentralRefreshToken": refreshToken,
	})
	if err != nil {
		return err
	}
	if _, err := c.client.Do(ctx, newReq); err != nil {
		return fmt.Errorf("saving ringcentral tokens for partner %d: %w", partnerID, err)
	}
	c.logger.DebugContext(ctx, "RingCentral tokens persisted", "partner_id", partnerID, "config_id", configID)
	return nil
}
