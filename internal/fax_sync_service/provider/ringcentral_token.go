package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// TokenStore is where RingCentral credentials live between calls. The partner
// service is the system of record.
type TokenStore interface {
	LoadRingCentralRefreshToken(ctx context.Context, partnerID, configID int64) (string, error)
	SaveRingCentralTokens(ctx context.Context, partnerID, configID int64, accessToken, refreshToken string) error
}

// TokenManager exchanges RingCentral refresh tokens for access tokens. RingCentral
// rotates the refresh token on every exchange, so refresh and persist for one
// (partner, config) pair happen under a single lock and always start from the
// most recently stored token.
type TokenManager struct {
	logger     *slog.Logger
	store      TokenStore
	tokenURL   string
	httpClient *http.Client

	locks sync.Map // tokenKey -> *sync.Mutex
	// unsaved holds rotated refresh tokens the store failed to persist. Guarded by the key's lock.
	unsaved sync.Map // tokenKey -> string
}

type tokenKey struct {
	partnerID int64
	configID  int64
}

func NewTokenManager(logger *slog.Logger, store TokenStore, tokenURL string, httpClient *http.Client) *TokenManager {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenManager{
		logger:     logger.With("component", "ringcentral_token_manager"),
		store:      store,
		tokenURL:   tokenURL,
		httpClient: httpClient,
	}
}

// AccessToken returns a fresh access token for cfg and persists the rotated pair.
func (m *TokenManager) AccessToken(ctx context.Context, partnerID int64, cfg *domain.RingCentralConfig) (string, error) {
	key := tokenKey{partnerID: partnerID, configID: cfg.ID}
	mu := m.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	refreshToken, err := m.currentRefreshToken(ctx, key, cfg)
	if err != nil {
		return "", err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  m.tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	oauthCtx := context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := oauthCfg.TokenSource(oauthCtx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("%w: ringcentral token refresh for partner %d: %v", domain.ErrProviderTransport, partnerID, err)
	}

	if err := m.store.SaveRingCentralTokens(ctx, partnerID, cfg.ID, tok.AccessToken, tok.RefreshToken); err != nil {
		m.unsaved.Store(key, tok.RefreshToken)
		m.logger.ErrorContext(ctx, "Failed to persist rotated RingCentral tokens", "partner_id", partnerID, "config_id", cfg.ID, "error", err)
	} else {
		m.unsaved.Delete(key)
	}
	return tok.AccessToken, nil
}

func (m *TokenManager) currentRefreshToken(ctx context.Context, key tokenKey, cfg *domain.RingCentralConfig) (string, error) {
	if v, ok := m.unsaved.Load(key); ok {
		return v.(string), nil
	}
	latest, err := m.store.LoadRingCentralRefreshToken(ctx, key.partnerID, key.configID)
	if err != nil {
		m.logger.WarnContext(ctx, "Could not reload RingCentral refresh token, using cached config", "partner_id", key.partnerID, "config_id", key.configID, "error", err)
		latest = ""
	}
	if latest == "" {
		latest = cfg.RefreshToken
	}
	if latest == "" {
		return "", fmt.Errorf("%w: ringcentral config %d has no refresh token", domain.ErrConfigIncomplete, cfg.ID)
	}
	return latest, nil
}

func (m *TokenManager) lockFor(key tokenKey) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
