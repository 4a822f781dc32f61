package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

// memoryTokenStore stands in for the partner service.
type memoryTokenStore struct {
	mu      sync.Mutex
	refresh string
	saves   []string
	saveErr error
}

func (s *memoryTokenStore) LoadRingCentralRefreshToken(ctx context.Context, partnerID, configID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh, nil
}

func (s *memoryTokenStore) SaveRingCentralTokens(ctx context.Context, partnerID, configID int64, accessToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.refresh = refreshToken
	s.saves = append(s.saves, refreshToken)
	return nil
}

// rotatingTokenServer issues a new refresh token on every grant and rejects reuse
// of a consumed one.
type rotatingTokenServer struct {
	mu       sync.Mutex
	issued   int
	consumed map[string]bool
	seen     []string
}

func newRotatingTokenServer() *rotatingTokenServer {
	return &rotatingTokenServer{consumed: map[string]bool{}}
}

func (ts *rotatingTokenServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != "client-id" || pass != "client-secret" {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}
	rt := r.PostForm.Get("refresh_token")

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.seen = append(ts.seen, rt)
	if r.PostForm.Get("grant_type") != "refresh_token" || ts.consumed[rt] {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
		return
	}
	ts.consumed[rt] = true
	ts.issued++
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  fmt.Sprintf("access-%d", ts.issued),
		"refresh_token": fmt.Sprintf("refresh-%d", ts.issued),
		"token_type":    "bearer",
		"expires_in":    3600,
	})
}

func (ts *rotatingTokenServer) issuedCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.issued
}

func rcCfg() *domain.RingCentralConfig {
	return &domain.RingCentralConfig{ID: 1, ClientID: "client-id", ClientSecret: "client-secret", Token: "old", RefreshToken: "refresh-0", PullFax: true, IsActive: true}
}

func TestTokenManager_ConcurrentRefreshUsesLatestToken(t *testing.T) {
	tokenServer := newRotatingTokenServer()
	server := httptest.NewServer(tokenServer)
	defer server.Close()

	store := &memoryTokenStore{refresh: "refresh-0"}
	tm := NewTokenManager(testLogger(), store, server.URL, server.Client())

	// Both callers hold the same stale partner snapshot.
	cfg := rcCfg()
	var wg sync.WaitGroup
	tokens := make([]string, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = tm.AccessToken(context.Background(), 7, cfg)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.NotEqual(t, tokens[0], tokens[1])
	assert.ElementsMatch(t, []string{"refresh-0", "refresh-1"}, tokenServer.seen)
	assert.Equal(t, []string{"refresh-1", "refresh-2"}, store.saves)
	assert.Equal(t, "refresh-2", store.refresh)
}

func TestTokenManager_UnsavedRotationIsReused(t *testing.T) {
	tokenServer := newRotatingTokenServer()
	server := httptest.NewServer(tokenServer)
	defer server.Close()

	store := &memoryTokenStore{refresh: "refresh-0", saveErr: fmt.Errorf("partner service down")}
	tm := NewTokenManager(testLogger(), store, server.URL, server.Client())

	_, err := tm.AccessToken(context.Background(), 7, rcCfg())
	require.NoError(t, err)
	_, err = tm.AccessToken(context.Background(), 7, rcCfg())
	require.NoError(t, err)
	assert.Equal(t, []string{"refresh-0", "refresh-1"}, tokenServer.seen)
}

func TestRingCentralProvider_FetchInboundBatchAndDocuments(t *testing.T) {
	grants := newRotatingTokenServer()
	tokenServer := httptest.NewServer(grants)
	defer tokenServer.Close()

	var apiURL string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer access-"))
		switch {
		case r.URL.Path == "/account/~/extension/~/message-store":
			assert.Equal(t, "Fax", r.URL.Query().Get("messageType"))
			assert.Equal(t, "Inbound", r.URL.Query().Get("direction"))
			writeJSON(t, w, map[string]any{"records": []map[string]any{
				{
					"id": 401, "creationTime": "2024-03-10T14:31:59.000Z", "faxPageCount": 2,
					"from": map[string]any{"phoneNumber": "+14165550101"},
					"to":   []map[string]any{{"phoneNumber": "+14165550100"}},
					"attachments": []map[string]any{{"id": 9001, "uri": apiURL + "/content/401/9001", "contentType": "application/pdf"}},
				},
				{
					// 14:32:30 truncates to 14:32, still inside (14:27, 14:32].
					"id": 402, "creationTime": "2024-03-10T14:32:30.000Z",
					"from":        map[string]any{"phoneNumber": "+14165550102"},
					"attachments": []map[string]any{{"id": 9002}},
				},
				{
					"id": 403, "creationTime": "2024-03-10T14:27:10.000Z",
					"from":        map[string]any{"phoneNumber": "+14165550103"},
					"attachments": []map[string]any{{"id": 9003}},
				},
			}})
		case r.URL.Path == "/content/401/9001":
			_, _ = w.Write([]byte("%PDF-401"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer api.Close()
	apiURL = api.URL

	store := &memoryTokenStore{refresh: "refresh-0"}
	tm := NewTokenManager(testLogger(), store, tokenServer.URL, tokenServer.Client())
	p := NewRingCentralProvider(testLogger(), api.URL, tm, api.Client(), fastPolicy)

	window := domain.SyncWindow{
		Start: time.Date(2024, 3, 10, 14, 27, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 14, 32, 0, 0, time.UTC),
		Mode:  domain.SyncModeRealtime,
	}
	records, err := p.FetchInboundBatch(context.Background(), torontoPartner(), rcCfg(), window)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "RINGCENTRAL_401", records[0].ProviderScopedID())
	assert.Equal(t, "4165550101", records[0].FromNumber)
	assert.Equal(t, "4165550100", records[0].ToNumber)
	assert.Equal(t, "RINGCENTRAL_402", records[1].ProviderScopedID())
	assert.Equal(t, api.URL+"/account/~/extension/~/message-store/402/content/9002", records[1].DocumentRef)

	docs, err := p.FetchDocuments(context.Background(), torontoPartner(), rcCfg(), records[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-401"), docs.PDF)
	assert.Nil(t, docs.TIFF)
	assert.Equal(t, 2, docs.Pages)

	// The listing token covers the downloads of its batch.
	assert.Equal(t, "access-1", records[0].AccessToken)
	assert.Equal(t, 1, grants.issuedCount())
	assert.Equal(t, []string{"refresh-1"}, store.saves)
}

func TestRingCentralProvider_FetchDocumentsRefreshesWithoutBatchToken(t *testing.T) {
	grants := newRotatingTokenServer()
	tokenServer := httptest.NewServer(grants)
	defer tokenServer.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("%PDF-9"))
	}))
	defer api.Close()

	tm := NewTokenManager(testLogger(), &memoryTokenStore{refresh: "refresh-0"}, tokenServer.URL, tokenServer.Client())
	p := NewRingCentralProvider(testLogger(), api.URL, tm, api.Client(), fastPolicy)

	docs, err := p.FetchDocuments(context.Background(), torontoPartner(), rcCfg(), domain.RawFaxRecord{
		Provider: domain.ProviderRingCentral, NativeID: "9", DocumentRef: api.URL + "/content/9/1",
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-9"), docs.PDF)
	assert.Equal(t, 1, grants.issuedCount())
}

func TestRingCentralProvider_SendOutbound(t *testing.T) {
	tokenServer := httptest.NewServer(newRotatingTokenServer())
	defer tokenServer.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account/~/extension/~/fax", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		var req rcSendRequest
		require.NoError(t, json.Unmarshal([]byte(r.MultipartForm.Value["request"][0]), &req))
		assert.Equal(t, []rcPhone{{PhoneNumber: "14165550199"}}, req.To)
		files := r.MultipartForm.File["attachment"]
		require.Len(t, files, 1)
		assert.Equal(t, "letter.pdf", files[0].Filename)
		writeJSON(t, w, map[string]any{"id": 777, "messageStatus": "Queued", "from": map[string]any{"phoneNumber": "+14165550100"}})
	}))
	defer api.Close()

	tm := NewTokenManager(testLogger(), &memoryTokenStore{refresh: "refresh-0"}, tokenServer.URL, tokenServer.Client())
	p := NewRingCentralProvider(testLogger(), api.URL, tm, api.Client(), fastPolicy)

	res := p.SendOutbound(context.Background(), torontoPartner(), rcCfg(),
		domain.OutboundDocument{FileName: "letter.pdf", PDF: []byte("%PDF")}, []string{"4165550199"})
	assert.True(t, res.Success)
	assert.Equal(t, "777", res.ProviderMessageID)
	assert.Equal(t, "4165550100", res.SenderFaxNumber)
	assert.Equal(t, domain.ProviderRingCentral, res.Provider)
}
