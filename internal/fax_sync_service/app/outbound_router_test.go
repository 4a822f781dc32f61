package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/fax_sync_service/provider"
)

var defaultSRFax = &domain.SrFaxConfig{AccountNumber: "99999", Password: "default-pw", Number: "8005550000"}

type routerTest struct {
	router       *OutboundRouter
	partners     *MockPartnerDirectory
	srfax        *MockFaxProvider
	ringCentral  *MockFaxProvider
	uniteFax     *MockFaxProvider
	outboundRepo *MockOutboundFaxRepository
	publisher    *MockPublisher
}

func setupRouterTest(t *testing.T, ringCentral bool, fallback *domain.SrFaxConfig) *routerTest {
	t.Helper()
	rt := &routerTest{
		partners:     new(MockPartnerDirectory),
		srfax:        &MockFaxProvider{ProviderName: domain.ProviderSRFax},
		ringCentral:  &MockFaxProvider{ProviderName: domain.ProviderRingCentral},
		uniteFax:     &MockFaxProvider{ProviderName: domain.ProviderUniteFax},
		outboundRepo: new(MockOutboundFaxRepository),
		publisher:    new(MockPublisher),
	}
	notifier := NewNotifier(rt.publisher, testInboundSubject, testOutboundSubject, discardLogger())
	rt.router = NewOutboundRouter(
		rt.partners,
		[]provider.FaxProvider{rt.srfax, rt.ringCentral, rt.uniteFax},
		rt.outboundRepo,
		notifier,
		fallback,
		staticToggles(ringCentral),
		discardLogger(),
	)
	return rt
}

func routingPartner() *domain.Partner {
	return &domain.Partner{
		ID: 7,
		SrFaxConfigs: []*domain.SrFaxConfig{
			{ID: 4, AccountNumber: "111"}, // incomplete
			{ID: 5, AccountNumber: "222", Password: "pw", Number: "4165550000"},
		},
		RingCentralConfig: []*domain.RingCentralConfig{
			{ID: 8, ClientID: "client", ClientSecret: "secret", Token: "tok", RefreshToken: "ref"},
		},
		UniteFaxConfigs: []*domain.UniteFaxConfig{
			{ID: 9, Username: "u", Password: "p", URL: "https://unite.example/ws"},
		},
	}
}

func TestOutboundRouter_Resolve(t *testing.T) {
	tests := []struct {
		name        string
		ringCentral bool
		fallback    *domain.SrFaxConfig
		mutate      func(p *domain.Partner)
		wantType    domain.ProviderType
		wantID      int64
		wantErr     error
	}{
		{
			name:        "explicit SRFax beats usable RingCentral",
			ringCentral: true,
			mutate: func(p *domain.Partner) {
				p.OutgoingFaxType, p.OutgoingFaxID = domain.OutgoingFaxTypeSRFax, int64Ptr(5)
			},
			wantType: domain.ProviderSRFax, wantID: 5,
		},
		{
			name:        "explicit UniteFax",
			ringCentral: true,
			mutate: func(p *domain.Partner) {
				p.OutgoingFaxType, p.OutgoingFaxID = domain.OutgoingFaxTypeUniteFax, int64Ptr(9)
			},
			wantType: domain.ProviderUniteFax, wantID: 9,
		},
		{
			name:        "dangling explicit id falls through to RingCentral",
			ringCentral: true,
			mutate: func(p *domain.Partner) {
				p.OutgoingFaxType, p.OutgoingFaxID = domain.OutgoingFaxTypeSRFax, int64Ptr(404)
			},
			wantType: domain.ProviderRingCentral, wantID: 8,
		},
		{
			name:        "usable RingCentral before SRFax",
			ringCentral: true,
			wantType:    domain.ProviderRingCentral, wantID: 8,
		},
		{
			name:     "RingCentral toggled off uses first complete SRFax",
			wantType: domain.ProviderSRFax, wantID: 5,
		},
		{
			name:        "RingCentral without access token is not usable",
			ringCentral: true,
			mutate:      func(p *domain.Partner) { p.RingCentralConfig[0].Token = "" },
			wantType:    domain.ProviderSRFax, wantID: 5,
		},
		{
			name:     "default account when partner has nothing usable",
			fallback: defaultSRFax,
			mutate: func(p *domain.Partner) {
				p.SrFaxConfigs = p.SrFaxConfigs[:1]
				p.RingCentralConfig = nil
			},
			wantType: domain.ProviderSRFax, wantID: 0,
		},
		{
			name: "no provider at all",
			mutate: func(p *domain.Partner) {
				p.SrFaxConfigs, p.RingCentralConfig = nil, nil
			},
			wantErr: domain.ErrConfigIncomplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := setupRouterTest(t, tt.ringCentral, tt.fallback)
			p := routingPartner()
			if tt.mutate != nil {
				tt.mutate(p)
			}
			cfg, err := rt.router.Resolve(p)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, cfg.Provider())
			assert.Equal(t, tt.wantID, cfg.ConfigID())
		})
	}
}

func TestOutboundRouter_Route_RecordsEveryRecipient(t *testing.T) {
	rt := setupRouterTest(t, false, nil)
	partner := routingPartner()
	partner.OutgoingFaxType, partner.OutgoingFaxID = domain.OutgoingFaxTypeSRFax, int64Ptr(5)
	req := domain.OutboundFaxRequest{
		ID:               uuid.New(),
		PartnerID:        7,
		RecipientNumbers: []string{"4165550101", "4165550102"},
		Payload:          domain.OutboundPayload{PDF: []byte("%PDF")},
		Correlation:      domain.CorrelationKeys{AppointmentID: int64Ptr(31), PatientID: int64Ptr(11)},
	}
	sent := domain.SendResult{Success: true, SenderFaxNumber: "4165550000", ProviderMessageID: "q-77"}
	recorded := sent
	recorded.Provider = domain.ProviderSRFax

	rt.partners.On("GetPartner", mock.Anything, int64(7)).Return(partner, nil)
	rt.srfax.On("SendOutbound", mock.Anything, partner, partner.SrFaxConfigs[1],
		domain.OutboundDocument{FileName: req.ID.String() + ".pdf", PDF: []byte("%PDF")}, req.RecipientNumbers).
		Return(sent).Once()
	rt.outboundRepo.On("UpdateSendStatus", mock.Anything, int64(7), req.Correlation, "4165550101", recorded).Return(int64(1), nil).Once()
	rt.outboundRepo.On("UpdateSendStatus", mock.Anything, int64(7), req.Correlation, "4165550102", recorded).Return(int64(1), nil).Once()

	var note domain.FaxOutboundNotification
	rt.publisher.On("Publish", mock.Anything, testOutboundSubject, mock.Anything).
		Run(func(args mock.Arguments) { require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &note)) }).
		Return(nil).Once()

	result := rt.router.Route(context.Background(), req)
	assert.Equal(t, recorded, result)
	assert.True(t, note.IsFaxSent)
	assert.Equal(t, domain.ProviderSRFax, note.ProviderID)
	assert.Equal(t, req.RecipientNumbers, note.Recipients)
	assert.Equal(t, int64(31), *note.AppointmentID)

	rt.ringCentral.AssertNotCalled(t, "SendOutbound", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mock.AssertExpectationsForObjects(t, rt.partners, rt.srfax, rt.outboundRepo, rt.publisher)
}

func TestOutboundRouter_Route_ProviderFailure(t *testing.T) {
	rt := setupRouterTest(t, true, nil)
	partner := routingPartner()
	req := domain.OutboundFaxRequest{
		ID:               uuid.New(),
		PartnerID:        7,
		RecipientNumbers: []string{"4165550101"},
		Payload:          domain.OutboundPayload{PDF: []byte("%PDF")},
		Correlation:      domain.CorrelationKeys{PatientID: int64Ptr(11)},
	}
	failed := domain.SendResult{Success: false, Error: "provider transport failure: 503"}
	recorded := failed
	recorded.Provider = domain.ProviderRingCentral

	rt.partners.On("GetPartner", mock.Anything, int64(7)).Return(partner, nil)
	rt.ringCentral.On("SendOutbound", mock.Anything, partner, partner.RingCentralConfig[0], mock.Anything, req.RecipientNumbers).Return(failed)
	rt.outboundRepo.On("UpdateSendStatus", mock.Anything, int64(7), req.Correlation, "4165550101", recorded).Return(int64(1), nil).Once()
	rt.publisher.On("Publish", mock.Anything, testOutboundSubject, mock.Anything).Return(nil)

	result := rt.router.Route(context.Background(), req)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ProviderRingCentral, result.Provider)
	rt.srfax.AssertNotCalled(t, "SendOutbound", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mock.AssertExpectationsForObjects(t, rt.outboundRepo)
}

func TestOutboundRouter_Route_WithoutCorrelationSkipsStatusRows(t *testing.T) {
	rt := setupRouterTest(t, false, nil)
	partner := routingPartner()
	req := domain.OutboundFaxRequest{
		ID:               uuid.New(),
		PartnerID:        7,
		RecipientNumbers: []string{"4165550101"},
		Payload:          domain.OutboundPayload{PDF: []byte("%PDF")},
	}
	rt.partners.On("GetPartner", mock.Anything, int64(7)).Return(partner, nil)
	rt.srfax.On("SendOutbound", mock.Anything, partner, partner.SrFaxConfigs[1], mock.Anything, req.RecipientNumbers).
		Return(domain.SendResult{Success: true})
	rt.publisher.On("Publish", mock.Anything, testOutboundSubject, mock.Anything).Return(nil).Once()

	result := rt.router.Route(context.Background(), req)
	assert.True(t, result.Success)
	rt.outboundRepo.AssertNotCalled(t, "UpdateSendStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	rt.publisher.AssertExpectations(t)
}

func TestOutboundRouter_Route_NoProviderIsFailedResult(t *testing.T) {
	rt := setupRouterTest(t, false, nil)
	partner := &domain.Partner{ID: 7}
	req := domain.OutboundFaxRequest{
		ID:               uuid.New(),
		PartnerID:        7,
		RecipientNumbers: []string{"4165550101"},
		Payload:          domain.OutboundPayload{PDF: []byte("%PDF")},
	}
	rt.partners.On("GetPartner", mock.Anything, int64(7)).Return(partner, nil)
	rt.publisher.On("Publish", mock.Anything, testOutboundSubject, mock.Anything).Return(nil)

	result := rt.router.Route(context.Background(), req)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no outbound provider")
}
