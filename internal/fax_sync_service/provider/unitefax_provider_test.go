package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
)

const soapEnvelope = `<?xml version="1.0" encoding="UTF-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>%s</soap:Body></soap:Envelope>`

func ufCfg(url string) *domain.UniteFaxConfig {
	return &domain.UniteFaxConfig{ID: 2, Username: "unite-user", Password: "unite-pw", URL: url, PullFax: true, IsActive: true}
}

func TestUniteFaxProvider_FetchInboundBatch(t *testing.T) {
	var requests int
	soapServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<QueryReceiveFax>")
		assert.Contains(t, string(body), "<Login>unite-user</Login>")
		assert.Contains(t, string(body), "<DatetimeAfter>2024-03-10T14:27:00Z</DatetimeAfter>")
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		fmt.Fprintf(w, soapEnvelope, `<QueryReceiveFaxResponse><QueryReceiveFaxOutput>
			<FaxInfo><FaxId>F100</FaxId><CallerNumber>4165550101</CallerNumber><CalleeNumber>4165550100</CalleeNumber><Pages>4</Pages><CreateTime>2024-03-10T14:29:00Z</CreateTime></FaxInfo>
			<FaxInfo><FaxId>F101</FaxId><CallerNumber>4165550102</CallerNumber><Pages>1</Pages><CreateTime>2024-03-10T14:40:00Z</CreateTime></FaxInfo>
		</QueryReceiveFaxOutput></QueryReceiveFaxResponse>`)
	}))
	defer soapServer.Close()

	p := NewUniteFaxProvider(testLogger(), "http://unused", soapServer.Client(), fastPolicy)
	window := domain.SyncWindow{
		Start: time.Date(2024, 3, 10, 14, 27, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 10, 14, 32, 0, 0, time.UTC),
		Mode:  domain.SyncModeRealtime,
	}

	records, err := p.FetchInboundBatch(context.Background(), torontoPartner(), ufCfg(soapServer.URL), window)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "UNITE_2_F100", records[0].ProviderScopedID())
	assert.Equal(t, "F100", records[0].DocumentRef)
	assert.Equal(t, 4, records[0].Pages)

	// The SOAP client for an endpoint is built once.
	_, err = p.FetchInboundBatch(context.Background(), torontoPartner(), ufCfg(soapServer.URL), window)
	require.NoError(t, err)
	count := 0
	p.soapClients.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, requests)
}

func TestUniteFaxProvider_FetchDocuments(t *testing.T) {
	var fileURL string
	pdfServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/getPdf":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "F100", r.FormValue("FaxId"))
			assert.Equal(t, "pdf", r.FormValue("FaxContentType"))
			assert.Equal(t, "unite-user", r.FormValue("username"))
			assert.Equal(t, "unite-pw", r.FormValue("password"))
			writeJSON(t, w, map[string]string{"url": fileURL})
		case "/files/F100.pdf":
			_, _ = w.Write([]byte("%PDF-F100"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer pdfServer.Close()
	fileURL = pdfServer.URL + "/files/F100.pdf"

	p := NewUniteFaxProvider(testLogger(), pdfServer.URL+"/getPdf", pdfServer.Client(), fastPolicy)
	docs, err := p.FetchDocuments(context.Background(), torontoPartner(), ufCfg("http://soap.test"),
		domain.RawFaxRecord{Provider: domain.ProviderUniteFax, NativeID: "2_F100", DocumentRef: "F100", Pages: 4})
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-F100"), docs.PDF)
	assert.Nil(t, docs.TIFF)
}

func TestUniteFaxProvider_SendOutbound(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		soapServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			s := string(body)
			assert.Contains(t, s, "<FaxNumber>4165550199,4165550198</FaxNumber>")
			assert.Contains(t, s, "<ContentType>application/pdf</ContentType>")
			assert.Contains(t, s, "<AttachmentContent>"+base64.StdEncoding.EncodeToString([]byte("%PDF"))+"</AttachmentContent>")
			w.Header().Set("Content-Type", "text/xml; charset=utf-8")
			fmt.Fprintf(w, soapEnvelope, `<SendFaxResponse><SendFaxOutput><FaxId>OUT-1</FaxId></SendFaxOutput></SendFaxResponse>`)
		}))
		defer soapServer.Close()

		p := NewUniteFaxProvider(testLogger(), "http://unused", soapServer.Client(), fastPolicy)
		res := p.SendOutbound(context.Background(), torontoPartner(), ufCfg(soapServer.URL),
			domain.OutboundDocument{FileName: "template.pdf", PDF: []byte("%PDF")}, []string{"4165550199", "4165550198"})
		assert.True(t, res.Success)
		assert.Equal(t, "OUT-1", res.ProviderMessageID)
		assert.Equal(t, "unite-user", res.SenderFaxNumber)
	})

	t.Run("FaultBecomesFailedResult", func(t *testing.T) {
		soapServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/xml; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, soapEnvelope, `<soap:Fault><faultcode>soap:Client</faultcode><faultstring>Authentication failed</faultstring></soap:Fault>`)
		}))
		defer soapServer.Close()

		p := NewUniteFaxProvider(testLogger(), "http://unused", soapServer.Client(), fastPolicy)
		res := p.SendOutbound(context.Background(), torontoPartner(), ufCfg(soapServer.URL),
			domain.OutboundDocument{FileName: "template.pdf", PDF: []byte("%PDF")}, []string{"4165550199"})
		assert.False(t, res.Success)
		assert.True(t, strings.Contains(res.Error, domain.ErrProviderTransport.Error()))
	})
}
