package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/httpretry"
)

// DocumentClient saves and resolves patient documents in the document service.
type DocumentClient struct {
	logger  *slog.Logger
	client  *httpretry.Client
	baseURL string
	creds   Credentials
}

func NewDocumentClient(logger *slog.Logger, baseURL string, creds Credentials, httpClient *http.Client, policy httpretry.Policy) *DocumentClient {
	return &DocumentClient{
		logger:  logger.With("component", "document_client"),
		client:  httpretry.New(httpClient, policy),
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
	}
}

// SaveFile stores pdf against the patient and returns the new document id.
func (c *DocumentClient) SaveFile(ctx context.Context, partnerID int64, patientID, referralID *int64, fileName string, pdf []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("document", fileName)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(pdf); err != nil {
		return "", err
	}
	if patientID != nil {
		_ = w.WriteField("patientId", strconv.FormatInt(*patientID, 10))
	}
	if referralID != nil {
		_ = w.WriteField("referralId", strconv.FormatInt(*referralID, 10))
	}
	_ = w.WriteField("documentClassification", fileName)
	if err := w.Close(); err != nil {
		return "", err
	}
	payload, contentType := buf.Bytes(), w.FormDataContentType()

	body, err := c.client.DoOnce(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/patient/file", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		c.creds.apply(req, partnerID)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("saving document for partner %d: %w", partnerID, err)
	}
	var saved struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &saved); err != nil {
		return "", fmt.Errorf("decoding saved document: %w", err)
	}
	c.logger.InfoContext(ctx, "Outbound fax document saved", "partner_id", partnerID, "document_id", saved.ID)
	return saved.ID, nil
}

// FetchDocument resolves ref to its file URL and downloads it.
func (c *DocumentClient) FetchDocument(ctx context.Context, partnerID int64, ref domain.DocumentRef) ([]byte, error) {
	q := url.Values{
		"patientId":  {strconv.FormatInt(ref.PatientID, 10)},
		"documentId": {ref.DocumentID},
	}
	newReq, err := c.creds.newJSONRequest(http.MethodGet, c.baseURL+"/internal/patient/file?"+q.Encode(), partnerID, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.client.Do(ctx, newReq)
	if err != nil {
		return nil, fmt.Errorf("resolving document %s: %w", ref.DocumentID, err)
	}
	fileURL := gjson.GetBytes(body, "result.file").String()
	if fileURL == "" {
		return nil, fmt.Errorf("document %s has no file: %w", ref.DocumentID, domain.ErrNotFound)
	}
	data, err := download(ctx, c.client, fileURL)
	if err != nil {
		return nil, fmt.Errorf("downloading document %s: %w", ref.DocumentID, err)
	}
	return data, nil
}
