package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/faxsync/golang_services/internal/fax_sync_service/domain"
	"github.com/faxsync/golang_services/internal/platform/httpretry"
)

// FileProcessingClient converts documents through the file processing service.
// Converted files are returned as download links and fetched before returning.
type FileProcessingClient struct {
	logger  *slog.Logger
	client  *httpretry.Client
	baseURL string
}

func NewFileProcessingClient(logger *slog.Logger, baseURL string, httpClient *http.Client, policy httpretry.Policy) *FileProcessingClient {
	return &FileProcessingClient{
		logger:  logger.With("component", "file_processing_client"),
		client:  httpretry.New(httpClient, policy),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type conversionResponse struct {
	Success   bool `json:"success"`
	Pages     int  `json:"pages"`
	Documents []struct {
		Index int    `json:"index"`
		URL   string `json:"url"`
	} `json:"documents"`
}

// RenderToPdf converts an HTML document to PDF.
func (c *FileProcessingClient) RenderToPdf(ctx context.Context, html []byte) ([]byte, error) {
	data, _, err := c.convert(ctx, "/convert_to_pdf", uuid.NewString()+".html", html)
	return data, err
}

// ToTiff converts a PDF to a multi-page TIFF and reports the page count.
func (c *FileProcessingClient) ToTiff(ctx context.Context, pdf []byte) ([]byte, int, error) {
	return c.convert(ctx, "/convert_to_tiff", uuid.NewString()+".pdf", pdf)
}

func (c *FileProcessingClient) convert(ctx context.Context, path, fileName string, content []byte) ([]byte, int, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, 0, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, 0, err
	}
	if err := w.Close(); err != nil {
		return nil, 0, err
	}
	payload, contentType := buf.Bytes(), w.FormDataContentType()

	body, err := c.client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s: %v", domain.ErrConversion, path, err)
	}

	var resp conversionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, fmt.Errorf("%w: decoding %s response: %v", domain.ErrConversion, path, err)
	}
	if len(resp.Documents) == 0 || resp.Documents[0].URL == "" {
		return nil, 0, fmt.Errorf("%w: %s returned no document", domain.ErrConversion, path)
	}

	data, err := download(ctx, c.client, resp.Documents[0].URL)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: downloading converted file: %v", domain.ErrConversion, err)
	}
	pages := resp.Pages
	if pages == 0 {
		pages = len(resp.Documents)
	}
	c.logger.DebugContext(ctx, "Document converted", "path", path, "bytes", len(data), "pages", pages)
	return data, pages, nil
}
