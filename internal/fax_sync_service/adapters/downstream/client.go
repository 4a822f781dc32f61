// Package downstream holds the HTTP clients for the platform services the fax
// service collaborates with: partner, inbox, document, referral and file processing.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/faxsync/golang_services/internal/platform/httpretry"
)

// Credentials identify this service to the platform's internal APIs.
type Credentials struct {
	APIKey       string
	ClientName   string
	ClientSecret string
}

func (c Credentials) apply(req *http.Request, partnerID int64) {
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
	}
	if c.ClientName != "" {
		req.Header.Set("x-client-name", c.ClientName)
	}
	if c.ClientSecret != "" {
		req.Header.Set("x-client-secret", c.ClientSecret)
	}
	if partnerID > 0 {
		req.Header.Set("x-partner-id", strconv.FormatInt(partnerID, 10))
	}
}

// newJSONRequest returns a request factory suitable for httpretry; the body is
// re-read on every attempt.
func (c Credentials) newJSONRequest(method, url string, partnerID int64, body any) (func(ctx context.Context) (*http.Request, error), error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
	}
	return func(ctx context.Context) (*http.Request, error) {
		var req *http.Request
		var err error
		if payload != nil {
			req, err = http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		} else {
			req, err = http.NewRequestWithContext(ctx, method, url, nil)
		}
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		c.apply(req, partnerID)
		return req, nil
	}, nil
}

func download(ctx context.Context, client *httpretry.Client, url string) ([]byte, error) {
	return client.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
}
