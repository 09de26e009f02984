package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Event is the outbound click payload delivered to the external
// ingestion endpoint.
type Event struct {
	VisitorKey string `json:"-"`
	Ref        string `json:"ref"`
	Page       string `json:"page"`
	Referrer   string `json:"referrer"`
	UserAgent  string `json:"userAgent"`
}

// IngestClient posts click events to the external ingestion endpoint.
// There is no response body contract beyond the status code.
type IngestClient struct {
	httpClient *http.Client
	endpoint   string
}

func NewIngestClient(endpoint string) *IngestClient {
	return &IngestClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		endpoint: endpoint,
	}
}

// Send delivers one click event. A non-2xx status is an error so the
// caller can leave its retry marker unchanged.
func (c *IngestClient) Send(ctx context.Context, ev Event) error {
	if c.endpoint == "" {
		// No ingestion endpoint configured; treat as delivered.
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal click event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build click request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("click ingestion request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("click ingestion returned status %d", resp.StatusCode)
	}
	return nil
}
