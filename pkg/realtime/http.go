package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/blockflow/pkg/events"
)

const workflowUpdatedPath = "/api/workflow-updated"

// HTTPSink posts events to the socket server, which fans them out to connected editors.
type HTTPSink struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSink(baseURL string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	return &HTTPSink{
		endpoint: strings.TrimSuffix(baseURL, "/") + workflowUpdatedPath,
		client:   client,
	}
}

func (s *HTTPSink) Send(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to notify %s: %w", s.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("realtime server responded with status %d", resp.StatusCode)
	}

	return nil
}
