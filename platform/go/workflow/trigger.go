// Package workflow posts fire-and-forget events to an external workflow
// engine (e.g., the supplier validation webhook). Delivery failures are
// logged, never surfaced to callers.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Payload is the JSON body posted to the workflow endpoint.
type Payload struct {
	Company  string         `json:"company"`
	Supplier string         `json:"supplier,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// Trigger delivers payloads to a single configured endpoint.
type Trigger struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewTrigger constructs a Trigger. An empty endpoint disables delivery (Fire
// becomes a no-op), which keeps local setups working without a workflow host.
func NewTrigger(endpoint string, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Fire posts the payload. Errors are logged and swallowed.
func (t *Trigger) Fire(ctx context.Context, payload Payload) {
	if t.endpoint == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		t.logger.Error("encode workflow payload", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		t.logger.Error("build workflow request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Error("deliver workflow event", zap.String("endpoint", t.endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		t.logger.Error("workflow endpoint rejected event",
			zap.String("endpoint", t.endpoint),
			zap.String("status", fmt.Sprintf("%d", resp.StatusCode)))
	}
}
