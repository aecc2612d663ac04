// Package explain asks an external enrichment service for a plain-language
// narrative of a threat event.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrEmptyNarrative is returned when the service answers without text.
var ErrEmptyNarrative = errors.New("explainer returned an empty narrative")

const maxResponseBytes = 64 << 10

type explainRequest struct {
	EventID     string   `json:"event_id"`
	DeviceID    string   `json:"device_id"`
	Channel     string   `json:"channel"`
	Category    string   `json:"category"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

type explainResponse struct {
	Narrative string `json:"narrative"`
}

// HTTPExplainer posts the event to an enrichment endpoint. The caller bounds
// the call with its context deadline.
type HTTPExplainer struct {
	url    string
	client *http.Client
}

var _ ports.Explainer = (*HTTPExplainer)(nil)

func NewHTTPExplainer(url string) *HTTPExplainer {
	return &HTTPExplainer{
		url:    url,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (x *HTTPExplainer) Explain(ctx context.Context, event domain.ThreatEvent) (string, error) {
	body, err := json.Marshal(explainRequest{
		EventID:     event.ID,
		DeviceID:    event.DeviceID,
		Channel:     string(event.Channel),
		Category:    event.Channel.Label(),
		Severity:    string(event.Severity),
		Description: event.Description,
		Evidence:    event.Evidence,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("explainer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("explainer returned %s", resp.Status)
	}

	var out explainResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode explainer response: %w", err)
	}
	narrative := strings.TrimSpace(out.Narrative)
	if narrative == "" {
		return "", ErrEmptyNarrative
	}
	return narrative, nil
}
