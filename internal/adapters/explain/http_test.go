package explain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var event = domain.ThreatEvent{
	ID:          "ev-1",
	DeviceID:    "phone-01",
	Channel:     domain.ChannelWireless,
	Severity:    domain.SeverityCritical,
	Description: "Wireless identity anomaly",
	Evidence:    []string{"vendor CIMSYS vs TP-Link", "security OPEN vs WPA2"},
}

func TestHTTPExplainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req explainRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ev-1", req.EventID)
		assert.Equal(t, "Wireless identity", req.Category)
		assert.Len(t, req.Evidence, 2)
		json.NewEncoder(w).Encode(map[string]string{"narrative": "  Likely evil twin access point.  "})
	}))
	defer srv.Close()

	got, err := NewHTTPExplainer(srv.URL).Explain(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "Likely evil twin access point.", got)
}

func TestHTTPExplainer_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		}},
		{"empty narrative", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"narrative":""}`))
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			_, err := NewHTTPExplainer(srv.URL).Explain(context.Background(), event)
			assert.Error(t, err)
		})
	}
}

func TestHTTPExplainer_RespectsDeadline(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewHTTPExplainer(srv.URL).Explain(ctx, event)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
