package verifyservice

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_InstrumentRecordsStatusAndRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	handler := m.instrument("verify", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/verify", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() != "agentpayments_verifyservice_requests_total" {
			continue
		}
		for _, metric := range f.Metric {
			if labelValue(metric, "route") == "verify" && labelValue(metric, "status") == http.StatusText(http.StatusTeapot) {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a requests_total sample for route=verify status=%s", http.StatusText(http.StatusTeapot))
}

func TestMetrics_InstrumentNilIsPassthrough(t *testing.T) {
	var m *Metrics
	handler := m.instrument("verify", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/verify", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.Label {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
