package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/upsbridge/internal/booking"
	"github.com/tournevent/upsbridge/internal/labelstore"
	"github.com/tournevent/upsbridge/internal/server"
	"github.com/tournevent/upsbridge/internal/telemetry"
	"github.com/tournevent/upsbridge/pkg/shipper"
	"github.com/tournevent/upsbridge/pkg/shipper/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const agenciesYAML = `
agencies:
  - id: "7"
    company: Acme Travel
    firstname: Ann
    lastname: Agent
    phone: "4045551234"
    address: 100 Peachtree St
    city: Atlanta
    state_code: GA
    zipcode: "30303"
`

const parcelJSON = `{
  "id": "42",
  "agency_id": "7",
  "depth": 12, "width": 10, "height": 8, "weight": 5,
  "receiver": {
    "company": "Receiver Co",
    "firstname": "Rob",
    "lastname": "Receiver",
    "phone": "3035555678",
    "address": "1600 Broadway",
    "city": "Denver",
    "state_code": "CO",
    "zipcode": "80202"
  }
}`

type tokenCheck struct{ err error }

func (c tokenCheck) CheckToken(context.Context) error { return c.err }

func newTestServer(t *testing.T, opts ...server.Option) (*server.Server, *mock.Client) {
	t.Helper()

	logger := otelzap.New(zap.NewNop())
	carrier := mock.New("ups")
	registry := shipper.NewRegistry()
	registry.Register(carrier)

	agencies, err := booking.ParseYAMLDirectory([]byte(agenciesYAML))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	svc := booking.NewService(
		booking.Config{},
		registry,
		agencies,
		labelstore.New(afero.NewMemMapFs(), "/labels"),
		logger,
		telemetry.NewMetrics(reg),
	)

	opts = append([]server.Option{server.WithGatherer(reg)}, opts...)
	return server.New(server.Config{Port: 8080}, svc, logger, opts...), carrier
}

func do(t *testing.T, s *server.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp["error"]
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Ready(t *testing.T) {
	s, _ := newTestServer(t, server.WithTokenChecker(tokenCheck{}))
	rec := do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s, _ = newTestServer(t, server.WithTokenChecker(tokenCheck{err: errors.New("oauth login failed (HTTP 401)")}))
	rec = do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decodeError(t, rec), "HTTP 401")
}

func TestServer_CreateShipment(t *testing.T) {
	s, carrier := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/shipments", parcelJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result booking.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "42", result.ParcelID)
	assert.NotEmpty(t, result.TrackingNumber)
	assert.Equal(t, 14.00, result.Cost)
	assert.True(t, strings.HasPrefix(result.Label, "shipping_label_"))
	assert.Len(t, carrier.Orders(), 1)

	rec = do(t, s, http.MethodGet, "/v1/labels/files/"+result.Label, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, mock.LabelBytes, rec.Body.Bytes())
}

func TestServer_CreateShipment_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		carrierErr error
		wantStatus int
	}{
		{"malformed json", `{"id":`, nil, http.StatusBadRequest},
		{"unknown field", `{"parcel_id":"42"}`, nil, http.StatusBadRequest},
		{"invalid parcel", `{"id":"42","agency_id":"7"}`, nil, http.StatusBadRequest},
		{"unknown agency", strings.Replace(parcelJSON, `"agency_id": "7"`, `"agency_id": "404"`, 1), nil, http.StatusNotFound},
		{"auth failure", parcelJSON, shipper.NewShipperError("ups", "AUTH_FAILED", "no token").WithCause(shipper.ErrAuthenticationFailed), http.StatusUnauthorized},
		{"carrier failure", parcelJSON, shipper.NewShipperError("ups", "HTTP_500", "down").WithStatusCode(500), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, carrier := newTestServer(t)
			carrier.Err = tt.carrierErr

			rec := do(t, s, http.MethodPost, "/v1/shipments", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestServer_Quote(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/v1/quotes", parcelJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		ParcelID string `json:"parcel_id"`
		Rates    []struct {
			ServiceCode string `json:"service_code"`
			TotalPrice  struct {
				Amount   string `json:"amount"`
				Currency string `json:"currency"`
			} `json:"total_price"`
		} `json:"rates"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "42", resp.ParcelID)
	require.Len(t, resp.Rates, 2)
	assert.Equal(t, "03", resp.Rates[0].ServiceCode)
	assert.Equal(t, "14.00", resp.Rates[0].TotalPrice.Amount)
	assert.Equal(t, "USD", resp.Rates[0].TotalPrice.Currency)
}

func TestServer_CancelShipment(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodDelete, "/v1/shipments/1Z12345E0205271688?reason=duplicate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "1Z12345E0205271688", resp["shipment_id"])
	assert.Equal(t, "cancelled", resp["status"])
}

func TestServer_RecoverLabel(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/v1/labels/1Z12345E0205271688", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Label-Name"), "shipping_label_"))
	assert.Equal(t, mock.LabelBytes, rec.Body.Bytes())
}

func TestServer_StoredLabelNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/v1/labels/files/shipping_label_missing.gif", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/v1/shipments", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t)

	do(t, s, http.MethodPost, "/v1/shipments", parcelJSON)
	rec := do(t, s, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `upsbridge_requests_total{carrier="ups",operation="create_shipment",status="success"} 1`)
}
