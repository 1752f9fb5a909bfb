package telemetry_test

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/upsbridge/internal/telemetry"
	"go.uber.org/zap/zapcore"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, telemetry.ParseLevel(tt.in))
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := telemetry.NewLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cli, err := telemetry.NewCLILogger("info")
	require.NoError(t, err)
	assert.NotNil(t, cli)
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Each registry gets its own collectors; registering twice must not panic.
	m1 := telemetry.NewMetrics(prometheus.NewRegistry())
	m2 := telemetry.NewMetrics(prometheus.NewRegistry())

	m1.RecordRequest("create_shipment", "ups", "success", 0.2)
	assert.Equal(t, 1.0, counterValue(t, m1.RequestsTotal.WithLabelValues("create_shipment", "ups", "success")))
	assert.Equal(t, 0.0, counterValue(t, m2.RequestsTotal.WithLabelValues("create_shipment", "ups", "success")))
}

func TestMetrics_RecordTokenRefresh(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())

	m.RecordTokenRefresh(nil)
	m.RecordTokenRefresh(nil)
	m.RecordTokenRefresh(errors.New("401"))

	assert.Equal(t, 2.0, counterValue(t, m.TokenRefreshes.WithLabelValues("success")))
	assert.Equal(t, 1.0, counterValue(t, m.TokenRefreshes.WithLabelValues("error")))
}

func TestMetrics_RecordError(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())

	m.RecordError("ups", "auth")

	assert.Equal(t, 1.0, counterValue(t, m.CarrierErrors.WithLabelValues("ups", "auth")))
}
