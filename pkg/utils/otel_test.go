// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var otelEnvKeys = []string{
	"OTEL_SERVICE_NAME",
	"OTEL_SERVICE_VERSION",
	"OTEL_EXPORTER_OTLP_PROTOCOL",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_INSECURE",
	"OTEL_TRACES_EXPORTER",
	"OTEL_TRACES_SAMPLE_RATIO",
	"OTEL_METRICS_EXPORTER",
	"OTEL_LOGS_EXPORTER",
}

// clearOTelEnv blanks every OTEL_* variable for the duration of the test.
func clearOTelEnv(t *testing.T) {
	t.Helper()
	for _, key := range otelEnvKeys {
		t.Setenv(key, "")
	}
}

func TestOTelConfigFromEnv_ExportersDefaultToNone(t *testing.T) {
	clearOTelEnv(t)

	cfg := OTelConfigFromEnv()

	assert.Equal(t, "lfx-v2-meeting-ingest-service", cfg.ServiceName)
	assert.Equal(t, OTelProtocolGRPC, cfg.Protocol)
	assert.Equal(t, OTelExporterNone, cfg.TracesExporter)
	assert.Equal(t, OTelExporterNone, cfg.MetricsExporter)
	assert.Equal(t, OTelExporterNone, cfg.LogsExporter)
	assert.Equal(t, 1.0, cfg.TracesSampleRatio)
	assert.False(t, cfg.Insecure)
}

func TestOTelConfigFromEnv_Overrides(t *testing.T) {
	clearOTelEnv(t)
	t.Setenv("OTEL_SERVICE_NAME", "ingest-staging")
	t.Setenv("OTEL_SERVICE_VERSION", "1.4.0")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", OTelProtocolHTTP)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("OTEL_TRACES_EXPORTER", OTelExporterOTLP)
	t.Setenv("OTEL_METRICS_EXPORTER", OTelExporterOTLP)

	cfg := OTelConfigFromEnv()

	assert.Equal(t, OTelConfig{
		ServiceName:       "ingest-staging",
		ServiceVersion:    "1.4.0",
		Protocol:          OTelProtocolHTTP,
		Endpoint:          "collector:4318",
		Insecure:          true,
		TracesExporter:    OTelExporterOTLP,
		TracesSampleRatio: 1.0,
		MetricsExporter:   OTelExporterOTLP,
		LogsExporter:      OTelExporterNone,
	}, cfg)
}

func TestOTelConfigFromEnv_TracesSampleRatio(t *testing.T) {
	tests := []struct {
		raw      string
		expected float64
	}{
		{raw: "0.25", expected: 0.25},
		{raw: "0", expected: 0},
		{raw: "1", expected: 1},
		{raw: "1.5", expected: 1},
		{raw: "-0.1", expected: 1},
		{raw: "half", expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			clearOTelEnv(t)
			t.Setenv("OTEL_TRACES_SAMPLE_RATIO", tt.raw)

			assert.Equal(t, tt.expected, OTelConfigFromEnv().TracesSampleRatio)
		})
	}
}

func TestSetupOTelSDKWithConfig_NoExporters(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := SetupOTelSDKWithConfig(context.Background(), OTelConfig{
		ServiceName:     "test",
		TracesExporter:  OTelExporterNone,
		MetricsExporter: OTelExporterNone,
		LogsExporter:    OTelExporterNone,
	})

	require.NoError(t, err)
	assert.Equal(t, before, otel.GetTracerProvider(), "no tracer provider is installed")
	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()), "shutdown twice is a no-op")
}

func TestSetupOTelSDKWithConfig_TraceProtocols(t *testing.T) {
	for _, protocol := range []string{OTelProtocolGRPC, OTelProtocolHTTP} {
		t.Run(protocol, func(t *testing.T) {
			previous := otel.GetTracerProvider()
			t.Cleanup(func() { otel.SetTracerProvider(previous) })

			shutdown, err := SetupOTelSDKWithConfig(context.Background(), OTelConfig{
				ServiceName:       "test",
				Protocol:          protocol,
				Endpoint:          "localhost:4317",
				Insecure:          true,
				TracesExporter:    OTelExporterOTLP,
				TracesSampleRatio: 0.5,
				MetricsExporter:   OTelExporterNone,
				LogsExporter:      OTelExporterNone,
			})
			require.NoError(t, err)

			_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
			assert.True(t, ok, "an SDK tracer provider is installed")

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_ = shutdown(ctx)
		})
	}
}

func TestNewResource_ServiceAttributes(t *testing.T) {
	res, err := newResource(OTelConfig{ServiceName: "ingest", ServiceVersion: "2.0.0"})
	require.NoError(t, err)

	set := res.Set()
	name, ok := set.Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "ingest", name.AsString())
	version, ok := set.Value(attribute.Key("service.version"))
	require.True(t, ok)
	assert.Equal(t, "2.0.0", version.AsString())

	res, err = newResource(OTelConfig{ServiceName: "ingest"})
	require.NoError(t, err)
	_, ok = res.Set().Value(attribute.Key("service.version"))
	assert.False(t, ok, "an empty version is not recorded")
}

func TestNewPropagator_IncludesJaeger(t *testing.T) {
	fields := newPropagator().Fields()

	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "baggage")
	assert.Contains(t, fields, "uber-trace-id")
}
