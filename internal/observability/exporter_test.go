package observability

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOTLPProtocol(t *testing.T) {
	for in, want := range map[string]otlpProtocol{
		"":              otlpProtocolGRPC,
		"grpc":          otlpProtocolGRPC,
		" HTTP ":        otlpProtocolHTTP,
		"http/protobuf": otlpProtocolHTTP,
	} {
		got, err := parseOTLPProtocol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseOTLPProtocol("thrift")
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}

func TestNewRetryPolicy(t *testing.T) {
	assert.Nil(t, newRetryPolicy(OTLPExporterConfig{RetryMaxAttempts: 3}))
	assert.Nil(t, newRetryPolicy(OTLPExporterConfig{RetryEnabled: true}))

	p := newRetryPolicy(OTLPExporterConfig{RetryEnabled: true, RetryMaxAttempts: 3})
	require.NotNil(t, p)
	assert.Equal(t, time.Second, p.initial)
	assert.Equal(t, 5*time.Second, p.maxInterval)
	assert.Equal(t, 15*time.Second, p.maxElapsed)
}

func TestBuildTLSConfig(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-cert"), 0o600))

	tests := []struct {
		name    string
		cfg     OTLPExporterConfig
		wantErr string
	}{
		{name: "defaults", cfg: OTLPExporterConfig{}},
		{name: "missing CA", cfg: OTLPExporterConfig{TLSCertFile: filepath.Join(dir, "absent.pem")}, wantErr: "failed to read OTLP TLS CA file"},
		{name: "unparseable CA", cfg: OTLPExporterConfig{TLSCertFile: garbage}, wantErr: "failed to parse OTLP TLS CA file"},
		{name: "cert without key", cfg: OTLPExporterConfig{TLSClientCertFile: garbage}, wantErr: "must both be set"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := buildTLSConfig(tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfg)
		})
	}
}

func TestResolveExporterSettings(t *testing.T) {
	s, err := resolveExporterSettings(OTLPExporterConfig{
		Endpoint:         "http://collector:4318",
		Protocol:         "http",
		Insecure:         true,
		Headers:          map[string]string{"x": "y"},
		Timeout:          time.Second,
		Compression:      "gzip",
		RetryEnabled:     true,
		RetryMaxAttempts: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, otlpProtocolHTTP, s.protocol)
	assert.True(t, s.endpointURL)
	assert.Nil(t, s.tls)
	assert.True(t, s.gzip)
	require.NotNil(t, s.retry)

	assert.Len(t, httpTraceOptions(s), 6)
	assert.Len(t, httpLogOptions(s), 6)
	assert.Len(t, grpcTraceOptions(s), 6)

	s.retry = nil
	s.headers = nil
	assert.Len(t, grpcLogOptions(s), 4)

	secure, err := resolveExporterSettings(OTLPExporterConfig{Endpoint: "collector:4317"})
	require.NoError(t, err)
	assert.NotNil(t, secure.tls)
	assert.False(t, secure.endpointURL)
	assert.Len(t, grpcTraceOptions(secure), 2)

	_, err = resolveExporterSettings(OTLPExporterConfig{Protocol: "udp"})
	assert.Error(t, err)
}
