package publish

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "default backend",
			cfg:  Config{},
		},
		{
			name: "cloudwatch",
			cfg:  Config{Backend: BackendCloudWatch},
		},
		{
			name:    "http without address",
			cfg:     Config{Backend: BackendHTTP},
			wantErr: true,
		},
		{
			name: "http with address",
			cfg: Config{
				Backend: BackendHTTP,
				HTTP:    HTTPConfig{Address: "http://localhost:9000"},
			},
		},
		{
			name:    "remote write without url",
			cfg:     Config{Backend: BackendRemoteWrite},
			wantErr: true,
		},
		{
			name:    "clickhouse without endpoint",
			cfg:     Config{Backend: BackendClickHouse},
			wantErr: true,
		},
		{
			name: "clickhouse with endpoint",
			cfg: Config{
				Backend:    BackendClickHouse,
				ClickHouse: ClickHouseConfig{Endpoint: "localhost:9000"},
			},
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "statsd"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, testLog(), Config{
		Backend: BackendHTTP,
		HTTP:    HTTPConfig{Address: "http://localhost:9000"},
	})
	require.NoError(t, err)
	assert.IsType(t, &HTTP{}, p)
	assert.Equal(t, "http", p.Name())

	p, err = New(ctx, testLog(), Config{
		Backend:     BackendRemoteWrite,
		RemoteWrite: RemoteWriteConfig{URL: "http://localhost:8428/api/v1/write"},
	})
	require.NoError(t, err)
	assert.IsType(t, &RemoteWrite{}, p)

	p, err = New(ctx, testLog(), Config{
		Backend:    BackendClickHouse,
		ClickHouse: ClickHouseConfig{Endpoint: "localhost:9000"},
	})
	require.NoError(t, err)
	assert.IsType(t, &ClickHouse{}, p)

	_, err = New(ctx, testLog(), Config{Backend: "statsd"})
	require.Error(t, err)
}
