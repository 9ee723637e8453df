package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	tests := []struct {
		name    string
		build   func() (Config, error)
		wantErr error
	}{
		{
			name: "valid single endpoint",
			build: func() (Config, error) {
				return NewBuilder().AddEndpoint("tcp/localhost:7447").Build()
			},
		},
		{
			name: "valid multiple endpoints",
			build: func() (Config, error) {
				return NewBuilder().
					SetMode(ModeClient).
					SetEndpoints([]string{"tcp/10.0.0.1:7447", "tcp/10.0.0.2:7447"}).
					Build()
			},
		},
		{
			name: "no endpoints",
			build: func() (Config, error) {
				return NewBuilder().Build()
			},
			wantErr: ErrNoEndpoints,
		},
		{
			name: "empty endpoint",
			build: func() (Config, error) {
				return NewBuilder().AddEndpoint("").Build()
			},
			wantErr: ErrEmptyEndpoint,
		},
		{
			name: "whitespace only endpoint",
			build: func() (Config, error) {
				return NewBuilder().AddEndpoint("   ").Build()
			},
			wantErr: ErrEmptyEndpoint,
		},
		{
			name: "locator without protocol separator",
			build: func() (Config, error) {
				return NewBuilder().AddEndpoint("localhost:7447").Build()
			},
			wantErr: ErrInvalidLocator,
		},
		{
			name: "unknown mode",
			build: func() (Config, error) {
				return NewBuilder().
					SetMode(Mode("broker")).
					AddEndpoint("tcp/localhost:7447").
					Build()
			},
			wantErr: ErrInvalidMode,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBuilder_Defaults(t *testing.T) {
	cfg, err := NewBuilder().AddEndpoint("tcp/localhost:7447").Build()
	require.NoError(t, err)

	assert.Equal(t, ModePeer, cfg.Mode())
	assert.True(t, cfg.MulticastScouting())
	assert.True(t, cfg.GossipScouting())
}

func TestBuilder_SnapshotIndependence(t *testing.T) {
	builder := NewBuilder().
		SetMode(ModePeer).
		AddEndpoint("tcp/localhost:7447").
		SetMulticastScouting(true).
		SetGossipScouting(false)

	cfg, err := builder.Build()
	require.NoError(t, err)

	// mutating the builder after Build must not change the snapshot
	builder.SetMode(ModeRouter).
		AddEndpoint("tcp/10.0.0.9:7447").
		SetMulticastScouting(false).
		SetGossipScouting(true)

	assert.Equal(t, ModePeer, cfg.Mode())
	assert.Equal(t, []string{"tcp/localhost:7447"}, cfg.Endpoints())
	assert.True(t, cfg.MulticastScouting())
	assert.False(t, cfg.GossipScouting())

	// and mutating the returned endpoint slice must not reach the snapshot
	endpoints := cfg.Endpoints()
	endpoints[0] = "tcp/evil:1"
	assert.Equal(t, []string{"tcp/localhost:7447"}, cfg.Endpoints())
}
