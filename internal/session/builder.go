package session

import (
	"fmt"
	"strings"
)

// Builder accumulates mutable connection settings and snapshots them
// into an immutable Config. One Builder may produce any number of
// independent Configs.
type Builder struct {
	mode              Mode
	endpoints         []string
	multicastScouting bool
	gossipScouting    bool
}

func NewBuilder() *Builder {
	return &Builder{
		mode:              ModePeer,
		multicastScouting: true,
		gossipScouting:    true,
	}
}

func (b *Builder) SetMode(mode Mode) *Builder {
	b.mode = mode
	return b
}

func (b *Builder) AddEndpoint(endpoint string) *Builder {
	b.endpoints = append(b.endpoints, endpoint)
	return b
}

func (b *Builder) SetEndpoints(endpoints []string) *Builder {
	b.endpoints = endpoints
	return b
}

func (b *Builder) SetMulticastScouting(enabled bool) *Builder {
	b.multicastScouting = enabled
	return b
}

func (b *Builder) SetGossipScouting(enabled bool) *Builder {
	b.gossipScouting = enabled
	return b
}

// Build validates the accumulated fields and returns a Config snapshot.
// Endpoints are validated locally so a bad locator fails before any dial.
func (b *Builder) Build() (Config, error) {
	switch b.mode {
	case ModeClient, ModePeer, ModeRouter:
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrInvalidMode, b.mode)
	}

	if len(b.endpoints) == 0 {
		return Config{}, ErrNoEndpoints
	}

	endpoints := make([]string, 0, len(b.endpoints))
	for _, endpoint := range b.endpoints {
		trimmed := strings.TrimSpace(endpoint)
		if trimmed == "" {
			return Config{}, ErrEmptyEndpoint
		}
		// locator shape is "proto/address", e.g. "tcp/localhost:7447"
		proto, addr, found := strings.Cut(trimmed, "/")
		if !found || proto == "" || addr == "" {
			return Config{}, fmt.Errorf("%w: %q", ErrInvalidLocator, trimmed)
		}
		endpoints = append(endpoints, trimmed)
	}

	return Config{
		mode:              b.mode,
		endpoints:         endpoints,
		multicastScouting: b.multicastScouting,
		gossipScouting:    b.gossipScouting,
	}, nil
}
