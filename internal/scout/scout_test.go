package scout

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zmesh/internal/transport"
)

type fakeFeed struct {
	hellos chan transport.Hello
	errs   chan error
}

type fakeScouter struct {
	mu       sync.Mutex
	scouts   int
	lastWhat string
	startErr error
	feeds    []*fakeFeed
}

func (s *fakeScouter) Scout(ctx context.Context, what string) (*transport.Scan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scouts++
	s.lastWhat = what

	if s.startErr != nil {
		return nil, s.startErr
	}

	feed := &fakeFeed{
		hellos: make(chan transport.Hello, 16),
		errs:   make(chan error, 1),
	}
	s.feeds = append(s.feeds, feed)
	return &transport.Scan{Hellos: feed.hellos, Errs: feed.errs}, nil
}

func (s *fakeScouter) Scouts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scouts
}

func (s *fakeScouter) LastWhat() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWhat
}

func (s *fakeScouter) Feed(i int) *fakeFeed {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeds[i]
}

// waitForScouts blocks until the controller goroutine has started the
// n-th feed.
func waitForScouts(t *testing.T, s *fakeScouter, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Scouts() >= n
	}, time.Second, time.Millisecond)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func hello(zid string) transport.Hello {
	return transport.Hello{ZID: zid, WhatAmI: "peer", Locators: []string{"tcp/10.0.0.1:7447"}}
}

func TestController_ArrivalOrderPreserved(t *testing.T) {
	scouter := &fakeScouter{}
	controller := NewController(context.Background(), scouter, Config{ScanTimeout: time.Second}, testLogger())
	defer controller.Close()

	out, started := controller.Start(FilterPeers)
	require.True(t, started)
	waitForScouts(t, scouter, 1)
	assert.Equal(t, "peer", scouter.LastWhat())

	feed := scouter.Feed(0)
	go func() {
		// jitter between deliveries must not affect ordering
		feed.hellos <- hello("r1")
		time.Sleep(10 * time.Millisecond)
		feed.hellos <- hello("r2")
		time.Sleep(2 * time.Millisecond)
		feed.hellos <- hello("r3")
		close(feed.hellos)
	}()

	var streamed []string
	for record := range out {
		streamed = append(streamed, record.Payload)
	}

	want := []string{hello("r1").String(), hello("r2").String(), hello("r3").String()}
	assert.Equal(t, want, streamed)

	records := controller.Records()
	require.Len(t, records, 3)
	for i, record := range records {
		assert.Equal(t, want[i], record.Payload)
		assert.False(t, record.ReceivedAt.IsZero())
	}

	assert.False(t, controller.Scanning())
	assert.NoError(t, controller.Err())
}

func TestController_AtMostOneScan(t *testing.T) {
	scouter := &fakeScouter{}
	controller := NewController(context.Background(), scouter, Config{ScanTimeout: time.Minute}, testLogger())
	defer controller.Close()

	out, started := controller.Start(FilterBoth)
	require.True(t, started)
	waitForScouts(t, scouter, 1)

	scouter.Feed(0).hellos <- hello("r1")

	require.Eventually(t, func() bool {
		return len(controller.Records()) == 1
	}, time.Second, 5*time.Millisecond)

	// a second Start while scanning is dropped: no reset, no second feed
	dropped, startedAgain := controller.Start(FilterBoth)
	assert.False(t, startedAgain)
	assert.Nil(t, dropped)
	assert.Equal(t, 1, scouter.Scouts())
	assert.Len(t, controller.Records(), 1)

	close(scouter.Feed(0).hellos)
	for range out {
	}
}

func TestController_TimeoutClearsScanningFlag(t *testing.T) {
	scouter := &fakeScouter{}
	controller := NewController(context.Background(), scouter, Config{ScanTimeout: 50 * time.Millisecond}, testLogger())
	defer controller.Close()

	// the feed never completes on its own
	out, started := controller.Start(FilterRouters)
	require.True(t, started)
	require.True(t, controller.Scanning())

	for range out {
	}

	assert.False(t, controller.Scanning())
	// a timed out scan is not a failed scan
	assert.NoError(t, controller.Err())
}

func TestController_FeedErrorResetsToIdle(t *testing.T) {
	scouter := &fakeScouter{}
	controller := NewController(context.Background(), scouter, Config{ScanTimeout: time.Minute}, testLogger())
	defer controller.Close()

	out, started := controller.Start(FilterPeers)
	require.True(t, started)
	waitForScouts(t, scouter, 1)

	feedErr := errors.New("multicast socket closed")
	scouter.Feed(0).errs <- feedErr

	for range out {
	}

	assert.False(t, controller.Scanning())
	assert.ErrorIs(t, controller.Err(), feedErr)

	// the controller stays usable after a feed failure
	out, started = controller.Start(FilterPeers)
	require.True(t, started)
	waitForScouts(t, scouter, 2)
	assert.NoError(t, controller.Err())
	assert.Empty(t, controller.Records())

	close(scouter.Feed(1).hellos)
	for range out {
	}
}

func TestController_StartErrorSurfaced(t *testing.T) {
	startErr := errors.New("no multicast interface")
	scouter := &fakeScouter{startErr: startErr}
	controller := NewController(context.Background(), scouter, Config{}, testLogger())
	defer controller.Close()

	out, started := controller.Start(FilterPeers)
	require.True(t, started)

	for range out {
	}

	assert.False(t, controller.Scanning())
	assert.ErrorIs(t, controller.Err(), startErr)
}

func TestController_CloseStopsUpdates(t *testing.T) {
	scouter := &fakeScouter{}
	controller := NewController(context.Background(), scouter, Config{ScanTimeout: time.Minute}, testLogger())

	out, started := controller.Start(FilterPeers)
	require.True(t, started)
	waitForScouts(t, scouter, 1)

	scouter.Feed(0).hellos <- hello("r1")
	require.Eventually(t, func() bool {
		return len(controller.Records()) == 1
	}, time.Second, 5*time.Millisecond)

	controller.Close()

	// late events after disposal are not applied and do not panic
	select {
	case scouter.Feed(0).hellos <- hello("r2"):
	default:
	}

	for range out {
	}
	assert.Len(t, controller.Records(), 1)

	// a disposed controller refuses new scans
	_, startedAgain := controller.Start(FilterPeers)
	assert.False(t, startedAgain)
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{in: "peer", want: FilterPeers},
		{in: "peers", want: FilterPeers},
		{in: "router", want: FilterRouters},
		{in: "routers", want: FilterRouters},
		{in: "both", want: FilterBoth},
		{in: "", want: FilterBoth},
		{in: "broker", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseFilter(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownFilter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFilter_String(t *testing.T) {
	assert.Equal(t, "peer", FilterPeers.String())
	assert.Equal(t, "router", FilterRouters.String())
	assert.Equal(t, "peer|router", FilterBoth.String())
}
