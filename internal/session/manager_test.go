package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id string

	mu         sync.Mutex
	closeCalls int
	events     *eventLog
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closeCalls++
	h.mu.Unlock()
	if h.events != nil {
		h.events.add("close:" + h.id)
	}
	return nil
}

func (h *fakeHandle) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCalls
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

type fakeDialer struct {
	mu      sync.Mutex
	opens   int
	fail    error
	block   chan struct{}
	events  *eventLog
	handles []*fakeHandle
}

func (d *fakeDialer) Open(ctx context.Context, cfg Config) (Handle, error) {
	d.mu.Lock()
	d.opens++
	n := d.opens
	fail := d.fail
	block := d.block
	d.mu.Unlock()

	if d.events != nil {
		d.events.add(fmt.Sprintf("open:%d", n))
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail != nil {
		return nil, fail
	}

	handle := &fakeHandle{id: fmt.Sprintf("session-%d", n), events: d.events}
	d.mu.Lock()
	d.handles = append(d.handles, handle)
	d.mu.Unlock()
	return handle, nil
}

func (d *fakeDialer) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

func (d *fakeDialer) SetFail(err error) {
	d.mu.Lock()
	d.fail = err
	d.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := NewBuilder().AddEndpoint("tcp/localhost:7447").Build()
	require.NoError(t, err)
	return cfg
}

func TestManager_OpenSuccess(t *testing.T) {
	dialer := &fakeDialer{}
	manager := NewManager(context.Background(), dialer, testLogger())
	defer manager.Close()

	started, err := manager.Open(context.Background(), testConfig(t))
	require.True(t, started)
	require.NoError(t, err)

	status := manager.Status()
	assert.Equal(t, StateOpen, status.State)
	assert.Equal(t, "session-1", status.SessionID)
	assert.Empty(t, status.LastError)
}

func TestManager_CloseBeforeReopen(t *testing.T) {
	events := &eventLog{}
	dialer := &fakeDialer{events: events}
	manager := NewManager(context.Background(), dialer, testLogger())
	defer manager.Close()

	_, err := manager.Open(context.Background(), testConfig(t))
	require.NoError(t, err)

	_, err = manager.Open(context.Background(), testConfig(t))
	require.NoError(t, err)

	// the prior session must be closed exactly once, before the new dial
	assert.Equal(t, []string{"open:1", "close:session-1", "open:2"}, events.all())
	assert.Equal(t, 1, dialer.handles[0].CloseCalls())

	status := manager.Status()
	assert.Equal(t, StateOpen, status.State)
	assert.Equal(t, "session-2", status.SessionID)
}

func TestManager_CloseSessionIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	manager := NewManager(context.Background(), dialer, testLogger())
	defer manager.Close()

	// closing with nothing open is a no-op
	manager.CloseSession()
	assert.Equal(t, StateClosed, manager.Status().State)

	_, err := manager.Open(context.Background(), testConfig(t))
	require.NoError(t, err)

	manager.CloseSession()
	assert.Equal(t, StateClosed, manager.Status().State)

	manager.CloseSession()
	assert.Equal(t, StateClosed, manager.Status().State)

	assert.Equal(t, 1, dialer.handles[0].CloseCalls())
}

func TestManager_FailureRecovery(t *testing.T) {
	dialer := &fakeDialer{}
	dialer.SetFail(errors.New("connect refused"))

	manager := NewManager(context.Background(), dialer, testLogger())
	defer manager.Close()

	started, err := manager.Open(context.Background(), testConfig(t))
	require.True(t, started)
	require.Error(t, err)

	status := manager.Status()
	assert.Equal(t, StateError, status.State)
	assert.Equal(t, "connect refused", status.LastError)
	assert.Empty(t, status.SessionID)

	// retry succeeds without any reset step
	dialer.SetFail(nil)

	started, err = manager.Open(context.Background(), testConfig(t))
	require.True(t, started)
	require.NoError(t, err)

	status = manager.Status()
	assert.Equal(t, StateOpen, status.State)
	assert.Empty(t, status.LastError)
}

func TestManager_AtMostOneOpen(t *testing.T) {
	block := make(chan struct{})
	dialer := &fakeDialer{block: block}
	manager := NewManager(context.Background(), dialer, testLogger())
	defer manager.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		manager.Open(context.Background(), testConfig(t))
	}()

	require.Eventually(t, func() bool {
		return manager.Status().State == StateOpening
	}, time.Second, 5*time.Millisecond)

	// overlapping open is dropped, not queued
	started, err := manager.Open(context.Background(), testConfig(t))
	assert.False(t, started)
	assert.NoError(t, err)
	assert.Equal(t, 1, dialer.Opens())

	close(block)
	<-done

	assert.Equal(t, StateOpen, manager.Status().State)
}

func TestManager_OpenAfterManagerClose(t *testing.T) {
	dialer := &fakeDialer{}
	manager := NewManager(context.Background(), dialer, testLogger())
	manager.Close()

	started, err := manager.Open(context.Background(), testConfig(t))
	assert.False(t, started)
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.Equal(t, 0, dialer.Opens())
}
