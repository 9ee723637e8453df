package scout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"zmesh/internal/transport"
	"zmesh/internal/util/logger/sl"
)

// Controller runs one discovery scan at a time over a transport
// Scouter. Records accumulate in arrival order for the duration of a
// scan and are cleared when the next scan starts. Overlapping Start
// calls are dropped, not queued.
type Controller struct {
	scouter transport.Scouter
	config  Config
	log     *slog.Logger

	mu       sync.Mutex
	scanning bool
	closed   bool
	records  []Record
	lastErr  error

	ctx    context.Context
	cancel context.CancelFunc
}

func NewController(ctx context.Context, scouter transport.Scouter, config Config, log *slog.Logger) *Controller {
	if config.ScanTimeout <= 0 {
		config.ScanTimeout = DefaultScanTimeout
	}
	if config.StreamBuffer <= 0 {
		config.StreamBuffer = DefaultStreamBuffer
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Controller{
		scouter: scouter,
		config:  config,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins a scan for the given filter and streams records as they
// arrive. The channel is closed when the scan ends (feed end, timeout
// or feed error). When a scan is already in progress the call is a
// no-op: the accumulated records are untouched and (nil, false) is
// returned.
func (c *Controller) Start(filter Filter) (<-chan Record, bool) {
	op := "scout.Controller.Start"
	log := c.log.With(slog.String("op", op))

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		log.Debug("Controller closed, scan dropped")
		return nil, false
	}
	if c.scanning {
		c.mu.Unlock()
		log.Debug("Scan already in progress, call dropped")
		return nil, false
	}
	c.scanning = true
	c.records = nil
	c.lastErr = nil
	c.mu.Unlock()

	// the scan deadline cancels the feed as well, so a timed out scan
	// does not keep consuming the transport
	scanCtx, cancel := context.WithTimeout(c.ctx, c.config.ScanTimeout)

	out := make(chan Record, c.config.StreamBuffer)

	log.Info("Scan started", slog.String("filter", filter.String()))
	go c.run(scanCtx, cancel, filter, out)

	return out, true
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, filter Filter, out chan<- Record) {
	op := "scout.Controller.run"
	log := c.log.With(slog.String("op", op))

	defer cancel()
	defer close(out)
	defer c.finish()

	scan, err := c.scouter.Scout(ctx, filter.String())
	if err != nil {
		log.Error("Failed to start scout feed", sl.Err(err))
		c.setErr(err)
		return
	}

	errs := scan.Errs
	for {
		select {
		case <-ctx.Done():
			log.Info("Scan ended", slog.String("reason", ctx.Err().Error()))
			return

		case err, ok := <-errs:
			if !ok {
				// a nil channel never fires again
				errs = nil
				continue
			}
			log.Error("Scout feed failed", sl.Err(err))
			c.setErr(err)
			return

		case hello, ok := <-scan.Hellos:
			if !ok {
				log.Info("Scout feed ended")
				return
			}

			record := Record{
				Payload:    hello.String(),
				ReceivedAt: time.Now(),
			}
			if !c.append(record) {
				// controller disposed mid-scan; stop applying updates
				return
			}

			select {
			case out <- record:
			case <-ctx.Done():
				return
			}
		}
	}
}

// append stores a record in arrival order. It refuses the update when
// the controller has been closed.
func (c *Controller) append(record Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.records = append(c.records, record)
	return true
}

func (c *Controller) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.lastErr = err
	}
}

func (c *Controller) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scanning = false
}

// Scanning reports whether a scan is currently in progress.
func (c *Controller) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// Records returns a copy of the records accumulated by the current or
// most recent scan, in arrival order.
func (c *Controller) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Err returns the terminal error of the most recent scan, if any. A
// new Start clears it.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close disposes the controller: any in-flight scan stops applying
// updates and further Start calls are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
}
