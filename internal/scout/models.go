package scout

import (
	"time"
)

// Filter selects which participant roles a scan looks for.
type Filter int

const (
	FilterPeers Filter = iota
	FilterRouters
	FilterBoth
)

// String renders the filter as the scout expression understood by the
// transport layer.
func (f Filter) String() string {
	switch f {
	case FilterPeers:
		return "peer"
	case FilterRouters:
		return "router"
	case FilterBoth:
		return "peer|router"
	default:
		return "peer|router"
	}
}

// ParseFilter maps a user-facing name onto a Filter.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "peer", "peers":
		return FilterPeers, nil
	case "router", "routers":
		return FilterRouters, nil
	case "both", "all", "":
		return FilterBoth, nil
	default:
		return FilterBoth, ErrUnknownFilter
	}
}

// Record is one discovered participant. It is immutable once created;
// records are kept in arrival order, without deduplication.
type Record struct {
	Payload    string
	ReceivedAt time.Time
}

// Config tunes a Controller.
type Config struct {
	// ScanTimeout bounds one scan; when it elapses the feed is
	// cancelled and the controller returns to idle.
	ScanTimeout time.Duration

	// StreamBuffer is the capacity of the per-scan record channel.
	StreamBuffer int
}

const (
	DefaultScanTimeout  = 5 * time.Second
	DefaultStreamBuffer = 32
)
