package session

import "context"

// Mode defines the topology role a session takes in the mesh.
type Mode string

// Available modes
const (
	ModeClient Mode = "client"
	ModePeer   Mode = "peer"
	ModeRouter Mode = "router"
)

// Config is an immutable snapshot of connection parameters. Values are
// fixed at Build time; mutating the originating Builder afterwards has
// no effect on an already built Config.
type Config struct {
	mode              Mode
	endpoints         []string
	multicastScouting bool
	gossipScouting    bool
}

func (c Config) Mode() Mode { return c.mode }

// Endpoints returns a copy of the connect endpoint list.
func (c Config) Endpoints() []string {
	out := make([]string, len(c.endpoints))
	copy(out, c.endpoints)
	return out
}

func (c Config) MulticastScouting() bool { return c.multicastScouting }

func (c Config) GossipScouting() bool { return c.gossipScouting }

// State describes the lifecycle phase of the managed session.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateError
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a point-in-time read of the manager state. SessionID is set
// only when State is StateOpen, LastError only when State is StateError.
type Status struct {
	State     State
	SessionID string
	LastError string
}

// Handle is a live session obtained from the transport. Close must be
// safe to call multiple times.
type Handle interface {
	ID() string
	Close() error
}

// Dialer opens transport sessions from a built Config.
type Dialer interface {
	Open(ctx context.Context, cfg Config) (Handle, error)
}
