package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"zmesh/internal/util/logger/sl"
)

const (
	beaconPrefix      = "zmesh"
	defaultInterval   = time.Second
	helloBufferSize   = 32
	maxBeaconSize     = 1024
	readDeadlineSlice = time.Second
)

// MulticastConfig configures the UDP multicast scouting mechanism.
type MulticastConfig struct {
	Group     string // multicast group, e.g. "224.0.0.224:7446"
	LocalZID  string
	LocalWhat string // role announced in our own beacons
	LocalPort int    // TCP port announced in our own beacons
	Interval  time.Duration
}

// MulticastScouter discovers mesh participants by sending periodic
// beacons to a multicast group and collecting the beacons of others.
type MulticastScouter struct {
	config MulticastConfig
	log    *slog.Logger
}

func NewMulticastScouter(config MulticastConfig, log *slog.Logger) *MulticastScouter {
	if config.Interval <= 0 {
		config.Interval = defaultInterval
	}
	return &MulticastScouter{
		config: config,
		log:    log.With(slog.String("scouting", "multicast")),
	}
}

// Scout begins one scan. Both goroutines stop when ctx ends; the hello
// channel is closed by the listener on exit.
func (s *MulticastScouter) Scout(ctx context.Context, what string) (*Scan, error) {
	addr, err := net.ResolveUDPAddr("udp", s.config.Group)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast group: %w", err)
	}

	listenConn, err := net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("listen multicast: %w", err)
	}

	sendConn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		listenConn.Close()
		return nil, fmt.Errorf("dial multicast: %w", err)
	}

	hellos := make(chan Hello, helloBufferSize)
	errs := make(chan error, 1)

	go s.sendBeacons(ctx, sendConn)
	go s.listen(ctx, listenConn, what, hellos, errs)

	s.log.Info("Scout started",
		slog.String("group", addr.String()),
		slog.String("what", what),
	)

	return &Scan{Hellos: hellos, Errs: errs}, nil
}

func (s *MulticastScouter) sendBeacons(ctx context.Context, conn *net.UDPConn) {
	defer conn.Close()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := conn.Write(s.beaconPayload()); err != nil {
			s.log.Error("Beacon send failed", sl.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// beaconPayload renders "zmesh:<whatami>:<zid>:<port>:<token>".
func (s *MulticastScouter) beaconPayload() []byte {
	token := make([]byte, 8)
	rand.Read(token)
	return []byte(fmt.Sprintf("%s:%s:%s:%d:%s",
		beaconPrefix,
		s.config.LocalWhat,
		s.config.LocalZID,
		s.config.LocalPort,
		hex.EncodeToString(token),
	))
}

func (s *MulticastScouter) listen(
	ctx context.Context,
	conn *net.UDPConn,
	what string,
	hellos chan<- Hello,
	errs chan<- error,
) {
	defer close(hellos)
	defer conn.Close()

	if err := conn.SetReadBuffer(1024 * 1024); err != nil {
		s.log.Warn("Set read buffer failed", sl.Err(err))
	}

	buffer := make([]byte, maxBeaconSize)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scout listener stopped")
			return
		default:
		}

		// short deadline so ctx cancellation is observed promptly
		if err := conn.SetReadDeadline(time.Now().Add(readDeadlineSlice)); err != nil {
			s.reportError(errs, err)
			return
		}

		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.reportError(errs, err)
			return
		}

		hello, err := s.parseBeacon(buffer[:n], remoteAddr)
		if err != nil {
			s.log.Warn("Dropping malformed beacon", sl.Err(err))
			continue
		}

		if hello.ZID == s.config.LocalZID {
			continue
		}
		if !MatchWhat(what, hello.WhatAmI) {
			continue
		}

		select {
		case hellos <- hello:
		case <-ctx.Done():
			return
		}
	}
}

func (s *MulticastScouter) reportError(errs chan<- error, err error) {
	s.log.Error("Scout feed failed", sl.Err(err))
	select {
	case errs <- err:
	default:
	}
}

// parseBeacon decodes "zmesh:<whatami>:<zid>:<port>:<token>" into a
// Hello with a tcp locator derived from the sender address.
func (s *MulticastScouter) parseBeacon(payload []byte, remoteAddr *net.UDPAddr) (Hello, error) {
	parts := strings.Split(string(payload), ":")
	if len(parts) != 5 || parts[0] != beaconPrefix {
		return Hello{}, fmt.Errorf("unexpected beacon format")
	}

	whatami := parts[1]
	switch whatami {
	case "client", "peer", "router":
	default:
		return Hello{}, fmt.Errorf("unknown role %q", whatami)
	}

	zid := parts[2]
	if zid == "" {
		return Hello{}, fmt.Errorf("empty zid")
	}

	port, err := strconv.Atoi(parts[3])
	if err != nil || port <= 0 || port > 65535 {
		return Hello{}, fmt.Errorf("bad port %q", parts[3])
	}

	return Hello{
		ZID:      zid,
		WhatAmI:  whatami,
		Locators: []string{fmt.Sprintf("tcp/%s:%d", remoteAddr.IP.String(), port)},
	}, nil
}
