package transport

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	chacha "golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"zmesh/internal/session"
	"zmesh/internal/util/logger/sl"
)

const hkdfInfo = "zmesh_session_keys_v1"

// announce byte layout: low two bits carry the mode, bit 2 the
// multicast scouting capability, bit 3 the gossip scouting capability
const (
	announceModeClient = 0x0
	announceModePeer   = 0x1
	announceModeRouter = 0x2
	announceMulticast  = 0x4
	announceGossip     = 0x8
)

// TCPDialer opens sessions over TCP endpoints listed in a Config. The
// endpoints are tried in order; the first successful handshake wins.
type TCPDialer struct {
	timeout time.Duration
	log     *slog.Logger
}

func NewTCPDialer(timeout time.Duration, log *slog.Logger) *TCPDialer {
	return &TCPDialer{
		timeout: timeout,
		log:     log,
	}
}

func (d *TCPDialer) Open(ctx context.Context, cfg session.Config) (session.Handle, error) {
	op := "transport.TCPDialer.Open"
	log := d.log.With(slog.String("op", op))

	var lastErr error
	for _, locator := range cfg.Endpoints() {
		proto, addr, err := ParseLocator(locator)
		if err != nil {
			lastErr = err
			continue
		}
		if proto != "tcp" {
			lastErr = fmt.Errorf("unsupported locator protocol: %q", proto)
			continue
		}

		handle, err := d.dial(ctx, addr, cfg)
		if err != nil {
			log.Warn("Endpoint failed",
				slog.String("locator", locator),
				sl.Err(err),
			)
			lastErr = err
			continue
		}

		log.Info("Session established",
			slog.String("session_id", handle.ID()),
			slog.String("locator", locator),
		)
		return handle, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no usable endpoints")
	}
	return nil, lastErr
}

func (d *TCPDialer) dial(ctx context.Context, addr string, cfg session.Config) (session.Handle, error) {
	dialer := net.Dialer{Timeout: d.timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp connection failed: %w", err)
	}

	sendAEAD, recvAEAD, err := d.handshake(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	return &tcpSession{
		id:       uuid.NewString(),
		conn:     conn,
		sendAEAD: sendAEAD,
		recvAEAD: recvAEAD,
	}, nil
}

// handshake runs an unauthenticated x25519 exchange: each side sends an
// ephemeral public key, we additionally announce mode and scouting
// capabilities in a trailing byte. Session keys are derived with HKDF
// and validated by constructing the AEADs.
func (d *TCPDialer) handshake(conn net.Conn, cfg session.Config) (cipher.AEAD, cipher.AEAD, error) {
	var localPriv [32]byte
	if _, err := io.ReadFull(rand.Reader, localPriv[:]); err != nil {
		return nil, nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	var localPub [32]byte
	curve25519.ScalarBaseMult(&localPub, &localPriv)

	msg := append(localPub[:], announceByte(cfg))
	if _, err := conn.Write(msg); err != nil {
		return nil, nil, fmt.Errorf("send ephemeral key: %w", err)
	}

	var remotePub [32]byte
	if _, err := io.ReadFull(conn, remotePub[:]); err != nil {
		return nil, nil, fmt.Errorf("read remote ephemeral key: %w", err)
	}

	sharedSecret, err := curve25519.X25519(localPriv[:], remotePub[:])
	if err != nil {
		return nil, nil, fmt.Errorf("compute shared secret: %w", err)
	}

	kdf := hkdf.New(sha256.New, sharedSecret, nil, []byte(hkdfInfo))
	sendKey := make([]byte, chacha.KeySize)
	recvKey := make([]byte, chacha.KeySize)
	if _, err := io.ReadFull(kdf, sendKey); err != nil {
		return nil, nil, fmt.Errorf("key derivation failed: %w", err)
	}
	if _, err := io.ReadFull(kdf, recvKey); err != nil {
		return nil, nil, fmt.Errorf("key derivation failed: %w", err)
	}

	sendAEAD, err := chacha.New(sendKey)
	if err != nil {
		return nil, nil, fmt.Errorf("init send cipher: %w", err)
	}
	recvAEAD, err := chacha.New(recvKey)
	if err != nil {
		return nil, nil, fmt.Errorf("init recv cipher: %w", err)
	}

	return sendAEAD, recvAEAD, nil
}

func announceByte(cfg session.Config) byte {
	var b byte
	switch cfg.Mode() {
	case session.ModeClient:
		b = announceModeClient
	case session.ModePeer:
		b = announceModePeer
	case session.ModeRouter:
		b = announceModeRouter
	}
	if cfg.MulticastScouting() {
		b |= announceMulticast
	}
	if cfg.GossipScouting() {
		b |= announceGossip
	}
	return b
}

type tcpSession struct {
	id       string
	conn     net.Conn
	sendAEAD cipher.AEAD
	recvAEAD cipher.AEAD

	once     sync.Once
	closeErr error
}

func (s *tcpSession) ID() string { return s.id }

// Close is safe to call multiple times; repeated calls return the
// first result.
func (s *tcpSession) Close() error {
	s.once.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
