// Package peerregistry provides persistent storage for known mesh
// peers using SQLite as the underlying database.
package peerregistry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Common errors
var (
	ErrPeerNotFound      = errors.New("peer not found")
	ErrLocatorNotFound   = errors.New("locator not found")
	ErrDBOperationFailed = errors.New("database operation failed")
	ErrInvalidInput      = errors.New("invalid input parameters")
)

// Config contains configuration for the Registry
type Config struct {
	DBPath            string
	MigrationsPath    string
	ConnectionTimeout time.Duration
	LogLevel          slog.Level
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() Config {
	return Config{
		DBPath:            "registry.sqlite",
		MigrationsPath:    "migrations",
		ConnectionTimeout: 5 * time.Second,
		LogLevel:          slog.LevelInfo,
	}
}

// Registry stores and retrieves known peers and their locators
type Registry struct {
	db     *sql.DB
	logger *slog.Logger
	config Config
	mu     sync.Mutex // mutex for serializing write operations
}

// New creates a new Registry with the given configuration
func New(config Config, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel}))
	}

	db, err := sql.Open("sqlite", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports only one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &Registry{
		db:     db,
		logger: logger,
		config: config,
	}, nil
}

// Close closes the database connection
func (r *Registry) Close() error {
	r.logger.Info("Closing peer registry")
	return r.db.Close()
}

// SavePeer stores a peer in the database, creating it if it doesn't
// exist or updating it if it does. Provided locators are upserted by
// (zid, address).
func (r *Registry) SavePeer(ctx context.Context, peer Peer) error {
	if peer.ZID == "" {
		return fmt.Errorf("%w: empty zid", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrDBOperationFailed, err)
	}
	defer tx.Rollback() // rollback if not committed

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM peers WHERE zid = ?", peer.ZID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("%w: failed to check peer existence: %v", ErrDBOperationFailed, err)
	}

	if err == sql.ErrNoRows || !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO peers (zid, whatami, first_seen, last_seen)
			 VALUES (?, ?, ?, ?)`,
			peer.ZID, peer.WhatAmI, peer.FirstSeen.Unix(), peer.LastSeen.Unix(),
		)
		if err != nil {
			return fmt.Errorf("%w: failed to insert peer: %v", ErrDBOperationFailed, err)
		}

		r.logger.Info("Created new peer", "zid", peer.ZID, "whatami", peer.WhatAmI)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE peers SET whatami = ?, last_seen = ? WHERE zid = ?`,
			peer.WhatAmI, peer.LastSeen.Unix(), peer.ZID,
		)
		if err != nil {
			return fmt.Errorf("%w: failed to update peer: %v", ErrDBOperationFailed, err)
		}

		r.logger.Debug("Updated existing peer", "zid", peer.ZID)
	}

	for _, locator := range peer.Locators {
		locator.ZID = peer.ZID // ensure the owner is set correctly

		_, err = tx.ExecContext(ctx,
			`REPLACE INTO locators (zid, address, source) VALUES (?, ?, ?)`,
			locator.ZID, locator.Address, locator.Source,
		)
		if err != nil {
			return fmt.Errorf("%w: failed to save locator: %v", ErrDBOperationFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrDBOperationFailed, err)
	}

	return nil
}

// GetPeer retrieves a peer by zid, including its locators
func (r *Registry) GetPeer(ctx context.Context, zid string) (Peer, error) {
	var peer Peer

	row := r.db.QueryRowContext(ctx,
		`SELECT zid, whatami, first_seen, last_seen FROM peers WHERE zid = ?`, zid)

	var firstSeenUnix, lastSeenUnix int64
	err := row.Scan(&peer.ZID, &peer.WhatAmI, &firstSeenUnix, &lastSeenUnix)
	if err == sql.ErrNoRows {
		return peer, ErrPeerNotFound
	}
	if err != nil {
		return peer, fmt.Errorf("%w: failed to get peer: %v", ErrDBOperationFailed, err)
	}

	peer.FirstSeen = time.Unix(firstSeenUnix, 0)
	peer.LastSeen = time.Unix(lastSeenUnix, 0)

	peer.Locators, err = r.GetPeerLocators(ctx, zid)
	if err != nil {
		r.logger.Warn("Failed to get peer locators", "zid", zid, "error", err)
		// continue even if we can't get locators
	}

	return peer, nil
}

// ListPeers returns peers matching the filter, including locators
func (r *Registry) ListPeers(ctx context.Context, filter PeerFilter) ([]Peer, error) {
	query := `SELECT zid, whatami, first_seen, last_seen FROM peers`

	where, args := filter.buildWhereClause()
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY last_seen DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list peers: %v", ErrDBOperationFailed, err)
	}
	defer rows.Close()

	var peers []Peer
	for rows.Next() {
		var peer Peer
		var firstSeenUnix, lastSeenUnix int64

		if err := rows.Scan(&peer.ZID, &peer.WhatAmI, &firstSeenUnix, &lastSeenUnix); err != nil {
			return nil, fmt.Errorf("%w: failed to scan peer: %v", ErrDBOperationFailed, err)
		}
		peer.FirstSeen = time.Unix(firstSeenUnix, 0)
		peer.LastSeen = time.Unix(lastSeenUnix, 0)

		peers = append(peers, peer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration failed: %v", ErrDBOperationFailed, err)
	}

	for i := range peers {
		locators, err := r.GetPeerLocators(ctx, peers[i].ZID)
		if err != nil {
			r.logger.Warn("Failed to get peer locators", "zid", peers[i].ZID, "error", err)
			continue
		}
		peers[i].Locators = locators
	}

	return peers, nil
}

// GetPeerLocators returns the locators of one peer
func (r *Registry) GetPeerLocators(ctx context.Context, zid string) ([]Locator, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, zid, address, source FROM locators WHERE zid = ? ORDER BY id`, zid)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get locators: %v", ErrDBOperationFailed, err)
	}
	defer rows.Close()

	var locators []Locator
	for rows.Next() {
		var locator Locator
		if err := rows.Scan(&locator.ID, &locator.ZID, &locator.Address, &locator.Source); err != nil {
			return nil, fmt.Errorf("%w: failed to scan locator: %v", ErrDBOperationFailed, err)
		}
		locators = append(locators, locator)
	}
	return locators, rows.Err()
}

// AddLocator attaches a new locator to an existing peer
func (r *Registry) AddLocator(ctx context.Context, zid string, locator Locator) error {
	if zid == "" || locator.Address == "" {
		return fmt.Errorf("%w: empty zid or address", ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM peers WHERE zid = ?", zid).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrPeerNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: failed to check peer existence: %v", ErrDBOperationFailed, err)
	}

	_, err = r.db.ExecContext(ctx,
		`REPLACE INTO locators (zid, address, source) VALUES (?, ?, ?)`,
		zid, locator.Address, locator.Source,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to insert locator: %v", ErrDBOperationFailed, err)
	}
	return nil
}

// DeleteLocator removes a locator by its row id
func (r *Registry) DeleteLocator(ctx context.Context, locatorID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, "DELETE FROM locators WHERE id = ?", locatorID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete locator: %v", ErrDBOperationFailed, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", ErrDBOperationFailed, err)
	}
	if affected == 0 {
		return ErrLocatorNotFound
	}
	return nil
}
