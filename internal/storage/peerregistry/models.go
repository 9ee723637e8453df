package peerregistry

import (
	"strings"
	"time"
)

// Peer is one known mesh participant with the locators it has been
// reachable at.
type Peer struct {
	ZID       string
	WhatAmI   string
	FirstSeen time.Time
	LastSeen  time.Time
	Locators  []Locator
}

// Locator is one transport address of a peer.
type Locator struct {
	ID      int64
	ZID     string
	Address string
	Source  Source
}

// Source defines where the locator information came from
type Source string

// Available locator sources
const (
	SourceStatic Source = "static"
	SourceScout  Source = "scout"
	SourceGossip Source = "gossip"
)

// PeerFilter narrows ListPeers results. Nil fields are ignored.
type PeerFilter struct {
	WhatAmI     *string
	MinLastSeen *time.Time
	ZIDLike     *string
}

// buildWhereClause constructs a WHERE clause and corresponding arguments for filtering peers
func (f *PeerFilter) buildWhereClause() (string, []interface{}) {
	where := []string{}
	args := []interface{}{}

	if f.WhatAmI != nil && *f.WhatAmI != "" {
		where = append(where, "whatami = ?")
		args = append(args, *f.WhatAmI)
	}
	if f.MinLastSeen != nil {
		where = append(where, "last_seen >= ?")
		args = append(args, f.MinLastSeen.Unix())
	}
	if f.ZIDLike != nil && *f.ZIDLike != "" {
		where = append(where, "zid LIKE ?")
		args = append(args, "%"+*f.ZIDLike+"%")
	}

	var query string
	if len(where) > 0 {
		query = strings.Join(where, " AND ")
	}
	return query, args
}
