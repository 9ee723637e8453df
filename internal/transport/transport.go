package transport

import (
	"context"
	"fmt"
	"strings"
)

// Hello describes one mesh participant that answered a scout query.
type Hello struct {
	ZID      string
	WhatAmI  string
	Locators []string
}

func (h Hello) String() string {
	return fmt.Sprintf("zid=%s whatami=%s locators=[%s]",
		h.ZID, h.WhatAmI, strings.Join(h.Locators, " "))
}

// Scan is a running scout query. Hellos is closed when the scan context
// ends; Errs carries at most one terminal feed error.
type Scan struct {
	Hellos <-chan Hello
	Errs   <-chan error
}

// Scouter starts scout queries. The what expression selects which roles
// answer: "peer", "router" or "peer|router".
type Scouter interface {
	Scout(ctx context.Context, what string) (*Scan, error)
}

// ParseHello is the inverse of Hello.String.
func ParseHello(s string) (Hello, error) {
	var h Hello
	inLocators := false
	for _, field := range strings.Fields(s) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			// items of the space separated locator list carry no key
			if !inLocators {
				return Hello{}, fmt.Errorf("malformed hello field: %q", field)
			}
			if item := strings.TrimSuffix(field, "]"); item != "" {
				h.Locators = append(h.Locators, item)
			}
			continue
		}
		inLocators = false
		switch key {
		case "zid":
			h.ZID = value
		case "whatami":
			h.WhatAmI = value
		case "locators":
			inLocators = true
			item := strings.TrimPrefix(value, "[")
			item = strings.TrimSuffix(item, "]")
			if item != "" {
				h.Locators = append(h.Locators, item)
			}
		}
	}
	if h.ZID == "" {
		return Hello{}, fmt.Errorf("hello without zid: %q", s)
	}
	return h, nil
}

// MatchWhat reports whether a participant role matches a scout
// expression of "|"-separated roles.
func MatchWhat(what, whatami string) bool {
	for _, part := range strings.Split(what, "|") {
		if strings.TrimSpace(part) == whatami {
			return true
		}
	}
	return false
}

// ParseLocator splits a "proto/address" locator.
func ParseLocator(locator string) (proto, addr string, err error) {
	proto, addr, found := strings.Cut(locator, "/")
	if !found || proto == "" || addr == "" {
		return "", "", fmt.Errorf("malformed locator: %q", locator)
	}
	return proto, addr, nil
}
