package hellocache

import (
	"bytes"
	"encoding/gob"
	"time"
)

// CachedHello is the last-seen discovery answer of one participant.
type CachedHello struct {
	ZID      string
	WhatAmI  string
	Locators []string
	LastSeen time.Time
}

// Serializer converts cache entries to and from bytes.
type Serializer interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}

// GobSerializer implements Serializer using encoding/gob.
type GobSerializer struct{}

func (s *GobSerializer) Serialize(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *GobSerializer) Deserialize(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
