package session

import "errors"

var (
	ErrNoEndpoints    = errors.New("config has no connect endpoints")
	ErrEmptyEndpoint  = errors.New("empty endpoint")
	ErrInvalidLocator = errors.New("invalid locator")
	ErrInvalidMode    = errors.New("invalid session mode")
	ErrManagerClosed  = errors.New("session manager is closed")
)
