package scout

import "errors"

var (
	ErrUnknownFilter    = errors.New("unknown scout filter")
	ErrControllerClosed = errors.New("scout controller is closed")
)
