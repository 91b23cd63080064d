package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrMissingCredentials = errors.New("broker credentials missing")
	ErrFeedStopped        = errors.New("feed stopped")
	ErrInvalidInstrument  = errors.New("invalid instrument")
)
