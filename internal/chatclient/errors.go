package chatclient

import "errors"

// Sentinel errors, classified via errors.Is rather than string matching.
var (
	ErrNotConnected  = errors.New("chatclient: not connected")
	ErrDial          = errors.New("chatclient: dial failed")
	ErrHandshake     = errors.New("chatclient: handshake failed")
	ErrConnRead      = errors.New("chatclient: read failed")
	ErrConnWrite     = errors.New("chatclient: write failed")
	ErrAlreadyClosed = errors.New("chatclient: already disconnected")
)
