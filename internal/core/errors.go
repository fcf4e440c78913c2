// Package core defines sentinel errors.
package core

import "errors"

var (
	// Frame decoding errors
	ErrFrameTooShort  = errors.New("buscap: frame too short")
	ErrBadMessageType = errors.New("buscap: bad message type")

	// Configuration errors
	ErrConfigInvalid = errors.New("buscap: invalid configuration")

	// Dispatch errors
	ErrHandlerExists = errors.New("buscap: handler already registered")

	// Capture source errors
	ErrBadLinkType = errors.New("buscap: unsupported capture link type")
)
