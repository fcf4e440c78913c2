// Package source defines the capture source abstraction.
package source

import (
	"context"

	"firestige.xyz/buscap/internal/core"
)

// Source supplies link frames from a capture in record order. Read
// returns io.EOF once the capture is exhausted.
type Source interface {
	Start(ctx context.Context) error
	ReadFrame() (*core.LinkFrame, error)
	Stop() error
}
