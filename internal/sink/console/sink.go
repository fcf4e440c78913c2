// Package console renders undispatched payloads to standard output.
package console

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"firestige.xyz/buscap/internal/isotp"
)

// Sink is the fallback consumer for bytes no next-level handler
// claimed: raw fragments and complete payloads without a handler.
type Sink struct {
	out io.Writer
}

func NewSink() *Sink {
	return &Sink{out: os.Stdout}
}

// NewSinkWriter returns a sink writing to w instead of stdout.
func NewSinkWriter(w io.Writer) *Sink {
	return &Sink{out: w}
}

func (s *Sink) Consume(data []byte, info isotp.Info) error {
	addr := ""
	switch info.Addresses.Valid {
	case 1:
		addr = fmt.Sprintf(" ecu=0x%x", info.Addresses.Source)
	case 2:
		addr = fmt.Sprintf(" src=0x%x dst=0x%x", info.Addresses.Source, info.Addresses.Target)
	}
	_, err := fmt.Fprintf(s.out, "%s/0x%x%s %d bytes\n%s",
		info.Kind, info.LinkID, addr, len(data), hex.Dump(data))
	return err
}
