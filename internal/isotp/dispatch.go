package isotp

import (
	"fmt"

	"firestige.xyz/buscap/internal/core"
)

// Info is the addressing/link context handed to next-level handlers
// together with a completed payload.
type Info struct {
	Kind        core.LinkKind
	LinkID      uint32
	Addresses   core.AddressPair
	FrameLength uint32
}

// Handler consumes a fully reassembled, addressed payload.
type Handler interface {
	Handle(payload []byte, info Info) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(payload []byte, info Info) error

func (f HandlerFunc) Handle(payload []byte, info Info) error { return f(payload, info) }

// Sink is the generic fallback for bytes no handler consumed: raw
// fragments of incomplete or errored assemblies and payloads without a
// registered handler.
type Sink interface {
	Consume(data []byte, info Info) error
}

// HandlerKey identifies the link context a handler is registered for.
type HandlerKey struct {
	Kind   core.LinkKind
	LinkID uint32
}

// Registry resolves next-level protocol handlers by exact link context.
// Handlers are registered by external collaborators at startup; lookup
// misses route to the fallback sink.
type Registry struct {
	handlers map[HandlerKey]Handler
	fallback Sink
}

func NewRegistry(fallback Sink) *Registry {
	return &Registry{
		handlers: make(map[HandlerKey]Handler),
		fallback: fallback,
	}
}

// Register binds a handler to a link context key.
func (r *Registry) Register(key HandlerKey, h Handler) error {
	if _, dup := r.handlers[key]; dup {
		return fmt.Errorf("%w: %s/0x%x", core.ErrHandlerExists, key.Kind, key.LinkID)
	}
	r.handlers[key] = h
	return nil
}

// dispatch hands a payload onward. Only complete payloads reach a
// registered handler; everything else is dumped to the fallback sink.
// Returns true when a registered handler consumed the payload.
func (r *Registry) dispatch(payload []byte, info Info, complete bool) bool {
	if complete {
		if h, ok := r.handlers[HandlerKey{Kind: info.Kind, LinkID: info.LinkID}]; ok {
			if err := h.Handle(payload, info); err == nil {
				return true
			}
		}
	}
	if r.fallback != nil {
		_ = r.fallback.Consume(payload, info)
	}
	return false
}
