package filter

import "sync"

// Constructor builds a fresh Filter instance (encode or decode direction is
// baked into which constructor is registered under which key).
type Constructor func() Filter

// Registry maps a Content-Encoding token ("gzip", "deflate") to filter
// constructors, so the parser/serializer can install "whatever filter
// matches this Content-Encoding value" without a hardcoded switch.
// Grounded on original_source's deflate_service.hpp / brotli.hpp
// registration-into-a-context pattern; the registration call itself
// mirrors packetd/protocol/phttp's init()-time protocol.Register.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Constructor
	encoders map[string]Constructor
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry that this file's init()
// registers the gzip and deflate filters into.
func Default() *Registry { return defaultRegistry }

func NewRegistry() *Registry {
	return &Registry{
		decoders: make(map[string]Constructor),
		encoders: make(map[string]Constructor),
	}
}

// RegisterDecoder installs a decode-direction filter constructor under a
// Content-Encoding token.
func (r *Registry) RegisterDecoder(token string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[token] = ctor
}

// RegisterEncoder installs an encode-direction filter constructor under a
// Content-Encoding token.
func (r *Registry) RegisterEncoder(token string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[token] = ctor
}

// NewDecoder constructs the decode filter registered for token, or nil if
// none is registered.
func (r *Registry) NewDecoder(token string) Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ctor, ok := r.decoders[token]; ok {
		return ctor()
	}
	return nil
}

// NewEncoder constructs the encode filter registered for token, or nil if
// none is registered.
func (r *Registry) NewEncoder(token string) Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ctor, ok := r.encoders[token]; ok {
		return ctor()
	}
	return nil
}

func init() {
	defaultRegistry.RegisterEncoder("gzip", func() Filter { return Gzip(0) })
	defaultRegistry.RegisterDecoder("gzip", func() Filter { return GzipDecoder() })
	defaultRegistry.RegisterEncoder("deflate", func() Filter { return Deflate(0) })
	defaultRegistry.RegisterDecoder("deflate", func() Filter { return DeflateDecoder() })
}
