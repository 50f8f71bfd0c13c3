package xeda

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// TransportFactory builds a transport from the generic settings map that
// adapters decode with their ConfigFromMap.
type TransportFactory func(cfg map[string]any) (Transport, error)

type CodecFactory func() Codec

var (
	registryMu sync.RWMutex
	transports = map[string]TransportFactory{}
	codecs     = map[string]CodecFactory{
		"json": func() Codec { return JSONCodec{} },
	}
)

// RegisterTransport makes a transport available to NewTransport and
// BusBuilder.WithTransport. Adapters call it from init; a later
// registration under the same name wins.
func RegisterTransport(name string, factory TransportFactory) error {
	if name == "" || factory == nil {
		return errors.New("xeda: transport registration needs a name and a factory")
	}
	registryMu.Lock()
	transports[name] = factory
	registryMu.Unlock()
	return nil
}

// NewTransport builds the transport registered under name.
func NewTransport(name string, cfg map[string]any) (Transport, error) {
	registryMu.RLock()
	f, ok := transports[name]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrUnknownTransport{name: name}
	}
	t, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("xeda: transport %s: %w", name, err)
	}
	return t, nil
}

// Transports lists the registered transport names in order.
func Transports() []string {
	registryMu.RLock()
	names := make([]string, 0, len(transports))
	for n := range transports {
		names = append(names, n)
	}
	registryMu.RUnlock()
	slices.Sort(names)
	return names
}

// RegisterCodec adds a payload codec. Envelopes are JSON documents, so
// alternative codecs must still produce structured JSON for consumers.
func RegisterCodec(name string, factory CodecFactory) error {
	if name == "" || factory == nil {
		return errors.New("xeda: codec registration needs a name and a factory")
	}
	registryMu.Lock()
	codecs[name] = factory
	registryMu.Unlock()
	return nil
}

func NewCodec(name string) (Codec, error) {
	registryMu.RLock()
	f, ok := codecs[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("xeda: codec %q not registered", name)
	}
	return f(), nil
}
