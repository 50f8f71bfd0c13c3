package xeda

import (
	"time"
)

// Message is the unit traveling through a Transport. The Payload is an
// encoded Envelope; Metadata mirrors the envelope attributes as headers.
type Message struct {
	// ID is the envelope id; transports fall back to their own ids when empty.
	ID string
	// Name is the envelope type, useful for routing/metrics.
	Name string
	// Payload is the encoded bytes of the envelope.
	Payload []byte
	// Metadata is a bag for headers/tracing/etc.
	Metadata map[string]string
	// ProducedAt is the production timestamp (from injected clock).
	ProducedAt time.Time
}

// Metadata keys written by Bus.Dispatch. They follow the CloudEvents
// binary-mode attribute names so consumers can route without decoding.
const (
	MetaSpecVersion = "ce_specversion"
	MetaID          = "ce_id"
	MetaType        = "ce_type"
	MetaSource      = "ce_source"
	MetaTime        = "ce_time"
	MetaContentType = "content-type"
)
