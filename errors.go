package xeda

import (
	"errors"
	"fmt"
)

type ErrUnknownTransport struct{ name string }

func (e ErrUnknownTransport) Error() string { return fmt.Sprintf("unknown transport: %s", e.name) }

var (
	ErrDefaultBusNotInitialized    = errors.New("xeda: default bus not initialized")
	ErrNoTransportConfigured       = errors.New("xeda: no transport configured")
	ErrBusClosed                   = errors.New("xeda: bus is closed")
	ErrInvalidTopic                = errors.New("xeda: topic must not be empty")
	ErrInvalidEnvelope             = errors.New("xeda: envelope requires id and type")
	ErrInvalidSubscription         = errors.New("xeda: subscription requires topic, group and handler")
	ErrHandlerPanic                = errors.New("xeda: handler panic")
	ErrObserverPoolShutdownTimeout = errors.New("xeda: observer pool shutdown timeout")

	// ErrMalformedEntity reports source data that cannot be normalized into
	// an envelope. Nothing is dispatched when it is returned.
	ErrMalformedEntity = errors.New("xeda: malformed entity")
	// ErrEnrollmentMethod reports a stored enrollment method code outside
	// the known method list.
	ErrEnrollmentMethod = errors.New("xeda: unknown enrollment method")
)
