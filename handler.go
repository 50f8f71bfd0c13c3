package xeda

import (
	"context"
	"fmt"

	"github.com/trickstertwo/xlog"
)

// ShouldDispatch is the dispatch gate: nothing is built or sent while the
// messaging integration is disabled.
func ShouldDispatch(integrationEnabled bool) bool { return integrationEnabled }

// EventHandler maps event node lifecycle transitions to envelopes and hands
// them to a Dispatcher. Construct one per request.
type EventHandler struct {
	dispatcher Dispatcher
	mapper     *Mapper
	enabled    bool
	logger     *xlog.Logger
}

// HandlerOption configures an EventHandler.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	mapperOpts []MapperOption
	logger     *xlog.Logger
}

// WithMapperOptions forwards options to the request mapper.
func WithMapperOptions(opts ...MapperOption) HandlerOption {
	return func(o *handlerOptions) { o.mapperOpts = append(o.mapperOpts, opts...) }
}

// WithHandlerLogger injects a custom xlog logger.
func WithHandlerLogger(l *xlog.Logger) HandlerOption {
	return func(o *handlerOptions) { o.logger = l }
}

// NewEventHandler returns a handler for the request rc. integrationEnabled
// is captured once and gates every dispatch.
func NewEventHandler(d Dispatcher, integrationEnabled bool, rc RequestContext, opts ...HandlerOption) *EventHandler {
	var o handlerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	return &EventHandler{
		dispatcher: d,
		mapper:     NewMapper(rc, o.mapperOpts...),
		enabled:    integrationEnabled,
		logger:     o.logger,
	}
}

func (h *EventHandler) EventCreate(ctx context.Context, node *Node) error {
	return h.dispatch(ctx, TypeEventCreate, TypeEventCreate, node, OpCreate)
}

func (h *EventHandler) EventUpdate(ctx context.Context, node *Node) error {
	return h.dispatch(ctx, TypeEventUpdate, TypeEventUpdate, node, OpUpdate)
}

func (h *EventHandler) EventPublish(ctx context.Context, node *Node) error {
	return h.dispatch(ctx, TypeEventPublish, TypeEventPublish, node, OpPublish)
}

func (h *EventHandler) EventUnpublish(ctx context.Context, node *Node) error {
	return h.dispatch(ctx, TypeEventUnpublish, TypeEventUnpublish, node, OpUnpublish)
}

func (h *EventHandler) EventDelete(ctx context.Context, node *Node) error {
	return h.dispatch(ctx, TypeEventDelete, TypeEventDelete, node, OpDelete)
}

// Handle fires the lifecycle entry point matching op.
func (h *EventHandler) Handle(ctx context.Context, op Operation, node *Node) error {
	switch op {
	case OpCreate:
		return h.EventCreate(ctx, node)
	case OpUpdate:
		return h.EventUpdate(ctx, node)
	case OpPublish:
		return h.EventPublish(ctx, node)
	case OpUnpublish:
		return h.EventUnpublish(ctx, node)
	case OpDelete:
		return h.EventDelete(ctx, node)
	}
	return fmt.Errorf("xeda: unknown operation %q", op)
}

func (h *EventHandler) dispatch(ctx context.Context, topic, eventType string, node *Node, op Operation) error {
	if !ShouldDispatch(h.enabled) {
		h.logger.Debug().Str("topic", topic).Msg("xeda: integration disabled, dispatch skipped")
		return nil
	}

	env, err := h.mapper.BuildEnvelope(node, eventType, op)
	if err != nil {
		return fmt.Errorf("xeda: build %s envelope: %w", op, err)
	}

	if err := h.dispatcher.Dispatch(ctx, topic, env); err != nil {
		return err
	}
	h.logger.Debug().
		Str("topic", topic).
		Str("id", env.ID).
		Str("node", env.Data.Event.ID).
		Msg("xeda: envelope dispatched")
	return nil
}
