// Package moderation reacts to content being flagged. Reports can take the
// content offline at once; the reporter is always told the report arrived.
package moderation

import (
	"context"
	"strings"
	"sync"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xeda"
)

// ReportPrefix marks flag types that are abuse reports.
const ReportPrefix = "report_"

// SubmittedMessage is shown to the reporter after every flag.
const SubmittedMessage = "Your report is submitted."

// EntityTypeNode is the only flaggable entity type this package unpublishes.
const EntityTypeNode = "node"

// Flagging is a single flag placed on an entity.
type Flagging struct {
	FlagID     string
	EntityType string
	EntityID   string
}

// ContentStore loads and saves flagged nodes.
type ContentStore interface {
	LoadNode(ctx context.Context, id string) (*xeda.Node, error)
	SaveNode(ctx context.Context, n *xeda.Node) error
}

// Messenger collects status messages for the current user.
type Messenger interface {
	AddMessage(msg string)
}

// Subscriber handles flag events.
type Subscriber struct {
	store                ContentStore
	messenger            Messenger
	lifecycle            xeda.LifecycleHandler
	unpublishImmediately bool
	logger               *xlog.Logger
}

type Option func(*Subscriber)

// WithUnpublishImmediately takes reported content offline on the first report.
func WithUnpublishImmediately(on bool) Option {
	return func(s *Subscriber) { s.unpublishImmediately = on }
}

// WithLifecycle fires EventUnpublish on h after a reported node was saved.
func WithLifecycle(h xeda.LifecycleHandler) Option {
	return func(s *Subscriber) { s.lifecycle = h }
}

func WithLogger(l *xlog.Logger) Option {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewSubscriber(store ContentStore, messenger Messenger, opts ...Option) *Subscriber {
	s := &Subscriber{store: store, messenger: messenger, logger: xlog.Default()}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// OnFlag unpublishes reported content when configured to, then adds
// SubmittedMessage. Storage failures are logged and do not fail the flag.
// The returned error comes from the lifecycle dispatch only.
func (s *Subscriber) OnFlag(ctx context.Context, f Flagging) error {
	defer s.messenger.AddMessage(SubmittedMessage)

	if !s.unpublishImmediately || !strings.HasPrefix(f.FlagID, ReportPrefix) {
		return nil
	}
	if f.EntityType != EntityTypeNode {
		s.logger.Debug().Str("entity_type", f.EntityType).Str("flag", f.FlagID).Msg("moderation: not a node, left published")
		return nil
	}

	n, err := s.store.LoadNode(ctx, f.EntityID)
	if err != nil {
		s.logger.Warn().Err(err).Str("node", f.EntityID).Msg("moderation: load reported content failed")
		return nil
	}
	if !n.Published {
		return nil
	}
	n.Published = false
	if err := s.store.SaveNode(ctx, n); err != nil {
		s.logger.Warn().Err(err).Str("node", f.EntityID).Msg("moderation: unpublish reported content failed")
		return nil
	}
	if s.lifecycle == nil {
		return nil
	}
	return s.lifecycle.EventUnpublish(ctx, n)
}

// Messages is a Messenger that keeps messages in memory.
type Messages struct {
	mu   sync.Mutex
	list []string
}

func (m *Messages) AddMessage(msg string) {
	m.mu.Lock()
	m.list = append(m.list, msg)
	m.mu.Unlock()
}

// All returns the messages added so far.
func (m *Messages) All() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.list...)
}
