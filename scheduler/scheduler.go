// Package scheduler publishes event nodes whose scheduled publication time
// has passed. Runs are attributed to the cron application.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xeda"
)

// NodeSource finds and persists nodes waiting for publication.
type NodeSource interface {
	DuePublications(ctx context.Context, now time.Time) ([]*xeda.Node, error)
	SaveNode(ctx context.Context, n *xeda.Node) error
}

// Config controls a Scheduler.
type Config struct {
	// Spec is a five-field cron expression (default every five minutes).
	Spec string
	// IntegrationEnabled is the dispatch gate handed to every run.
	IntegrationEnabled bool
	// Location evaluates Spec and formats envelope timestamps (default UTC).
	Location *time.Location
	// RunTimeout bounds a single run (default one minute).
	RunTimeout time.Duration
}

func (c Config) Defaults() Config {
	if c.Spec == "" {
		c.Spec = "*/5 * * * *"
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = time.Minute
	}
	return c
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func (c Config) Validate() error {
	if _, err := parser.Parse(c.Spec); err != nil {
		return fmt.Errorf("scheduler: invalid cron spec %q: %w", c.Spec, err)
	}
	return nil
}

// Scheduler marks due nodes published and fires EventPublish for each.
type Scheduler struct {
	cfg        Config
	src        NodeSource
	dispatcher xeda.Dispatcher
	clock      xclock.Clock
	logger     *xlog.Logger
	cron       *cron.Cron
}

type Option func(*Scheduler)

func WithLogger(l *xlog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(c xclock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(src NodeSource, d xeda.Dispatcher, cfg Config, opts ...Option) (*Scheduler, error) {
	cfg = cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:        cfg,
		src:        src,
		dispatcher: d,
		clock:      xclock.Default(),
		logger:     xlog.Default(),
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s, nil
}

// RunOnce publishes everything due now. It returns how many nodes were
// published; failures of single nodes are joined into the error and do not
// stop the run.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.clock.Now()
	due, err := s.src.DuePublications(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	h := xeda.NewEventHandler(s.dispatcher, s.cfg.IntegrationEnabled,
		xeda.RequestContext{RouteName: xeda.RouteCronRun},
		xeda.WithMapperOptions(xeda.WithLocation(s.cfg.Location)),
		xeda.WithHandlerLogger(s.logger),
	)

	var (
		published int
		errs      []error
	)
	for _, n := range due {
		n.Published = true
		n.Changed = now
		n.PublishOn = time.Time{}
		if err := s.src.SaveNode(ctx, n); err != nil {
			errs = append(errs, err)
			continue
		}
		published++
		if err := h.EventPublish(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", n.UUID, err))
		}
	}
	return published, errors.Join(errs...)
}

// Start runs RunOnce on the configured spec until Stop.
func (s *Scheduler) Start() error {
	c := cron.New(cron.WithParser(parser), cron.WithLocation(s.cfg.Location))
	if _, err := c.AddFunc(s.cfg.Spec, s.tick); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	s.cron = c
	c.Start()
	s.logger.Info().Str("spec", s.cfg.Spec).Msg("scheduler: started")
	return nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()

	start := s.clock.Now()
	n, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduler: run failed")
	}
	if n > 0 {
		s.logger.Info().Float64("published", float64(n)).Dur("took", s.clock.Since(start)).Msg("scheduler: run complete")
	}
}

// Stop halts the schedule and waits for a running job or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
