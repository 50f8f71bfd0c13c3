package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xeda"
)

type memStore struct {
	nodes   map[string]*xeda.Node
	saveErr error
	saves   int
}

func (m *memStore) LoadNode(_ context.Context, id string) (*xeda.Node, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return n, nil
}

func (m *memStore) SaveNode(_ context.Context, n *xeda.Node) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.nodes[n.UUID] = n
	return nil
}

type dispatches struct{ envs []xeda.Envelope }

func (d *dispatches) Dispatch(_ context.Context, _ string, env xeda.Envelope) error {
	d.envs = append(d.envs, env)
	return nil
}

func publishedNode() *xeda.Node {
	return &xeda.Node{
		UUID:      "n-7",
		Created:   time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC),
		Changed:   time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC),
		Published: true,
		Title:     "Offensive meetup",
		URL:       "https://intranet.example.com/node/7",
		Author:    &xeda.Account{UUID: "u-9", URL: "https://intranet.example.com/user/9"},
	}
}

func newFixture(opts ...Option) (*Subscriber, *memStore, *Messages) {
	st := &memStore{nodes: map[string]*xeda.Node{"n-7": publishedNode()}}
	msgs := &Messages{}
	return NewSubscriber(st, msgs, opts...), st, msgs
}

func TestOnFlag_ReportUnpublishes(t *testing.T) {
	d := &dispatches{}
	reporter := &xeda.Account{UUID: "u-1", URL: "https://intranet.example.com/user/1"}
	h := xeda.NewEventHandler(d, true, xeda.RequestContext{RouteName: "flag.action_link_flag", Path: "/flag/flag/report_node/7", Identity: reporter})
	s, st, msgs := newFixture(WithUnpublishImmediately(true), WithLifecycle(h))

	require.NoError(t, s.OnFlag(context.Background(), Flagging{FlagID: "report_node", EntityType: EntityTypeNode, EntityID: "n-7"}))

	assert.False(t, st.nodes["n-7"].Published)
	assert.Equal(t, []string{SubmittedMessage}, msgs.All())
	require.Len(t, d.envs, 1)
	assert.Equal(t, xeda.TypeEventUnpublish, d.envs[0].Type)
	assert.Equal(t, xeda.StatusUnpublished, d.envs[0].Data.Event.Status)
	// flag routes attribute no actor
	assert.Nil(t, d.envs[0].Data.Actor.User)
	assert.Nil(t, d.envs[0].Data.Actor.Application)
}

func TestOnFlag_LeavesContentAlone(t *testing.T) {
	cases := map[string]struct {
		opts []Option
		flag Flagging
	}{
		"setting off": {
			flag: Flagging{FlagID: "report_node", EntityType: EntityTypeNode, EntityID: "n-7"},
		},
		"not a report": {
			opts: []Option{WithUnpublishImmediately(true)},
			flag: Flagging{FlagID: "follow_content", EntityType: EntityTypeNode, EntityID: "n-7"},
		},
		"not a node": {
			opts: []Option{WithUnpublishImmediately(true)},
			flag: Flagging{FlagID: "report_comment", EntityType: "comment", EntityID: "c-1"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s, st, msgs := newFixture(tc.opts...)
			require.NoError(t, s.OnFlag(context.Background(), tc.flag))
			assert.True(t, st.nodes["n-7"].Published)
			assert.Zero(t, st.saves)
			assert.Equal(t, []string{SubmittedMessage}, msgs.All())
		})
	}
}

func TestOnFlag_StorageErrorsAreSwallowed(t *testing.T) {
	d := &dispatches{}
	h := xeda.NewEventHandler(d, true, xeda.RequestContext{})
	s, st, msgs := newFixture(WithUnpublishImmediately(true), WithLifecycle(h))
	st.saveErr = errors.New("locked")

	require.NoError(t, s.OnFlag(context.Background(), Flagging{FlagID: "report_node", EntityType: EntityTypeNode, EntityID: "n-7"}))
	require.NoError(t, s.OnFlag(context.Background(), Flagging{FlagID: "report_node", EntityType: EntityTypeNode, EntityID: "missing"}))

	assert.Empty(t, d.envs)
	assert.Equal(t, []string{SubmittedMessage, SubmittedMessage}, msgs.All())
}

func TestOnFlag_AlreadyUnpublishedIsNotSavedAgain(t *testing.T) {
	d := &dispatches{}
	h := xeda.NewEventHandler(d, true, xeda.RequestContext{})
	s, st, msgs := newFixture(WithUnpublishImmediately(true), WithLifecycle(h))
	st.nodes["n-7"].Published = false

	require.NoError(t, s.OnFlag(context.Background(), Flagging{FlagID: "report_node", EntityType: EntityTypeNode, EntityID: "n-7"}))

	assert.Zero(t, st.saves)
	assert.Empty(t, d.envs)
	assert.Equal(t, []string{SubmittedMessage}, msgs.All())
}
