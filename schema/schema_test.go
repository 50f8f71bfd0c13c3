package schema

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xeda"
)

func sampleEnvelope(t *testing.T, rc xeda.RequestContext) xeda.Envelope {
	t.Helper()
	author := &xeda.Account{
		UUID:        "u-1",
		Created:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Changed:     time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Active:      true,
		DisplayName: "bob",
		Email:       "bob@example.com",
		URL:         "https://intranet.example.com/user/2",
	}
	node := &xeda.Node{
		UUID:       "n-1",
		Created:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Changed:    time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC),
		Published:  true,
		Title:      "Release party",
		Visibility: "community",
		Author:     author,
		Start:      time.Date(2025, 4, 1, 18, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 4, 1, 22, 0, 0, 0, time.UTC),
		URL:        "https://intranet.example.com/node/9",
	}
	rc.Identity = author
	env, err := xeda.NewMapper(rc).BuildEnvelope(node, xeda.TypeEventPublish, xeda.OpPublish)
	require.NoError(t, err)
	return env
}

func TestValidator_AcceptsMappedEnvelopes(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	assert.NoError(t, v.Validate(sampleEnvelope(t, xeda.RequestContext{RouteName: xeda.RouteNodeEditForm, Path: "/node/9/edit"})))
	assert.NoError(t, v.Validate(sampleEnvelope(t, xeda.RequestContext{RouteName: xeda.RouteCronRun})))
}

func TestValidator_Rejects(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	cases := map[string]func(*xeda.Envelope){
		"unknown type":  func(e *xeda.Envelope) { e.Type = "com.example.other" },
		"empty id":      func(e *xeda.Envelope) { e.ID = "" },
		"wrong version": func(e *xeda.Envelope) { e.SpecVersion = "0.3" },
		"bad status":    func(e *xeda.Envelope) { e.Data.Event.Status = "archived" },
		"both actors": func(e *xeda.Envelope) {
			e.Data.Actor.Application = xeda.ApplicationFromID(xeda.ApplicationCron)
		},
		"unknown method": func(e *xeda.Envelope) { e.Data.Event.Enrollment.Method = "lottery" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := sampleEnvelope(t, xeda.RequestContext{RouteName: xeda.RouteAdminContent, Path: "/admin/content"})
			mutate(&env)
			assert.ErrorIs(t, v.Validate(env), ErrInvalidEnvelope)
		})
	}
}

func TestValidator_ValidateJSON(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	assert.ErrorIs(t, v.ValidateJSON([]byte(`{`)), ErrInvalidEnvelope)
	assert.ErrorIs(t, v.ValidateJSON([]byte(`{"specversion":"1.0"}`)), ErrInvalidEnvelope)
}

func TestCompile_BadSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
}

type countingDispatcher struct{ n int }

func (c *countingDispatcher) Dispatch(context.Context, string, xeda.Envelope) error {
	c.n++
	return nil
}

func TestGuard(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)
	next := &countingDispatcher{}
	g := NewGuard(v, next)

	env := sampleEnvelope(t, xeda.RequestContext{RouteName: xeda.RouteNodeEditForm, Path: "/node/9/edit"})
	require.NoError(t, g.Dispatch(context.Background(), env.Type, env))

	env.Data.Event.Status = "draft"
	assert.ErrorIs(t, g.Dispatch(context.Background(), env.Type, env), ErrInvalidEnvelope)
	assert.Equal(t, 1, next.n)
}

func TestGuard_InFrontOfHandler(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)
	next := &countingDispatcher{}
	h := xeda.NewEventHandler(NewGuard(v, next), true, xeda.RequestContext{RouteName: xeda.RouteAdminContent, Path: "/admin/content"})

	node := &xeda.Node{
		UUID:    "n-2",
		Created: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Changed: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Title:   "Standup",
		Author: &xeda.Account{
			UUID:        "u-3",
			DisplayName: "carol",
			URL:         "https://intranet.example.com/user/3",
		},
		URL: "https://intranet.example.com/node/10",
	}
	require.NoError(t, h.EventCreate(context.Background(), node))
	require.NoError(t, h.EventDelete(context.Background(), node))
	assert.Equal(t, 2, next.n)
}
