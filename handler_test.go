package xeda

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(d Dispatcher, enabled bool, rc RequestContext, ids IDGenerator) *EventHandler {
	return NewEventHandler(d, enabled, rc, WithMapperOptions(WithIDGenerator(ids)))
}

func fireAll(t *testing.T, h LifecycleHandler, node *Node) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.EventCreate(ctx, node))
	require.NoError(t, h.EventUpdate(ctx, node))
	require.NoError(t, h.EventPublish(ctx, node))
	require.NoError(t, h.EventUnpublish(ctx, node))
	require.NoError(t, h.EventDelete(ctx, node))
}

func TestEventHandler_TopicEqualsType(t *testing.T) {
	d := &recordingDispatcher{}
	h := newTestHandler(d, true, RequestContext{}, &sequenceIDs{})

	fireAll(t, h, eventNode())

	calls := d.Calls()
	require.Len(t, calls, 5)
	for i, c := range calls {
		assert.Equal(t, EventTypes[i], c.Topic)
		assert.Equal(t, c.Topic, c.Envelope.Type)
	}
}

func TestEventHandler_StatusFollowsPublishFlag(t *testing.T) {
	for _, published := range []bool{true, false} {
		d := &recordingDispatcher{}
		h := newTestHandler(d, true, RequestContext{}, &sequenceIDs{})
		n := eventNode()
		n.Published = published

		fireAll(t, h, n)

		want := StatusUnpublished
		if published {
			want = StatusPublished
		}
		for _, c := range d.Calls() {
			if c.Topic == TypeEventDelete {
				assert.Equal(t, StatusRemoved, c.Envelope.Data.Event.Status)
				continue
			}
			assert.Equal(t, want, c.Envelope.Data.Event.Status, c.Topic)
		}
	}
}

func TestEventHandler_GateClosed(t *testing.T) {
	d := &recordingDispatcher{}
	ids := &sequenceIDs{}
	h := newTestHandler(d, false, RequestContext{RouteName: RouteAdminContent, Identity: alice()}, ids)

	fireAll(t, h, eventNode())
	// malformed input is not even looked at
	require.NoError(t, h.EventCreate(context.Background(), nil))

	assert.Empty(t, d.Calls())
	assert.Zero(t, ids.Count())
}

func TestEventHandler_DistinctIDs(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewEventHandler(d, true, RequestContext{})

	require.NoError(t, h.EventUpdate(context.Background(), eventNode()))
	require.NoError(t, h.EventUpdate(context.Background(), eventNode()))

	calls := d.Calls()
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].Envelope.ID)
	assert.NotEqual(t, calls[0].Envelope.ID, calls[1].Envelope.ID)
}

func TestEventHandler_BuildErrorPropagatesWithoutDispatch(t *testing.T) {
	d := &recordingDispatcher{}
	h := newTestHandler(d, true, RequestContext{}, &sequenceIDs{})
	n := eventNode()
	n.URL = ""

	err := h.EventPublish(context.Background(), n)
	assert.ErrorIs(t, err, ErrMalformedEntity)
	assert.Empty(t, d.Calls())
}

func TestEventHandler_DispatcherErrorReturned(t *testing.T) {
	boom := errors.New("broker down")
	d := &recordingDispatcher{err: boom}
	h := newTestHandler(d, true, RequestContext{}, &sequenceIDs{})

	assert.ErrorIs(t, h.EventCreate(context.Background(), eventNode()), boom)
}

func TestEventHandler_Handle(t *testing.T) {
	d := &recordingDispatcher{}
	h := newTestHandler(d, true, RequestContext{}, &sequenceIDs{})

	require.NoError(t, h.Handle(context.Background(), OpUnpublish, eventNode()))
	assert.Error(t, h.Handle(context.Background(), Operation("archive"), eventNode()))

	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, TypeEventUnpublish, calls[0].Topic)
}

func TestEventHandler_SourceAndActorReusedAcrossDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	rc := RequestContext{RouteName: RouteNodeDeleteMultipleForm, Path: "/admin/content/node/delete", Identity: alice()}
	h := newTestHandler(d, true, rc, &sequenceIDs{})

	require.NoError(t, h.EventDelete(context.Background(), eventNode()))
	other := eventNode()
	other.UUID = "other"
	require.NoError(t, h.EventDelete(context.Background(), other))

	calls := d.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, rc.Path, c.Envelope.Source)
		require.NotNil(t, c.Envelope.Data.Actor.User)
		assert.Equal(t, alice().UUID, c.Envelope.Data.Actor.User.ID)
	}
}

// Publishing a previously unpublished event from the admin content listing.
func TestEventHandler_PublishFromAdminListing(t *testing.T) {
	d := &recordingDispatcher{}
	h := NewEventHandler(d, true, RequestContext{
		RouteName: RouteAdminContent,
		Path:      "/admin/content",
		Identity:  alice(),
	})

	n := eventNode()
	n.Published = true
	require.NoError(t, h.EventPublish(context.Background(), n))

	calls := d.Calls()
	require.Len(t, calls, 1)
	c := calls[0]
	assert.Equal(t, "com.getopensocial.cms.event.publish", c.Topic)
	assert.Equal(t, StatusPublished, c.Envelope.Data.Event.Status)
	require.NotNil(t, c.Envelope.Data.Actor.User)
	assert.Equal(t, "alice", c.Envelope.Data.Actor.User.DisplayName)
	assert.Nil(t, c.Envelope.Data.Actor.Application)
	assert.Equal(t, "/admin/content", c.Envelope.Source)
}
