package xeda

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allOps = []Operation{OpCreate, OpUpdate, OpPublish, OpUnpublish, OpDelete}

func TestStatusProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	m := NewMapper(RequestContext{}, WithIDGenerator(&sequenceIDs{}))

	properties.Property("status is removed on delete, else follows the publish flag", prop.ForAll(
		func(published bool, opIdx int) bool {
			n := eventNode()
			n.Published = published
			op := allOps[opIdx]
			env, err := m.BuildEnvelope(n, TypeEventUpdate, op)
			if err != nil {
				return false
			}
			switch {
			case op == OpDelete:
				return env.Data.Event.Status == StatusRemoved
			case published:
				return env.Data.Event.Status == StatusPublished
			default:
				return env.Data.Event.Status == StatusUnpublished
			}
		},
		gen.Bool(),
		gen.IntRange(0, len(allOps)-1),
	))

	properties.Property("enrollment codes map positionally or fail", prop.ForAll(
		func(code int) bool {
			n := eventNode()
			n.EnrollMethod = code
			env, err := m.BuildEnvelope(n, TypeEventCreate, OpCreate)
			if code < 0 || code >= len(EnrollmentMethods) {
				return err != nil
			}
			return err == nil && env.Data.Event.Enrollment.Method == EnrollmentMethods[code]
		},
		gen.IntRange(-5, 8),
	))

	properties.TestingRun(t)
}

func TestActorProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	userRoutes := []string{RouteNodeEditForm, RouteNodeDeleteForm, RouteNodeDeleteMultipleForm, RouteAdminContent}

	properties.Property("actor never carries both application and user", prop.ForAll(
		func(route string, anonymous bool) bool {
			var id *Account
			if !anonymous {
				id = alice()
			}
			app, user := ResolveActor(route, id)
			return app == "" || user == nil
		},
		gen.OneConstOf(RouteNodeEditForm, RouteNodeDeleteForm, RouteNodeDeleteMultipleForm,
			RouteAdminContent, RouteCronRun, "entity.node.canonical", ""),
		gen.Bool(),
	))

	properties.Property("user routes never attribute an application", prop.ForAll(
		func(idx int) bool {
			app, user := ResolveActor(userRoutes[idx], alice())
			return app == "" && user != nil
		},
		gen.IntRange(0, len(userRoutes)-1),
	))

	properties.TestingRun(t)
}

func TestGateProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("a closed gate never dispatches nor generates ids", prop.ForAll(
		func(opIdx int, published bool) bool {
			d := &recordingDispatcher{}
			ids := &sequenceIDs{}
			h := NewEventHandler(d, false, RequestContext{RouteName: RouteAdminContent, Identity: alice()},
				WithMapperOptions(WithIDGenerator(ids)))
			n := eventNode()
			n.Published = published
			if err := h.Handle(context.Background(), allOps[opIdx], n); err != nil {
				return false
			}
			return len(d.Calls()) == 0 && ids.Count() == 0
		},
		gen.IntRange(0, len(allOps)-1),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
