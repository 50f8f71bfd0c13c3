package xeda

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveActor_UserRoutes(t *testing.T) {
	id := alice()
	for _, route := range []string{RouteNodeEditForm, RouteNodeDeleteForm, RouteNodeDeleteMultipleForm, RouteAdminContent} {
		app, user := ResolveActor(route, id)
		assert.Empty(t, app, route)
		assert.Same(t, id, user, route)
	}
}

func TestResolveActor_AnonymousOnUserRoute(t *testing.T) {
	app, user := ResolveActor(RouteNodeEditForm, nil)
	assert.Empty(t, app)
	assert.Nil(t, user)
}

func TestResolveActor_Cron(t *testing.T) {
	app, user := ResolveActor(RouteCronRun, alice())
	assert.Equal(t, ApplicationCron, app)
	assert.Nil(t, user)
}

func TestResolveActor_OtherRoute(t *testing.T) {
	app, user := ResolveActor("entity.node.canonical", alice())
	assert.Empty(t, app)
	assert.Nil(t, user)
}
