package xeda

// Route names that drive actor attribution.
const (
	RouteNodeEditForm           = "entity.node.edit_form"
	RouteNodeDeleteForm         = "entity.node.delete_form"
	RouteNodeDeleteMultipleForm = "entity.node.delete_multiple_form"
	RouteAdminContent           = "system.admin_content"
	RouteCronRun                = "entity.ultimate_cron_job.run"
)

// ApplicationCron is the application token for scheduled jobs.
const ApplicationCron = "cron"

// RequestContext is the request-scoped state the bridge needs. Build it
// once per request and pass it by value; Path is empty outside a request.
type RequestContext struct {
	RouteName string
	Path      string
	// Identity is the authenticated account, nil when anonymous.
	Identity *Account
}

// ResolveActor decides who caused a change from the current route.
// It returns an application token or a user identity, never both.
func ResolveActor(route string, identity *Account) (application string, user *Account) {
	switch route {
	case RouteNodeEditForm, RouteNodeDeleteForm, RouteNodeDeleteMultipleForm, RouteAdminContent:
		return "", identity
	case RouteCronRun:
		return ApplicationCron, nil
	}
	return "", nil
}
