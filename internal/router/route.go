package router

// Route names used by the console.
const (
	RouteLogin        = "login"
	RouteLayout       = "layout"
	RouteProjects     = "projects"
	RouteEnvs         = "envs"
	RouteCommonParams = "common-params"
	RouteCaseList     = "case-list"
	RouteCaseEdit     = "case-edit"
	RouteTaskDetail   = "task-detail"
	RouteReports      = "reports"
)

// Meta carries per-route access metadata.
type Meta struct {
	RequiresAuth bool `json:"requires_auth"`
}

// Route is a static route table entry. Child paths are relative to their
// parent. View names a Registry entry; Redirect is a path resolved in place of
// this entry.
type Route struct {
	Path     string
	Name     string
	View     string
	Redirect string
	Meta     Meta
	Children []Route
}

// DefaultRoutes is the console route table: a public login page and an
// authenticated layout holding the feature views.
func DefaultRoutes() []Route {
	auth := Meta{RequiresAuth: true}
	return []Route{
		{
			Path: "/login",
			Name: RouteLogin,
			View: RouteLogin,
		},
		{
			Path:     "/",
			Name:     RouteLayout,
			View:     RouteLayout,
			Redirect: "/projects",
			Meta:     auth,
			Children: []Route{
				{Path: "projects", Name: RouteProjects, View: RouteProjects, Meta: auth},
				{Path: "envs", Name: RouteEnvs, View: RouteEnvs, Meta: auth},
				{Path: "common-params", Name: RouteCommonParams, View: RouteCommonParams, Meta: auth},
				{Path: "projects/:id/cases", Name: RouteCaseList, View: RouteCaseList, Meta: auth},
				{Path: "cases/:id/edit", Name: RouteCaseEdit, View: RouteCaseEdit, Meta: auth},
				{Path: "tasks/:id", Name: RouteTaskDetail, View: RouteTaskDetail, Meta: auth},
				{Path: "reports", Name: RouteReports, View: RouteReports, Meta: auth},
			},
		},
	}
}
