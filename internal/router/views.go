package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Page is what a view renders. Child holds the nested view's page when the
// route sits inside a layout.
type Page struct {
	View    string `json:"view"`
	Title   string `json:"title"`
	Route   string `json:"route"`
	Path    string `json:"path"`
	Params  Params `json:"params,omitempty"`
	Content any    `json:"content,omitempty"`
	Child   *Page  `json:"child,omitempty"`
}

type View interface {
	Render(ctx context.Context, loc Location) (Page, error)
}

// ViewFunc adapts a function to View.
type ViewFunc func(ctx context.Context, loc Location) (Page, error)

func (f ViewFunc) Render(ctx context.Context, loc Location) (Page, error) {
	return f(ctx, loc)
}

// Factory builds a view on first use.
type Factory func() (View, error)

// Registry builds views on demand and keeps them for later renders. A factory
// that fails is retried on the next lookup.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	views     map[string]View
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		views:     make(map[string]View),
	}
}

func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	delete(r.views, name)
}

func (r *Registry) View(name string) (View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.views[name]; ok {
		return v, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("view %q is not registered", name)
	}
	v, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build view %q: %w", name, err)
	}
	r.views[name] = v
	return v, nil
}

// Built reports whether the named view has been constructed.
func (r *Registry) Built(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.views[name]
	return ok
}

// UserSource exposes the signed-in user to the layout view.
type UserSource interface {
	User() json.RawMessage
}

type navItem struct {
	Route string `json:"route"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

var navigation = []navItem{
	{Route: RouteProjects, Title: "Projects", Path: "/projects"},
	{Route: RouteEnvs, Title: "Environments", Path: "/envs"},
	{Route: RouteCommonParams, Title: "Shared Parameters", Path: "/common-params"},
	{Route: RouteReports, Title: "Reports", Path: "/reports"},
}

// DefaultRegistry registers the console's views. Feature views are
// placeholders that describe the page they stand for.
func DefaultRegistry(users UserSource) *Registry {
	reg := NewRegistry()

	reg.Register(RouteLayout, func() (View, error) {
		return ViewFunc(func(_ context.Context, loc Location) (Page, error) {
			content := map[string]any{"navigation": navigation}
			if user := users.User(); user != nil {
				content["user"] = user
			}
			return Page{View: RouteLayout, Title: "API Auto Test", Route: loc.Name, Path: loc.Path, Content: content}, nil
		}), nil
	})

	reg.Register(RouteLogin, func() (View, error) {
		return ViewFunc(func(_ context.Context, loc Location) (Page, error) {
			return Page{
				View:  RouteLogin,
				Title: "Sign in",
				Route: loc.Name,
				Path:  loc.Path,
				Content: map[string]any{
					"action":          "POST /session/login",
					"fields":          []string{"username", "password"},
					"redirected_from": loc.RedirectedFrom,
				},
			}, nil
		}), nil
	})

	placeholders := map[string]string{
		RouteProjects:     "Projects",
		RouteEnvs:         "Environments",
		RouteCommonParams: "Shared Parameters",
		RouteCaseList:     "Test Cases",
		RouteCaseEdit:     "Edit Test Case",
		RouteTaskDetail:   "Task Detail",
		RouteReports:      "Reports",
	}
	for name, title := range placeholders {
		reg.Register(name, func() (View, error) {
			return ViewFunc(func(_ context.Context, loc Location) (Page, error) {
				return Page{View: name, Title: title, Route: loc.Name, Path: loc.Path, Params: loc.Params}, nil
			}), nil
		})
	}

	return reg
}
