// Package router maps console paths to views and gates navigation with
// guards. It performs no I/O of its own; guards read in-memory state only.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned when no route matches a path.
	ErrNotFound = errors.New("route not found")
	// ErrUnknownRoute is returned when navigating by a name that is not registered.
	ErrUnknownRoute = errors.New("unknown route name")
	// ErrRedirectLoop is returned when redirects do not settle.
	ErrRedirectLoop = errors.New("too many redirects")
	// ErrNoView is returned when rendering a route that has no view.
	ErrNoView = errors.New("route has no view")
)

const maxRedirects = 8

// Params holds the values captured by ":name" path segments.
type Params map[string]string

// Location is a resolved navigation target.
type Location struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	Params         Params `json:"params,omitempty"`
	Meta           Meta   `json:"meta"`
	RedirectedFrom string `json:"redirected_from,omitempty"`

	matched []*record
}

type record struct {
	name     string
	path     string
	view     string
	redirect string
	meta     Meta
	segments []string
	parent   *record
}

// chain returns the records from the root down to r.
func (r *record) chain() []*record {
	var out []*record
	for rec := r; rec != nil; rec = rec.parent {
		out = append([]*record{rec}, out...)
	}
	return out
}

type Router struct {
	records  []*record
	byName   map[string]*record
	registry *Registry
	guards   []Guard

	mu      sync.Mutex
	current Location
}

// New flattens routes and validates them. Guards run in the given order.
func New(routes []Route, registry *Registry, guards ...Guard) (*Router, error) {
	r := &Router{
		byName:   make(map[string]*record),
		registry: registry,
		guards:   guards,
	}
	if err := r.add(routes, nil); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Router) add(routes []Route, parent *record) error {
	for _, route := range routes {
		full := joinPath(parent, route.Path)
		rec := &record{
			name:     route.Name,
			path:     full,
			view:     route.View,
			redirect: route.Redirect,
			meta:     route.Meta,
			segments: splitPath(full),
			parent:   parent,
		}
		if rec.name != "" {
			if _, dup := r.byName[rec.name]; dup {
				return fmt.Errorf("duplicate route name %q", rec.name)
			}
			r.byName[rec.name] = rec
		}
		// children first so "/" does not shadow its own subtree
		if err := r.add(route.Children, rec); err != nil {
			return err
		}
		r.records = append(r.records, rec)
	}
	return nil
}

func joinPath(parent *record, p string) string {
	if strings.HasPrefix(p, "/") || parent == nil {
		return "/" + strings.Trim(p, "/")
	}
	base := strings.TrimSuffix(parent.path, "/")
	return base + "/" + strings.Trim(p, "/")
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func (rec *record) match(segments []string) (Params, bool) {
	if len(segments) != len(rec.segments) {
		return nil, false
	}
	var params Params
	for i, want := range rec.segments {
		got := segments[i]
		if strings.HasPrefix(want, ":") {
			if params == nil {
				params = make(Params)
			}
			params[want[1:]] = got
			continue
		}
		if !strings.EqualFold(want, got) {
			return nil, false
		}
	}
	return params, true
}

// Paths lists every routable path in ":param" form.
func (r *Router) Paths() []string {
	out := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.path)
	}
	return out
}

// Resolve matches raw (query and fragment ignored) and follows route
// redirects. Guards are not consulted. raw is an escaped path: segments are
// split before they are decoded, so "%2F" stays inside its segment. The
// returned Path is escaped; Params hold decoded values.
func (r *Router) Resolve(raw string) (Location, error) {
	return r.resolve(raw, 0)
}

func (r *Router) resolve(raw string, hops int) (Location, error) {
	if hops > maxRedirects {
		return Location{}, ErrRedirectLoop
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("parse path %q: %w", raw, err)
	}
	escaped := splitPath(u.EscapedPath())
	segments := make([]string, len(escaped))
	for i, seg := range escaped {
		if segments[i], err = url.PathUnescape(seg); err != nil {
			return Location{}, fmt.Errorf("parse path %q: %w", raw, err)
		}
	}
	path := "/" + strings.Join(escaped, "/")

	for _, rec := range r.records {
		params, ok := rec.match(segments)
		if !ok {
			continue
		}
		if rec.redirect != "" {
			loc, err := r.resolve(rec.redirect, hops+1)
			if err != nil {
				return Location{}, err
			}
			if loc.RedirectedFrom == "" {
				loc.RedirectedFrom = path
			}
			return loc, nil
		}
		return newLocation(rec, path, params), nil
	}
	return Location{}, fmt.Errorf("%w: %s", ErrNotFound, path)
}

func newLocation(rec *record, path string, params Params) Location {
	chain := rec.chain()
	loc := Location{
		Name:    rec.name,
		Path:    path,
		Params:  params,
		matched: chain,
	}
	for _, c := range chain {
		if c.meta.RequiresAuth {
			loc.Meta.RequiresAuth = true
		}
	}
	return loc
}

// ResolveByName builds the location of a named route, filling ":param"
// segments from params.
func (r *Router) ResolveByName(name string, params Params) (Location, error) {
	rec, ok := r.byName[name]
	if !ok {
		return Location{}, fmt.Errorf("%w: %s", ErrUnknownRoute, name)
	}
	parts := make([]string, 0, len(rec.segments))
	for _, seg := range rec.segments {
		if strings.HasPrefix(seg, ":") {
			v, ok := params[seg[1:]]
			if !ok || v == "" {
				return Location{}, fmt.Errorf("route %s: missing param %s", name, seg[1:])
			}
			parts = append(parts, url.PathEscape(v))
			continue
		}
		parts = append(parts, seg)
	}
	return r.Resolve("/" + strings.Join(parts, "/"))
}

// Navigate resolves raw and runs the guards. A guard redirect replaces the
// navigation: the new target is resolved and guarded in turn. The settled
// location becomes Current.
func (r *Router) Navigate(raw string) (Location, error) {
	to, err := r.Resolve(raw)
	if err != nil {
		return Location{}, err
	}

	r.mu.Lock()
	from := r.current
	r.mu.Unlock()

	requested := to.Path
	if to.RedirectedFrom != "" {
		requested = to.RedirectedFrom
	}
	for hops := 0; ; hops++ {
		if hops > maxRedirects {
			return Location{}, ErrRedirectLoop
		}
		decision := r.runGuards(to, from)
		if decision.Allowed() {
			break
		}
		next, err := r.ResolveByName(decision.RedirectName(), nil)
		if err != nil {
			return Location{}, err
		}
		next.RedirectedFrom = requested
		to = next
	}

	r.mu.Lock()
	r.current = to
	r.mu.Unlock()
	return to, nil
}

func (r *Router) runGuards(to, from Location) Decision {
	for _, guard := range r.guards {
		if d := guard(to, from); !d.Allowed() {
			return d
		}
	}
	return Allow()
}

// Current returns the last settled navigation.
func (r *Router) Current() Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Render builds the page for loc: the leaf route's view, nested inside the
// view of every enclosing route that has one.
func (r *Router) Render(ctx context.Context, loc Location) (Page, error) {
	if len(loc.matched) == 0 {
		return Page{}, fmt.Errorf("%w: %s", ErrNotFound, loc.Path)
	}
	leaf := loc.matched[len(loc.matched)-1]
	if leaf.view == "" {
		return Page{}, fmt.Errorf("%w: %s", ErrNoView, loc.Name)
	}

	var page *Page
	for i := len(loc.matched) - 1; i >= 0; i-- {
		rec := loc.matched[i]
		if rec.view == "" {
			continue
		}
		view, err := r.registry.View(rec.view)
		if err != nil {
			return Page{}, err
		}
		p, err := view.Render(ctx, loc)
		if err != nil {
			return Page{}, fmt.Errorf("render %s: %w", rec.view, err)
		}
		p.Child = page
		page = &p
	}
	return *page, nil
}
