package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	loggedIn bool
	user     json.RawMessage
}

func (f *fakeSession) IsLoggedIn() bool      { return f.loggedIn }
func (f *fakeSession) User() json.RawMessage { return f.user }

func newTestRouter(t *testing.T, sess *fakeSession) *Router {
	t.Helper()
	r, err := New(DefaultRoutes(), DefaultRegistry(sess), AuthGuard(sess))
	require.NoError(t, err)
	return r
}

var protectedPaths = []struct {
	path string
	name string
}{
	{"/projects", RouteProjects},
	{"/envs", RouteEnvs},
	{"/common-params", RouteCommonParams},
	{"/projects/7/cases", RouteCaseList},
	{"/cases/12/edit", RouteCaseEdit},
	{"/tasks/3", RouteTaskDetail},
	{"/reports", RouteReports},
}

func TestGuardRedirectsAnonymousNavigation(t *testing.T) {
	r := newTestRouter(t, &fakeSession{})

	for _, tt := range protectedPaths {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := r.Navigate(tt.path)
			require.NoError(t, err)
			assert.Equal(t, RouteLogin, loc.Name)
			assert.Equal(t, "/login", loc.Path)
			assert.Equal(t, tt.path, loc.RedirectedFrom)
		})
	}
}

func TestGuardAllowsSignedInNavigation(t *testing.T) {
	r := newTestRouter(t, &fakeSession{loggedIn: true})

	for _, tt := range protectedPaths {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := r.Navigate(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.name, loc.Name)
			assert.Equal(t, tt.path, loc.Path)
			assert.True(t, loc.Meta.RequiresAuth)
			assert.Empty(t, loc.RedirectedFrom)
		})
	}
}

func TestPublicRouteIgnoresSession(t *testing.T) {
	for _, loggedIn := range []bool{false, true} {
		r := newTestRouter(t, &fakeSession{loggedIn: loggedIn})
		loc, err := r.Navigate("/login")
		require.NoError(t, err)
		assert.Equal(t, RouteLogin, loc.Name)
		assert.False(t, loc.Meta.RequiresAuth)
	}
}

func TestCaseEditDeepLinkWhileLoggedOut(t *testing.T) {
	r := newTestRouter(t, &fakeSession{})

	loc, err := r.Navigate("/cases/42/edit")
	require.NoError(t, err)
	assert.Equal(t, "/login", loc.Path)
	assert.Equal(t, "/login", r.Current().Path)
}

func TestRootRedirectsToProjects(t *testing.T) {
	r := newTestRouter(t, &fakeSession{loggedIn: true})

	loc, err := r.Navigate("/")
	require.NoError(t, err)
	assert.Equal(t, RouteProjects, loc.Name)
	assert.Equal(t, "/projects", loc.Path)
	assert.Equal(t, "/", loc.RedirectedFrom)

	anon := newTestRouter(t, &fakeSession{})
	loc, err = anon.Navigate("/")
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, loc.Name)
	assert.Equal(t, "/", loc.RedirectedFrom)
}

func TestResolve(t *testing.T) {
	r := newTestRouter(t, &fakeSession{})

	tests := []struct {
		name       string
		input      string
		wantName   string
		wantPath   string
		wantParams Params
	}{
		{"CaseListParam", "/projects/7/cases", RouteCaseList, "/projects/7/cases", Params{"id": "7"}},
		{"TrailingSlash", "/reports/", RouteReports, "/reports", nil},
		{"CaseInsensitive", "/Projects", RouteProjects, "/Projects", nil},
		{"QueryIgnored", "/tasks/9?tab=log#top", RouteTaskDetail, "/tasks/9", Params{"id": "9"}},
		{"Login", "/login", RouteLogin, "/login", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := r.Resolve(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, loc.Name)
			assert.Equal(t, tt.wantPath, loc.Path)
			assert.Equal(t, tt.wantParams, loc.Params)
		})
	}
}

func TestResolveUnknownPath(t *testing.T) {
	r := newTestRouter(t, &fakeSession{loggedIn: true})

	for _, p := range []string{"/nope", "/projects/7", "/cases/1/edit/extra"} {
		_, err := r.Navigate(p)
		assert.ErrorIs(t, err, ErrNotFound, p)
	}
}

func TestResolveByName(t *testing.T) {
	r := newTestRouter(t, &fakeSession{})

	loc, err := r.ResolveByName(RouteCaseEdit, Params{"id": "5"})
	require.NoError(t, err)
	assert.Equal(t, "/cases/5/edit", loc.Path)

	_, err = r.ResolveByName(RouteCaseEdit, nil)
	assert.Error(t, err)

	_, err = r.ResolveByName("missing", nil)
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New([]Route{
		{Path: "/a", Name: "same"},
		{Path: "/b", Name: "same"},
	}, NewRegistry())
	require.Error(t, err)
}

func TestGuardRedirectLoop(t *testing.T) {
	always := func(_, _ Location) Decision { return RedirectTo(RouteLogin) }
	r, err := New(DefaultRoutes(), NewRegistry(), always)
	require.NoError(t, err)

	_, err = r.Navigate("/projects")
	assert.ErrorIs(t, err, ErrRedirectLoop)
}

func TestRouteRedirectLoop(t *testing.T) {
	r, err := New([]Route{
		{Path: "/a", Name: "a", Redirect: "/b"},
		{Path: "/b", Name: "b", Redirect: "/a"},
	}, NewRegistry())
	require.NoError(t, err)

	_, err = r.Resolve("/a")
	assert.ErrorIs(t, err, ErrRedirectLoop)
}

func TestGuardsRunInOrderAndSeeFrom(t *testing.T) {
	var seen []string
	first := func(to, from Location) Decision {
		seen = append(seen, "first:"+from.Name+">"+to.Name)
		return Allow()
	}
	second := func(to, _ Location) Decision {
		seen = append(seen, "second:"+to.Name)
		return Allow()
	}
	r, err := New(DefaultRoutes(), NewRegistry(), first, second)
	require.NoError(t, err)

	_, err = r.Navigate("/envs")
	require.NoError(t, err)
	_, err = r.Navigate("/reports")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"first:>envs", "second:envs",
		"first:envs>reports", "second:reports",
	}, seen)
}

func TestGuardDecisionFollowsSessionChanges(t *testing.T) {
	sess := &fakeSession{}
	r := newTestRouter(t, sess)

	loc, err := r.Navigate("/reports")
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, loc.Name)

	sess.loggedIn = true
	loc, err = r.Navigate("/reports")
	require.NoError(t, err)
	assert.Equal(t, RouteReports, loc.Name)
}

func TestRenderNestsLayout(t *testing.T) {
	sess := &fakeSession{loggedIn: true, user: json.RawMessage(`{"id":1,"username":"alice"}`)}
	reg := DefaultRegistry(sess)
	r, err := New(DefaultRoutes(), reg, AuthGuard(sess))
	require.NoError(t, err)

	assert.False(t, reg.Built(RouteCaseList))
	assert.False(t, reg.Built(RouteLayout))

	loc, err := r.Navigate("/projects/3/cases")
	require.NoError(t, err)
	page, err := r.Render(context.Background(), loc)
	require.NoError(t, err)

	assert.Equal(t, RouteLayout, page.View)
	require.NotNil(t, page.Child)
	assert.Equal(t, RouteCaseList, page.Child.View)
	assert.Equal(t, Params{"id": "3"}, page.Child.Params)
	assert.True(t, reg.Built(RouteCaseList))
	assert.False(t, reg.Built(RouteReports))

	body, err := json.Marshal(page)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"user":{"id":1,"username":"alice"}`)
}

func TestRenderLoginStandsAlone(t *testing.T) {
	r := newTestRouter(t, &fakeSession{})

	loc, err := r.Navigate("/tasks/1")
	require.NoError(t, err)
	page, err := r.Render(context.Background(), loc)
	require.NoError(t, err)

	assert.Equal(t, RouteLogin, page.View)
	assert.Nil(t, page.Child)
}

func TestRegistryBuildsOnceAndRetriesFailures(t *testing.T) {
	reg := NewRegistry()
	builds := 0
	fail := true
	reg.Register("flaky", func() (View, error) {
		builds++
		if fail {
			return nil, errors.New("not yet")
		}
		return ViewFunc(func(context.Context, Location) (Page, error) { return Page{View: "flaky"}, nil }), nil
	})

	_, err := reg.View("flaky")
	require.Error(t, err)
	assert.False(t, reg.Built("flaky"))

	fail = false
	first, err := reg.View("flaky")
	require.NoError(t, err)
	second, err := reg.View("flaky")
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
	assert.NotNil(t, first)
	assert.NotNil(t, second)

	_, err = reg.View("unregistered")
	assert.Error(t, err)
}

func TestRenderWithoutViewFails(t *testing.T) {
	r, err := New([]Route{{Path: "/bare", Name: "bare"}}, NewRegistry())
	require.NoError(t, err)

	loc, err := r.Navigate("/bare")
	require.NoError(t, err)
	_, err = r.Render(context.Background(), loc)
	assert.ErrorIs(t, err, ErrNoView)
}

var escapedTaskPaths = []struct {
	name string
	path string
	id   string
}{
	{"Percent", "/tasks/100%25", "100%"},
	{"Slash", "/tasks/a%2Fb", "a/b"},
	{"Question", "/tasks/a%3Fb", "a?b"},
	{"Hash", "/tasks/a%23b", "a#b"},
	{"Space", "/tasks/a%20b", "a b"},
}

func TestNavigateKeepsEscapedSegments(t *testing.T) {
	r := newTestRouter(t, &fakeSession{loggedIn: true})

	for _, tt := range escapedTaskPaths {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := r.Navigate(tt.path)
			require.NoError(t, err)
			assert.Equal(t, RouteTaskDetail, loc.Name)
			assert.Equal(t, tt.path, loc.Path)
			assert.Equal(t, Params{"id": tt.id}, loc.Params)
		})
	}

	loc, err := r.Navigate("/cases/x%2Fy/edit")
	require.NoError(t, err)
	assert.Equal(t, RouteCaseEdit, loc.Name)
	assert.Equal(t, Params{"id": "x/y"}, loc.Params)
}

func TestNavigateEscapedSegmentWhileLoggedOut(t *testing.T) {
	r := newTestRouter(t, &fakeSession{})

	loc, err := r.Navigate("/tasks/a%2Fb")
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, loc.Name)
	assert.Equal(t, "/tasks/a%2Fb", loc.RedirectedFrom)
}

func TestResolveByNameEscapesParams(t *testing.T) {
	r := newTestRouter(t, &fakeSession{})

	for _, tt := range escapedTaskPaths {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := r.ResolveByName(RouteTaskDetail, Params{"id": tt.id})
			require.NoError(t, err)
			assert.Equal(t, tt.path, loc.Path)
			assert.Equal(t, Params{"id": tt.id}, loc.Params)

			again, err := r.Resolve(loc.Path)
			require.NoError(t, err)
			assert.Equal(t, loc.Params, again.Params)
		})
	}
}
