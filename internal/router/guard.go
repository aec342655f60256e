package router

// Decision is a guard's verdict on a navigation.
type Decision struct {
	redirect string
}

// Allow lets the navigation proceed.
func Allow() Decision {
	return Decision{}
}

// RedirectTo replaces the navigation with the named route.
func RedirectTo(name string) Decision {
	return Decision{redirect: name}
}

func (d Decision) Allowed() bool {
	return d.redirect == ""
}

func (d Decision) RedirectName() string {
	return d.redirect
}

// Guard runs before every navigation. It must not block.
type Guard func(to, from Location) Decision

// SessionState is what the auth guard needs from the session.
type SessionState interface {
	IsLoggedIn() bool
}

// AuthGuard sends navigations to routes that require auth to the login page
// while nobody is signed in.
func AuthGuard(state SessionState) Guard {
	return func(to, _ Location) Decision {
		if !to.Meta.RequiresAuth {
			return Allow()
		}
		if state.IsLoggedIn() {
			return Allow()
		}
		return RedirectTo(RouteLogin)
	}
}
