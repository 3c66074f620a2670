// Package view decides which portal view a session may see.
package view

import (
	"nssportal/internal/auth"
)

// View is one screen of the portal.
type View string

const (
	Home        View = "home"
	Programs    View = "programs"
	Login       View = "login"
	Student     View = "student"
	Coordinator View = "coordinator"
	Officer     View = "officer"
	Stories     View = "stories"
)

var gates = map[View]func(*auth.Session) bool{
	Home:        nil,
	Programs:    nil,
	Login:       nil,
	Student:     (*auth.Session).IsStudent,
	Coordinator: (*auth.Session).CanCoordinate,
	Officer:     (*auth.Session).IsOfficer,
	Stories:     func(s *auth.Session) bool { return s != nil },
}

// Parse returns the view named by s. Unknown names map to Home.
func Parse(s string) (View, bool) {
	v := View(s)
	if _, ok := gates[v]; !ok {
		return Home, false
	}
	return v, true
}

// Public reports whether v needs no session.
func (v View) Public() bool {
	gate, ok := gates[v]
	return ok && gate == nil
}

// Resolve returns the view to render when s asks for requested. A gated
// view the session may not see falls back to Login. s may be nil.
func Resolve(s *auth.Session, requested View) View {
	gate, ok := gates[requested]
	if !ok {
		return Home
	}
	if requested.Public() || gate(s) {
		return requested
	}
	return Login
}

// HomeFor is the portal a role lands on after login.
func HomeFor(role auth.Role) View {
	switch role {
	case auth.RoleStudent:
		return Student
	case auth.RoleCoordinator:
		return Coordinator
	case auth.RoleOfficer:
		return Officer
	}
	return Home
}
