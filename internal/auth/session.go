package auth

import (
	"time"

	"nssportal/internal/portal"
)

// Role is what a session is allowed to do.
type Role string

const (
	RoleStudent     Role = "student"
	RoleCoordinator Role = "coordinator"
	RoleOfficer     Role = "officer"
)

// Session is an authenticated identity. Exactly one of Student and
// Coordinator is set for those roles; officers carry neither.
type Session struct {
	ID           string              `json:"id"`
	Role         Role                `json:"role"`
	Subject      string              `json:"subject"`
	Name         string              `json:"name"`
	Student      *portal.Student     `json:"student,omitempty"`
	Coordinator  *portal.Coordinator `json:"coordinator,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	LastActivity time.Time           `json:"last_activity"`
}

func (s *Session) IsOfficer() bool     { return s != nil && s.Role == RoleOfficer }
func (s *Session) IsCoordinator() bool { return s != nil && s.Role == RoleCoordinator }
func (s *Session) IsStudent() bool     { return s != nil && s.Role == RoleStudent }

// CanCoordinate reports whether the session may manage programs. Officers
// hold every coordinator privilege.
func (s *Session) CanCoordinate() bool { return s.IsCoordinator() || s.IsOfficer() }

// StudentID returns the student id of a student session.
func (s *Session) StudentID() (string, bool) {
	if !s.IsStudent() || s.Student == nil {
		return "", false
	}
	return s.Student.ID, true
}

// CoordinatorRecord returns the coordinator behind a coordinator session.
func (s *Session) CoordinatorRecord() (portal.Coordinator, bool) {
	if !s.IsCoordinator() || s.Coordinator == nil {
		return portal.Coordinator{}, false
	}
	return *s.Coordinator, true
}
