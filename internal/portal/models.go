package portal

import (
	"time"
)

// Student is a registered volunteer. ID is a 3-digit string.
type Student struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Department      string    `json:"department"`
	Password        string    `json:"-"`
	ProfileImageURL *string   `json:"profile_image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Coordinator manages programs. Only active coordinators may log in.
type Coordinator struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	Password   string    `json:"-"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Program is a scheduled activity. CoordinatorIDs may hold student or
// coordinator ids; ParticipantIDs hold student ids.
type Program struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Venue          string    `json:"venue"`
	CoordinatorIDs []string  `json:"coordinator_ids"`
	ParticipantIDs []string  `json:"participant_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasCoordinator reports whether id is one of the program's coordinators.
func (p Program) HasCoordinator(id string) bool { return contains(p.CoordinatorIDs, id) }

// HasParticipant reports whether id is enrolled in the program.
func (p Program) HasParticipant(id string) bool { return contains(p.ParticipantIDs, id) }

// Department groups students and coordinators.
type Department struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity badges.
const (
	BadgeGreen  = "green"
	BadgeYellow = "yellow"
)

// Activity is an extra activity the officer records on a student's report.
type Activity struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Badge     string    `json:"badge"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStudent contains what is needed to register a student. An empty ID lets
// the store assign the lowest free 3-digit id.
type NewStudent struct {
	ID              string  `json:"id" validate:"omitempty,len=3,number"`
	Name            string  `json:"name" validate:"required"`
	Department      string  `json:"department" validate:"required"`
	Password        string  `json:"password" validate:"required"`
	ProfileImageURL *string `json:"profile_image_url" validate:"omitempty,url"`
}

// StudentPatch lists the fields to overwrite. Nil fields are left alone.
type StudentPatch struct {
	Name            *string `json:"name" validate:"omitempty,min=1"`
	Department      *string `json:"department" validate:"omitempty,min=1"`
	Password        *string `json:"password" validate:"omitempty,min=1"`
	ProfileImageURL *string `json:"profile_image_url" validate:"omitempty,url"`
}

func (p StudentPatch) empty() bool {
	return p.Name == nil && p.Department == nil && p.Password == nil && p.ProfileImageURL == nil
}

// NewCoordinator contains what is needed to create a coordinator. The id is
// assigned by the store.
type NewCoordinator struct {
	Name       string `json:"name" validate:"required"`
	Department string `json:"department" validate:"required"`
	Password   string `json:"password" validate:"required"`
	IsActive   *bool  `json:"is_active"`
}

// CoordinatorPatch lists the coordinator fields to overwrite.
type CoordinatorPatch struct {
	Name       *string `json:"name" validate:"omitempty,min=1"`
	Department *string `json:"department" validate:"omitempty,min=1"`
	Password   *string `json:"password" validate:"omitempty,min=1"`
	IsActive   *bool   `json:"is_active"`
}

func (p CoordinatorPatch) empty() bool {
	return p.Name == nil && p.Department == nil && p.Password == nil && p.IsActive == nil
}

// NewProgram contains what is needed to schedule a program. Participants
// always start empty.
type NewProgram struct {
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	Date           string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time           string   `json:"time" validate:"required"`
	Venue          string   `json:"venue" validate:"required"`
	CoordinatorIDs []string `json:"coordinator_ids" validate:"dive,required"`
}

// ProgramPatch lists the program fields to overwrite.
type ProgramPatch struct {
	Title          *string   `json:"title" validate:"omitempty,min=1"`
	Description    *string   `json:"description"`
	Date           *string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time           *string   `json:"time" validate:"omitempty,min=1"`
	Venue          *string   `json:"venue" validate:"omitempty,min=1"`
	CoordinatorIDs *[]string `json:"coordinator_ids"`
	ParticipantIDs *[]string `json:"participant_ids"`
}

func (p ProgramPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.Date == nil && p.Time == nil &&
		p.Venue == nil && p.CoordinatorIDs == nil && p.ParticipantIDs == nil
}

// DepartmentPatch lists the department fields to overwrite.
type DepartmentPatch struct {
	Name     *string `json:"name" validate:"omitempty,min=1"`
	IsActive *bool   `json:"is_active"`
}

func (p DepartmentPatch) empty() bool { return p.Name == nil && p.IsActive == nil }

// NewActivity records an extra activity on a student's report.
type NewActivity struct {
	Badge   string `json:"badge" validate:"required,oneof=green yellow"`
	Title   string `json:"title" validate:"required"`
	Content string `json:"content"`
}

// Report is what a student sees about themselves.
type Report struct {
	StudentID            string     `json:"student_id"`
	Activities           []Activity `json:"activities"`
	CoordinatedPrograms  []Program  `json:"coordinated_programs"`
	ParticipatedPrograms []Program  `json:"participated_programs"`
}

// Certificate is the participation certificate for one program.
type Certificate struct {
	ProgramID         string `json:"program_id"`
	StudentName       string `json:"student_name"`
	StudentDepartment string `json:"student_department"`
	ProgramTitle      string `json:"program_title"`
	Date              string `json:"date"`
	Time              string `json:"time"`
	Venue             string `json:"venue"`
	Coordinator       string `json:"coordinator"`
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// dedupe returns ids without duplicates or blanks, keeping first occurrences.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func without(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	removed := false
	for _, v := range ids {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}
