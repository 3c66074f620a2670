package portal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"nssportal/internal/queue"
)

// Service coordinates the repositories for operations that span more than
// one collection.
type Service struct {
	Students     *Students
	Coordinators *Coordinators
	Programs     *Programs
	Departments  *Departments

	activities ActivityStore
	events     queue.Publisher
}

// NewService wires repositories over store. events may be nil.
func NewService(store Store, events queue.Publisher) *Service {
	return &Service{
		Students:     NewStudents(store),
		Coordinators: NewCoordinators(store),
		Programs:     NewPrograms(store),
		Departments:  NewDepartments(store),
		activities:   store,
		events:       events,
	}
}

// Load fetches every collection. All four are attempted even if one fails.
func (s *Service) Load(ctx context.Context) error {
	return errors.Join(
		s.Students.FetchAll(ctx),
		s.Coordinators.FetchAll(ctx),
		s.Programs.FetchAll(ctx),
		s.Departments.FetchAll(ctx),
	)
}

// DeleteStudent removes the student, their activities and every roster
// reference to them. Once the row is gone the event is published and the
// cascade runs, even if the students reload failed.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	err := s.Students.Delete(ctx, id)
	if !Landed(err) {
		return err
	}
	s.publish(ctx, queue.StudentDeleted, id)
	if aerr := s.activities.DeleteStudentActivities(ctx, id); aerr != nil {
		return errors.Join(err, storeErr("activities", "delete", aerr))
	}
	_, perr := s.Programs.PruneMember(ctx, id)
	return errors.Join(err, perr)
}

// DeleteCoordinator removes the coordinator and drops them from program
// coordinator lists.
func (s *Service) DeleteCoordinator(ctx context.Context, id string) error {
	err := s.Coordinators.Delete(ctx, id)
	if !Landed(err) {
		return err
	}
	s.publish(ctx, queue.CoordinatorDeleted, id)
	_, perr := s.Programs.PruneMember(ctx, id)
	return errors.Join(err, perr)
}

func (s *Service) publish(ctx context.Context, typ, id string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, queue.Event(typ, id)); err != nil {
		log.Printf("publish %s %s: %v", typ, id, err)
	}
}

// SweepRosters removes roster ids that are neither students nor
// coordinators any more. Each dangling id is removed in the store with
// PruneMember; rosters are never rewritten whole. It returns how many
// program rows were rewritten, once per removed id.
func (s *Service) SweepRosters(ctx context.Context) (int, error) {
	// Programs first: every id they hold was a member when it was written,
	// so a member missing from the later reads has been deleted since.
	if err := s.Programs.FetchAll(ctx); err != nil {
		return 0, err
	}
	if err := errors.Join(s.Students.FetchAll(ctx), s.Coordinators.FetchAll(ctx)); err != nil {
		return 0, err
	}

	dangling := make(map[string]struct{})
	for _, p := range s.Programs.All() {
		for _, id := range slices.Concat(p.CoordinatorIDs, p.ParticipantIDs) {
			if !s.isMember(id) {
				dangling[id] = struct{}{}
			}
		}
	}

	changed := 0
	for id := range dangling {
		n, err := s.Programs.PruneMember(ctx, id)
		changed += n
		if !Landed(err) {
			return changed, err
		}
	}
	return changed, nil
}

// isMember reports whether id names a student or a coordinator.
func (s *Service) isMember(id string) bool {
	if _, ok := s.Students.Get(id); ok {
		return true
	}
	_, ok := s.Coordinators.Get(id)
	return ok
}

func (s *Service) checkCoordinators(ids []string) error {
	var unknown []string
	for _, id := range ids {
		if !s.isMember(id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return fieldError("coordinator_ids", "unknown: "+strings.Join(unknown, ","))
	}
	return nil
}

func (s *Service) checkParticipants(ids []string) error {
	var unknown []string
	for _, id := range ids {
		if _, ok := s.Students.Get(id); !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		return fieldError("participant_ids", "unknown: "+strings.Join(unknown, ","))
	}
	return nil
}

// AddProgram schedules a program after checking its coordinator ids.
func (s *Service) AddProgram(ctx context.Context, np NewProgram) (Program, error) {
	if err := s.checkCoordinators(dedupe(np.CoordinatorIDs)); err != nil {
		return Program{}, err
	}
	return s.Programs.Add(ctx, np)
}

// EditProgram updates a program after checking any roster it replaces.
func (s *Service) EditProgram(ctx context.Context, id string, patch ProgramPatch) error {
	if patch.CoordinatorIDs != nil {
		if err := s.checkCoordinators(dedupe(*patch.CoordinatorIDs)); err != nil {
			return err
		}
	}
	if patch.ParticipantIDs != nil {
		if err := s.checkParticipants(dedupe(*patch.ParticipantIDs)); err != nil {
			return err
		}
	}
	return s.Programs.Update(ctx, id, patch)
}

// SetParticipants replaces the program's participants with the given
// students. Last write wins.
func (s *Service) SetParticipants(ctx context.Context, programID string, ids []string) error {
	ids = dedupe(ids)
	if err := s.checkParticipants(ids); err != nil {
		return err
	}
	return s.Programs.UpdateParticipants(ctx, programID, ids)
}

// StudentReport builds a student's report from the current program list, so
// a change to a program's rosters shows up on the next read.
func (s *Service) StudentReport(ctx context.Context, studentID string) (Report, error) {
	if _, ok := s.Students.Get(studentID); !ok {
		return Report{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	acts, err := s.activities.ListActivities(ctx, studentID)
	if err != nil {
		return Report{}, storeErr("activities", "select", err)
	}
	rep := Report{
		StudentID:            studentID,
		Activities:           acts,
		CoordinatedPrograms:  []Program{},
		ParticipatedPrograms: []Program{},
	}
	for _, p := range s.Programs.All() {
		if p.HasCoordinator(studentID) {
			rep.CoordinatedPrograms = append(rep.CoordinatedPrograms, p)
		}
		if p.HasParticipant(studentID) {
			rep.ParticipatedPrograms = append(rep.ParticipatedPrograms, p)
		}
	}
	return rep, nil
}

// Certificate returns certificate data for a student who took part in the
// program.
func (s *Service) Certificate(studentID, programID string) (Certificate, error) {
	st, ok := s.Students.Get(studentID)
	if !ok {
		return Certificate{}, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	}
	p, ok := s.Programs.Get(programID)
	if !ok || !p.HasParticipant(studentID) {
		return Certificate{}, fmt.Errorf("program %s: %w", programID, ErrNotFound)
	}
	return Certificate{
		ProgramID:         p.ID,
		StudentName:       st.Name,
		StudentDepartment: st.Department,
		ProgramTitle:      p.Title,
		Date:              p.Date,
		Time:              p.Time,
		Venue:             p.Venue,
		Coordinator:       s.coordinatorNames(p.CoordinatorIDs),
	}, nil
}

func (s *Service) coordinatorNames(ids []string) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.Coordinators.Get(id); ok {
			names = append(names, c.Name)
			continue
		}
		if st, ok := s.Students.Get(id); ok {
			names = append(names, st.Name)
		}
	}
	return strings.Join(names, ", ")
}

// AddActivity records an extra activity on a student's report.
func (s *Service) AddActivity(ctx context.Context, studentID string, na NewActivity) (Activity, error) {
	if err := Validate(na); err != nil {
		return Activity{}, err
	}
	a, err := s.activities.InsertActivity(ctx, studentID, na)
	if err != nil {
		return Activity{}, storeErr("activities", "insert", err)
	}
	return a, nil
}

// DeleteActivity removes an extra activity.
func (s *Service) DeleteActivity(ctx context.Context, id string) error {
	return storeErr("activities", "delete", s.activities.DeleteActivity(ctx, id))
}

// CanManageProgram reports whether a student is listed as one of the
// program's coordinators.
func (s *Service) CanManageProgram(studentID, programID string) bool {
	p, ok := s.Programs.Get(programID)
	return ok && p.HasCoordinator(studentID)
}
