package portal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nssportal/internal/queue"
)

type fixture struct {
	store  *MemStore
	events *queue.InMemory
	svc    *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := NewMemStore()
	events := queue.NewInMemory(8)
	svc := NewService(store, events)
	require.NoError(t, svc.Load(ctx))

	for _, ns := range []NewStudent{student("101", "Anu"), student("102", "Ravi"), student("103", "Meera")} {
		_, err := svc.Students.Add(ctx, ns)
		require.NoError(t, err)
	}
	_, err := svc.Coordinators.Add(ctx, NewCoordinator{Name: "Dr. Nair", Department: "CSE", Password: "coord123"})
	require.NoError(t, err)
	return fixture{store: store, events: events, svc: svc}
}

func (f fixture) program(t *testing.T, coords ...string) Program {
	t.Helper()
	p, err := f.svc.AddProgram(context.Background(), NewProgram{
		Title: "Blood Donation Camp", Date: "2025-02-14", Time: "10:00", Venue: "Main Hall",
		CoordinatorIDs: coords,
	})
	require.NoError(t, err)
	return p
}

func TestAddProgramRejectsUnknownCoordinator(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddProgram(context.Background(), NewProgram{
		Title: "T", Date: "2025-02-14", Time: "10:00", Venue: "V",
		CoordinatorIDs: []string{"101", "999"},
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields["coordinator_ids"], "999")
	assert.Empty(t, f.svc.Programs.All())
}

func TestCoordinatedProgramShowsOnReport(t *testing.T) {
	f := newFixture(t)
	p := f.program(t, "101")

	rep, err := f.svc.StudentReport(context.Background(), "101")
	require.NoError(t, err)
	require.Len(t, rep.CoordinatedPrograms, 1)
	assert.Equal(t, p.ID, rep.CoordinatedPrograms[0].ID)
	assert.Empty(t, rep.ParticipatedPrograms)

	// Dropping the student from the coordinator list is reflected at once.
	ids := []string{"COORD1001"}
	require.NoError(t, f.svc.EditProgram(context.Background(), p.ID, ProgramPatch{CoordinatorIDs: &ids}))
	rep, err = f.svc.StudentReport(context.Background(), "101")
	require.NoError(t, err)
	assert.Empty(t, rep.CoordinatedPrograms)
}

func TestSetParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.program(t, "COORD1001")

	require.NoError(t, f.svc.SetParticipants(ctx, p.ID, []string{"102", "103", "102"}))
	got, _ := f.svc.Programs.Get(p.ID)
	assert.Equal(t, []string{"102", "103"}, got.ParticipantIDs)

	err := f.svc.SetParticipants(ctx, p.ID, []string{"102", "COORD1001"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	got, _ = f.svc.Programs.Get(p.ID)
	assert.Equal(t, []string{"102", "103"}, got.ParticipantIDs)

	// Last write wins.
	require.NoError(t, f.svc.SetParticipants(ctx, p.ID, []string{"101"}))
	got, _ = f.svc.Programs.Get(p.ID)
	assert.Equal(t, []string{"101"}, got.ParticipantIDs)

	rep, err := f.svc.StudentReport(ctx, "101")
	require.NoError(t, err)
	assert.Len(t, rep.ParticipatedPrograms, 1)
}

func TestDeleteStudentCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p1 := f.program(t, "102", "COORD1001")
	p2 := f.program(t, "COORD1001")
	require.NoError(t, f.svc.SetParticipants(ctx, p1.ID, []string{"102", "103"}))
	require.NoError(t, f.svc.SetParticipants(ctx, p2.ID, []string{"102"}))
	_, err := f.svc.AddActivity(ctx, "102", NewActivity{Badge: BadgeGreen, Title: "Tree planting"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteStudent(ctx, "102"))

	_, ok := f.svc.Students.Get("102")
	assert.False(t, ok)
	for _, p := range f.svc.Programs.All() {
		assert.False(t, p.HasParticipant("102"), p.ID)
		assert.False(t, p.HasCoordinator("102"), p.ID)
	}
	got, _ := f.svc.Programs.Get(p1.ID)
	assert.Equal(t, []string{"COORD1001"}, got.CoordinatorIDs)
	assert.Equal(t, []string{"103"}, got.ParticipantIDs)

	acts, err := f.store.ListActivities(ctx, "102")
	require.NoError(t, err)
	assert.Empty(t, acts)

	require.Equal(t, 1, f.events.Len())
	msgs, err := f.events.Consume(ctx)
	require.NoError(t, err)
	msg := <-msgs
	assert.Equal(t, queue.StudentDeleted, msg.Type)
	assert.Equal(t, "102", string(msg.Body))
}

func TestDeleteUnknownStudentPublishesNothing(t *testing.T) {
	f := newFixture(t)
	err := f.svc.DeleteStudent(context.Background(), "999")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.events.Len())
}

func TestDeleteCoordinatorCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.program(t, "101", "COORD1001")

	require.NoError(t, f.svc.DeleteCoordinator(ctx, "COORD1001"))
	got, _ := f.svc.Programs.Get(p.ID)
	assert.Equal(t, []string{"101"}, got.CoordinatorIDs)
	assert.Equal(t, 1, f.events.Len())
}

func TestSweepRostersRemovesDanglingIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.program(t, "101", "COORD1001")
	clean := f.program(t, "COORD1001")
	require.NoError(t, f.svc.SetParticipants(ctx, p.ID, []string{"102", "103"}))

	// Delete behind the service's back, as another process would.
	require.NoError(t, f.store.DeleteStudent(ctx, "103"))
	require.NoError(t, f.store.DeleteCoordinator(ctx, "COORD1001"))

	n, err := f.svc.SweepRosters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, _ := f.svc.Programs.Get(p.ID)
	assert.Equal(t, []string{"101"}, got.CoordinatorIDs)
	assert.Equal(t, []string{"102"}, got.ParticipantIDs)
	got, _ = f.svc.Programs.Get(clean.ID)
	assert.Empty(t, got.CoordinatorIDs)

	n, err = f.svc.SweepRosters(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// racingStore runs beforeListStudents once, the way another process would
// write while a sweep is between its reads.
type racingStore struct {
	*MemStore
	beforeListStudents func()
}

func (r *racingStore) ListStudents(ctx context.Context) ([]Student, error) {
	if f := r.beforeListStudents; f != nil {
		r.beforeListStudents = nil
		f()
	}
	return r.MemStore.ListStudents(ctx)
}

func TestSweepRostersKeepsConcurrentEnrolment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.program(t, "COORD1001")
	require.NoError(t, f.svc.SetParticipants(ctx, p.ID, []string{"101", "102"}))
	require.NoError(t, f.store.DeleteStudent(ctx, "102"))

	rs := &racingStore{MemStore: f.store}
	svc := NewService(rs, nil)
	rs.beforeListStudents = func() {
		ids := []string{"101", "102", "103"}
		require.NoError(t, f.store.UpdateProgram(ctx, p.ID, ProgramPatch{ParticipantIDs: &ids}))
	}

	n, err := svc.SweepRosters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.store.GetProgram(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "103"}, got.ParticipantIDs)
}

func TestDeleteStudentCascadesWhenReloadFails(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	events := queue.NewInMemory(8)
	svc := NewService(store, events)
	require.NoError(t, svc.Load(ctx))
	_, err := svc.Students.Add(ctx, student("101", "Anu"))
	require.NoError(t, err)
	p, err := svc.AddProgram(ctx, NewProgram{
		Title: "Blood Donation Camp", Date: "2025-02-14", Time: "10:00", Venue: "Main Hall",
		CoordinatorIDs: []string{"101"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.SetParticipants(ctx, p.ID, []string{"101"}))
	_, err = svc.AddActivity(ctx, "101", NewActivity{Badge: BadgeGreen, Title: "Tree planting"})
	require.NoError(t, err)

	store.fail["ListStudents"] = true
	err = svc.DeleteStudent(ctx, "101")
	require.ErrorIs(t, err, errDown)
	assert.True(t, Landed(err))

	_, err = store.GetStudent(ctx, "101")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := store.GetProgram(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ParticipantIDs)
	assert.Empty(t, got.CoordinatorIDs)
	acts, err := store.ListActivities(ctx, "101")
	require.NoError(t, err)
	assert.Empty(t, acts)
	assert.Equal(t, 1, events.Len())
}

func TestCertificate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.program(t, "COORD1001", "101")
	require.NoError(t, f.svc.SetParticipants(ctx, p.ID, []string{"102"}))

	cert, err := f.svc.Certificate("102", p.ID)
	require.NoError(t, err)
	assert.Equal(t, Certificate{
		ProgramID:         p.ID,
		StudentName:       "Ravi",
		StudentDepartment: "CSE",
		ProgramTitle:      "Blood Donation Camp",
		Date:              "2025-02-14",
		Time:              "10:00",
		Venue:             "Main Hall",
		Coordinator:       "Dr. Nair, Anu",
	}, cert)

	_, err = f.svc.Certificate("103", p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.AddActivity(ctx, "101", NewActivity{Badge: "red", Title: "x"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.AddActivity(ctx, "999", NewActivity{Badge: BadgeYellow, Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := f.svc.AddActivity(ctx, "101", NewActivity{Badge: BadgeYellow, Title: "Rally"})
	require.NoError(t, err)
	rep, err := f.svc.StudentReport(ctx, "101")
	require.NoError(t, err)
	require.Len(t, rep.Activities, 1)
	assert.Equal(t, "Rally", rep.Activities[0].Title)

	require.NoError(t, f.svc.DeleteActivity(ctx, a.ID))
	assert.ErrorIs(t, f.svc.DeleteActivity(ctx, a.ID), ErrNotFound)
}

func TestCanManageProgram(t *testing.T) {
	f := newFixture(t)
	p := f.program(t, "101")
	assert.True(t, f.svc.CanManageProgram("101", p.ID))
	assert.False(t, f.svc.CanManageProgram("102", p.ID))
	assert.False(t, f.svc.CanManageProgram("101", "missing"))
}
