package portal

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store for development and tests. It keeps the
// same ordering and id rules as the Postgres store.
type MemStore struct {
	mu           sync.Mutex
	seq          int64
	nextCoord    int
	students     map[string]memRow[Student]
	coordinators map[string]memRow[Coordinator]
	programs     map[string]memRow[Program]
	departments  map[string]memRow[Department]
	activities   map[string]memRow[Activity]

	// Now stamps created_at/updated_at. Defaults to time.Now.
	Now func() time.Time
}

type memRow[T any] struct {
	seq int64
	v   T
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		nextCoord:    1001,
		students:     make(map[string]memRow[Student]),
		coordinators: make(map[string]memRow[Coordinator]),
		programs:     make(map[string]memRow[Program]),
		departments:  make(map[string]memRow[Department]),
		activities:   make(map[string]memRow[Activity]),
		Now:          time.Now,
	}
}

func (m *MemStore) now() time.Time { return m.Now().UTC() }

func (m *MemStore) next() int64 {
	m.seq++
	return m.seq
}

// newestFirst sorts rows by insertion order, newest first.
func newestFirst[T any](rows map[string]memRow[T]) []T {
	list := make([]memRow[T], 0, len(rows))
	for _, r := range rows {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq > list[j].seq })
	out := make([]T, len(list))
	for i, r := range list {
		out[i] = r.v
	}
	return out
}

func copyIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func copyProgram(p Program) Program {
	p.CoordinatorIDs = copyIDs(p.CoordinatorIDs)
	p.ParticipantIDs = copyIDs(p.ParticipantIDs)
	return p
}

// Students

func (m *MemStore) ListStudents(ctx context.Context) ([]Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Student, 0, len(m.students))
	for _, r := range m.students {
		out = append(out, r.v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) GetStudent(ctx context.Context, id string) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.students[id]
	if !ok {
		return Student{}, ErrNotFound
	}
	return r.v, nil
}

func (m *MemStore) FindStudent(ctx context.Context, id, password string) (Student, error) {
	s, err := m.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if s.Password != password {
		return Student{}, ErrNotFound
	}
	return s, nil
}

func (m *MemStore) InsertStudent(ctx context.Context, ns NewStudent) (Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := ns.ID
	if id == "" {
		for n := 100; n <= 999; n++ {
			if _, taken := m.students[strconv.Itoa(n)]; !taken {
				id = strconv.Itoa(n)
				break
			}
		}
		if id == "" {
			return Student{}, fmt.Errorf("no free student id: %w", ErrConflict)
		}
	}
	if _, taken := m.students[id]; taken {
		return Student{}, fmt.Errorf("student %s: %w", id, ErrConflict)
	}
	s := Student{
		ID:              id,
		Name:            ns.Name,
		Department:      ns.Department,
		Password:        ns.Password,
		ProfileImageURL: ns.ProfileImageURL,
		CreatedAt:       m.now(),
	}
	m.students[id] = memRow[Student]{seq: m.next(), v: s}
	return s, nil
}

func (m *MemStore) UpdateStudent(ctx context.Context, id string, patch StudentPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.students[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Name != nil {
		r.v.Name = *patch.Name
	}
	if patch.Department != nil {
		r.v.Department = *patch.Department
	}
	if patch.Password != nil {
		r.v.Password = *patch.Password
	}
	if patch.ProfileImageURL != nil {
		url := *patch.ProfileImageURL
		r.v.ProfileImageURL = &url
	}
	m.students[id] = r
	return nil
}

func (m *MemStore) DeleteStudent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return ErrNotFound
	}
	delete(m.students, id)
	return nil
}

// Coordinators

func (m *MemStore) ListCoordinators(ctx context.Context) ([]Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.coordinators), nil
}

func (m *MemStore) GetCoordinator(ctx context.Context, id string) (Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.coordinators[id]
	if !ok {
		return Coordinator{}, ErrNotFound
	}
	return r.v, nil
}

func (m *MemStore) FindActiveCoordinator(ctx context.Context, id, password string) (Coordinator, error) {
	c, err := m.GetCoordinator(ctx, id)
	if err != nil {
		return Coordinator{}, err
	}
	if c.Password != password || !c.IsActive {
		return Coordinator{}, ErrNotFound
	}
	return c, nil
}

func (m *MemStore) InsertCoordinator(ctx context.Context, nc NewCoordinator) (Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "COORD" + strconv.Itoa(m.nextCoord)
	for {
		if _, taken := m.coordinators[id]; !taken {
			break
		}
		m.nextCoord++
		id = "COORD" + strconv.Itoa(m.nextCoord)
	}
	m.nextCoord++
	active := true
	if nc.IsActive != nil {
		active = *nc.IsActive
	}
	c := Coordinator{
		ID:         id,
		Name:       nc.Name,
		Department: nc.Department,
		Password:   nc.Password,
		IsActive:   active,
		CreatedAt:  m.now(),
	}
	m.coordinators[id] = memRow[Coordinator]{seq: m.next(), v: c}
	return c, nil
}

// PutCoordinator stores c under its own id, replacing any existing record.
// It exists for seeding fixtures with well-known ids.
func (m *MemStore) PutCoordinator(c Coordinator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.coordinators[c.ID] = memRow[Coordinator]{seq: m.next(), v: c}
}

func (m *MemStore) UpdateCoordinator(ctx context.Context, id string, patch CoordinatorPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.coordinators[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Name != nil {
		r.v.Name = *patch.Name
	}
	if patch.Department != nil {
		r.v.Department = *patch.Department
	}
	if patch.Password != nil {
		r.v.Password = *patch.Password
	}
	if patch.IsActive != nil {
		r.v.IsActive = *patch.IsActive
	}
	m.coordinators[id] = r
	return nil
}

func (m *MemStore) DeleteCoordinator(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.coordinators[id]; !ok {
		return ErrNotFound
	}
	delete(m.coordinators, id)
	return nil
}

// Programs

func (m *MemStore) ListPrograms(ctx context.Context) ([]Program, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := newestFirst(m.programs)
	for i := range out {
		out[i] = copyProgram(out[i])
	}
	return out, nil
}

func (m *MemStore) GetProgram(ctx context.Context, id string) (Program, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.programs[id]
	if !ok {
		return Program{}, ErrNotFound
	}
	return copyProgram(r.v), nil
}

func (m *MemStore) InsertProgram(ctx context.Context, np NewProgram) (Program, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	p := Program{
		ID:             uuid.NewString(),
		Title:          np.Title,
		Description:    np.Description,
		Date:           np.Date,
		Time:           np.Time,
		Venue:          np.Venue,
		CoordinatorIDs: copyIDs(np.CoordinatorIDs),
		ParticipantIDs: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.programs[p.ID] = memRow[Program]{seq: m.next(), v: p}
	return copyProgram(p), nil
}

func (m *MemStore) UpdateProgram(ctx context.Context, id string, patch ProgramPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.programs[id]
	if !ok {
		return ErrNotFound
	}
	p := &r.v
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Date != nil {
		p.Date = *patch.Date
	}
	if patch.Time != nil {
		p.Time = *patch.Time
	}
	if patch.Venue != nil {
		p.Venue = *patch.Venue
	}
	if patch.CoordinatorIDs != nil {
		p.CoordinatorIDs = copyIDs(*patch.CoordinatorIDs)
	}
	if patch.ParticipantIDs != nil {
		p.ParticipantIDs = copyIDs(*patch.ParticipantIDs)
	}
	p.UpdatedAt = m.now()
	m.programs[id] = r
	return nil
}

func (m *MemStore) DeleteProgram(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.programs[id]; !ok {
		return ErrNotFound
	}
	delete(m.programs, id)
	return nil
}

func (m *MemStore) PruneMember(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for pid, r := range m.programs {
		coords, c1 := without(r.v.CoordinatorIDs, id)
		parts, c2 := without(r.v.ParticipantIDs, id)
		if !c1 && !c2 {
			continue
		}
		r.v.CoordinatorIDs = coords
		r.v.ParticipantIDs = parts
		r.v.UpdatedAt = m.now()
		m.programs[pid] = r
		changed++
	}
	return changed, nil
}

// Departments

func (m *MemStore) ListDepartments(ctx context.Context) ([]Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Department, 0, len(m.departments))
	for _, r := range m.departments {
		out = append(out, r.v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *MemStore) GetDepartment(ctx context.Context, id string) (Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.departments[id]
	if !ok {
		return Department{}, ErrNotFound
	}
	return r.v, nil
}

func (m *MemStore) InsertDepartment(ctx context.Context, name string) (Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := Department{ID: uuid.NewString(), Name: name, IsActive: true, CreatedAt: m.now()}
	m.departments[d.ID] = memRow[Department]{seq: m.next(), v: d}
	return d, nil
}

func (m *MemStore) UpdateDepartment(ctx context.Context, id string, patch DepartmentPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.departments[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Name != nil {
		r.v.Name = *patch.Name
	}
	if patch.IsActive != nil {
		r.v.IsActive = *patch.IsActive
	}
	m.departments[id] = r
	return nil
}

func (m *MemStore) DeleteDepartment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.departments[id]; !ok {
		return ErrNotFound
	}
	delete(m.departments, id)
	return nil
}

// Activities

func (m *MemStore) ListActivities(ctx context.Context, studentID string) ([]Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Activity{}
	for _, a := range newestFirst(m.activities) {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MemStore) InsertActivity(ctx context.Context, studentID string, na NewActivity) (Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[studentID]; !ok {
		return Activity{}, ErrNotFound
	}
	a := Activity{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Badge:     na.Badge,
		Title:     na.Title,
		Content:   na.Content,
		CreatedAt: m.now(),
	}
	m.activities[a.ID] = memRow[Activity]{seq: m.next(), v: a}
	return a, nil
}

func (m *MemStore) DeleteActivity(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.activities[id]; !ok {
		return ErrNotFound
	}
	delete(m.activities, id)
	return nil
}

func (m *MemStore) DeleteStudentActivities(ctx context.Context, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.activities {
		if r.v.StudentID == studentID {
			delete(m.activities, id)
		}
	}
	return nil
}
