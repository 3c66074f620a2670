package portal

import (
	"context"
	"errors"
)

// mutate runs a store write and re-fetches the collection after it. A failed
// write leaves the cache untouched and is returned as a *StoreError; a failed
// re-fetch after a successful write is returned as a *StaleError.
func mutate[T any](ctx context.Context, c *Collection[T], op string, write func() error) error {
	if err := write(); err != nil {
		err = storeErr(c.name, op, err)
		c.fail(err)
		return err
	}
	if err := c.Refresh(ctx); err != nil {
		return &StaleError{Err: err}
	}
	return nil
}

// Students keeps the students collection in sync with the store.
type Students struct {
	store StudentStore
	cache *Collection[Student]
}

// NewStudents creates the students repository. Call FetchAll to load it.
func NewStudents(store StudentStore) *Students {
	return &Students{store: store, cache: NewCollection("students", store.ListStudents)}
}

// FetchAll reloads every student ordered by id.
func (r *Students) FetchAll(ctx context.Context) error { return r.cache.Refresh(ctx) }

// All returns the cached students.
func (r *Students) All() []Student { return r.cache.All() }

// State reports the cache state.
func (r *Students) State() State { return r.cache.State() }

// Get returns a cached student.
func (r *Students) Get(id string) (Student, bool) {
	return r.cache.Find(func(s Student) bool { return s.ID == id })
}

// Add inserts a student and re-fetches.
func (r *Students) Add(ctx context.Context, ns NewStudent) (Student, error) {
	if err := Validate(ns); err != nil {
		return Student{}, err
	}
	var created Student
	err := mutate(ctx, r.cache, "insert", func() error {
		var err error
		created, err = r.store.InsertStudent(ctx, ns)
		return err
	})
	return created, err
}

// Update overwrites the fields set in patch and re-fetches.
func (r *Students) Update(ctx context.Context, id string, patch StudentPatch) error {
	if patch.empty() {
		return ErrNoChanges
	}
	if err := Validate(patch); err != nil {
		return err
	}
	return mutate(ctx, r.cache, "update", func() error { return r.store.UpdateStudent(ctx, id, patch) })
}

// Delete removes a student and re-fetches. Program rosters are not touched
// here; see Service.DeleteStudent.
func (r *Students) Delete(ctx context.Context, id string) error {
	return mutate(ctx, r.cache, "delete", func() error { return r.store.DeleteStudent(ctx, id) })
}

// Coordinators keeps the coordinators collection in sync with the store.
type Coordinators struct {
	store CoordinatorStore
	cache *Collection[Coordinator]
}

// NewCoordinators creates the coordinators repository.
func NewCoordinators(store CoordinatorStore) *Coordinators {
	return &Coordinators{store: store, cache: NewCollection("coordinators", store.ListCoordinators)}
}

// FetchAll reloads every coordinator, newest first.
func (r *Coordinators) FetchAll(ctx context.Context) error { return r.cache.Refresh(ctx) }

// All returns the cached coordinators.
func (r *Coordinators) All() []Coordinator { return r.cache.All() }

// State reports the cache state.
func (r *Coordinators) State() State { return r.cache.State() }

// Get returns a cached coordinator.
func (r *Coordinators) Get(id string) (Coordinator, bool) {
	return r.cache.Find(func(c Coordinator) bool { return c.ID == id })
}

// Add inserts a coordinator with a store-assigned id and re-fetches.
func (r *Coordinators) Add(ctx context.Context, nc NewCoordinator) (Coordinator, error) {
	if err := Validate(nc); err != nil {
		return Coordinator{}, err
	}
	var created Coordinator
	err := mutate(ctx, r.cache, "insert", func() error {
		var err error
		created, err = r.store.InsertCoordinator(ctx, nc)
		return err
	})
	return created, err
}

// Update overwrites the fields set in patch and re-fetches.
func (r *Coordinators) Update(ctx context.Context, id string, patch CoordinatorPatch) error {
	if patch.empty() {
		return ErrNoChanges
	}
	if err := Validate(patch); err != nil {
		return err
	}
	return mutate(ctx, r.cache, "update", func() error { return r.store.UpdateCoordinator(ctx, id, patch) })
}

// Delete removes a coordinator and re-fetches.
func (r *Coordinators) Delete(ctx context.Context, id string) error {
	return mutate(ctx, r.cache, "delete", func() error { return r.store.DeleteCoordinator(ctx, id) })
}

// ToggleAccess flips is_active. The current value is read from the store,
// not the cache, so a stale cache cannot flip it the wrong way.
func (r *Coordinators) ToggleAccess(ctx context.Context, id string) (bool, error) {
	cur, err := r.store.GetCoordinator(ctx, id)
	if err != nil {
		err = storeErr("coordinators", "select", err)
		r.cache.fail(err)
		return false, err
	}
	active := !cur.IsActive
	if err := r.Update(ctx, id, CoordinatorPatch{IsActive: &active}); err != nil {
		return cur.IsActive, err
	}
	return active, nil
}

// Programs keeps the programs collection in sync with the store.
type Programs struct {
	store ProgramStore
	cache *Collection[Program]
}

// NewPrograms creates the programs repository.
func NewPrograms(store ProgramStore) *Programs {
	return &Programs{store: store, cache: NewCollection("programs", store.ListPrograms)}
}

// FetchAll reloads every program, newest first.
func (r *Programs) FetchAll(ctx context.Context) error { return r.cache.Refresh(ctx) }

// All returns the cached programs.
func (r *Programs) All() []Program { return r.cache.All() }

// State reports the cache state.
func (r *Programs) State() State { return r.cache.State() }

// Get returns a cached program.
func (r *Programs) Get(id string) (Program, bool) {
	return r.cache.Find(func(p Program) bool { return p.ID == id })
}

// Add inserts a program with a store-assigned id and empty participants.
func (r *Programs) Add(ctx context.Context, np NewProgram) (Program, error) {
	if err := Validate(np); err != nil {
		return Program{}, err
	}
	np.CoordinatorIDs = dedupe(np.CoordinatorIDs)
	var created Program
	err := mutate(ctx, r.cache, "insert", func() error {
		var err error
		created, err = r.store.InsertProgram(ctx, np)
		return err
	})
	return created, err
}

// Update overwrites the fields set in patch, stamps updated_at and re-fetches.
func (r *Programs) Update(ctx context.Context, id string, patch ProgramPatch) error {
	if patch.empty() {
		return ErrNoChanges
	}
	if err := Validate(patch); err != nil {
		return err
	}
	if patch.CoordinatorIDs != nil {
		ids := dedupe(*patch.CoordinatorIDs)
		patch.CoordinatorIDs = &ids
	}
	if patch.ParticipantIDs != nil {
		ids := dedupe(*patch.ParticipantIDs)
		patch.ParticipantIDs = &ids
	}
	return mutate(ctx, r.cache, "update", func() error { return r.store.UpdateProgram(ctx, id, patch) })
}

// UpdateParticipants replaces the participant list. Last write wins.
func (r *Programs) UpdateParticipants(ctx context.Context, id string, studentIDs []string) error {
	if studentIDs == nil {
		studentIDs = []string{}
	}
	return r.Update(ctx, id, ProgramPatch{ParticipantIDs: &studentIDs})
}

// Delete removes a program and re-fetches.
func (r *Programs) Delete(ctx context.Context, id string) error {
	return mutate(ctx, r.cache, "delete", func() error { return r.store.DeleteProgram(ctx, id) })
}

// PruneMember drops id from every roster and re-fetches when anything changed.
func (r *Programs) PruneMember(ctx context.Context, id string) (int, error) {
	var n int
	err := mutate(ctx, r.cache, "update", func() error {
		var err error
		n, err = r.store.PruneMember(ctx, id)
		return err
	})
	return n, err
}

// Departments keeps the departments collection in sync with the store.
type Departments struct {
	store DepartmentStore
	cache *Collection[Department]
}

// NewDepartments creates the departments repository.
func NewDepartments(store DepartmentStore) *Departments {
	return &Departments{store: store, cache: NewCollection("departments", store.ListDepartments)}
}

// FetchAll reloads every department ordered by name.
func (r *Departments) FetchAll(ctx context.Context) error { return r.cache.Refresh(ctx) }

// All returns the cached departments.
func (r *Departments) All() []Department { return r.cache.All() }

// State reports the cache state.
func (r *Departments) State() State { return r.cache.State() }

// Add creates an active department.
func (r *Departments) Add(ctx context.Context, name string) (Department, error) {
	if name == "" {
		return Department{}, fieldError("name", "required")
	}
	var created Department
	err := mutate(ctx, r.cache, "insert", func() error {
		var err error
		created, err = r.store.InsertDepartment(ctx, name)
		return err
	})
	return created, err
}

// Update overwrites the fields set in patch and re-fetches.
func (r *Departments) Update(ctx context.Context, id string, patch DepartmentPatch) error {
	if patch.empty() {
		return ErrNoChanges
	}
	if err := Validate(patch); err != nil {
		return err
	}
	return mutate(ctx, r.cache, "update", func() error { return r.store.UpdateDepartment(ctx, id, patch) })
}

// Delete removes a department and re-fetches.
func (r *Departments) Delete(ctx context.Context, id string) error {
	return mutate(ctx, r.cache, "delete", func() error { return r.store.DeleteDepartment(ctx, id) })
}

// ToggleActive flips is_active.
func (r *Departments) ToggleActive(ctx context.Context, id string) (bool, error) {
	cur, err := r.store.GetDepartment(ctx, id)
	if err != nil {
		err = storeErr("departments", "select", err)
		r.cache.fail(err)
		return false, err
	}
	active := !cur.IsActive
	if err := r.Update(ctx, id, DepartmentPatch{IsActive: &active}); err != nil {
		return cur.IsActive, err
	}
	return active, nil
}

// IsStoreError reports whether err came from a store round-trip.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
