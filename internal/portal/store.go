package portal

import "context"

// StudentStore is the students table. List is ordered by id.
type StudentStore interface {
	ListStudents(ctx context.Context) ([]Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	FindStudent(ctx context.Context, id, password string) (Student, error)
	InsertStudent(ctx context.Context, ns NewStudent) (Student, error)
	UpdateStudent(ctx context.Context, id string, patch StudentPatch) error
	DeleteStudent(ctx context.Context, id string) error
}

// CoordinatorStore is the coordinators table. List is ordered by creation
// time, newest first.
type CoordinatorStore interface {
	ListCoordinators(ctx context.Context) ([]Coordinator, error)
	GetCoordinator(ctx context.Context, id string) (Coordinator, error)
	// FindActiveCoordinator matches id, password and is_active = true.
	FindActiveCoordinator(ctx context.Context, id, password string) (Coordinator, error)
	InsertCoordinator(ctx context.Context, nc NewCoordinator) (Coordinator, error)
	UpdateCoordinator(ctx context.Context, id string, patch CoordinatorPatch) error
	DeleteCoordinator(ctx context.Context, id string) error
}

// ProgramStore is the programs table. List is ordered by creation time,
// newest first.
type ProgramStore interface {
	ListPrograms(ctx context.Context) ([]Program, error)
	GetProgram(ctx context.Context, id string) (Program, error)
	InsertProgram(ctx context.Context, np NewProgram) (Program, error)
	UpdateProgram(ctx context.Context, id string, patch ProgramPatch) error
	DeleteProgram(ctx context.Context, id string) error
	// PruneMember removes id from every program's participant and
	// coordinator lists and returns how many programs changed.
	PruneMember(ctx context.Context, id string) (int, error)
}

// DepartmentStore is the departments table. List is ordered by name.
type DepartmentStore interface {
	ListDepartments(ctx context.Context) ([]Department, error)
	GetDepartment(ctx context.Context, id string) (Department, error)
	InsertDepartment(ctx context.Context, name string) (Department, error)
	UpdateDepartment(ctx context.Context, id string, patch DepartmentPatch) error
	DeleteDepartment(ctx context.Context, id string) error
}

// ActivityStore keeps the extra activities shown on student reports.
type ActivityStore interface {
	ListActivities(ctx context.Context, studentID string) ([]Activity, error)
	InsertActivity(ctx context.Context, studentID string, na NewActivity) (Activity, error)
	DeleteActivity(ctx context.Context, id string) error
	DeleteStudentActivities(ctx context.Context, studentID string) error
}

// Store is the whole data store.
type Store interface {
	StudentStore
	CoordinatorStore
	ProgramStore
	DepartmentStore
	ActivityStore
}
