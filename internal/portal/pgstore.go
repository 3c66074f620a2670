package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists portal data in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore creates a store on an open pool. The schema must already be
// migrated.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const (
	pgUniqueViolation  = "23505"
	pgNotNullViolation = "23502"
	pgFKViolation      = "23503"
	pgCheckViolation   = "23514"
)

// mapPGError converts driver errors into portal sentinels.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrConflict)
		case pgNotNullViolation:
			if pgErr.ColumnName == "id" {
				return fmt.Errorf("no free id: %w", ErrConflict)
			}
		case pgFKViolation:
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, ErrNotFound)
		case pgCheckViolation:
			return fieldError(checkedColumn(pgErr), "check")
		}
	}
	return err
}

// checkedColumn recovers the column from a default constraint name such as
// students_id_check.
func checkedColumn(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	name := strings.TrimSuffix(pgErr.ConstraintName, "_check")
	return strings.TrimPrefix(name, pgErr.TableName+"_")
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return mapPGError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func idsArg(ids *[]string) any {
	if ids == nil {
		return nil
	}
	return *ids
}

const studentColumns = `id, name, department, password, profile_image_url, created_at`

func scanStudent(row pgx.Row) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.Name, &s.Department, &s.Password, &s.ProfileImageURL, &s.CreatedAt)
	return s, err
}

func (p *PGStore) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PGStore) GetStudent(ctx context.Context, id string) (Student, error) {
	s, err := scanStudent(p.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	return s, mapPGError(err)
}

func (p *PGStore) FindStudent(ctx context.Context, id, password string) (Student, error) {
	s, err := scanStudent(p.pool.QueryRow(ctx, `
		SELECT `+studentColumns+` FROM students
		WHERE id = $1 AND password = $2
	`, id, password))
	return s, mapPGError(err)
}

// InsertStudent stores ns. An empty id takes the lowest unused id in 100-999.
func (p *PGStore) InsertStudent(ctx context.Context, ns NewStudent) (Student, error) {
	s, err := scanStudent(p.pool.QueryRow(ctx, `
		INSERT INTO students (id, name, department, password, profile_image_url)
		VALUES (
			COALESCE(NULLIF($1, ''), (
				SELECT n::text FROM generate_series(100, 999) AS n
				WHERE NOT EXISTS (SELECT 1 FROM students WHERE id = n::text)
				ORDER BY n LIMIT 1
			)),
			$2, $3, $4, $5
		)
		RETURNING `+studentColumns,
		ns.ID, ns.Name, ns.Department, ns.Password, ns.ProfileImageURL))
	return s, mapPGError(err)
}

func (p *PGStore) UpdateStudent(ctx context.Context, id string, patch StudentPatch) error {
	return affected(p.pool.Exec(ctx, `
		UPDATE students SET
			name = COALESCE($2, name),
			department = COALESCE($3, department),
			password = COALESCE($4, password),
			profile_image_url = COALESCE($5, profile_image_url)
		WHERE id = $1
	`, id, patch.Name, patch.Department, patch.Password, patch.ProfileImageURL))
}

func (p *PGStore) DeleteStudent(ctx context.Context, id string) error {
	return affected(p.pool.Exec(ctx, `DELETE FROM students WHERE id = $1`, id))
}

const coordinatorColumns = `id, name, department, password, is_active, created_at`

func scanCoordinator(row pgx.Row) (Coordinator, error) {
	var c Coordinator
	err := row.Scan(&c.ID, &c.Name, &c.Department, &c.Password, &c.IsActive, &c.CreatedAt)
	return c, err
}

func (p *PGStore) ListCoordinators(ctx context.Context) ([]Coordinator, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+coordinatorColumns+` FROM coordinators ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Coordinator{}
	for rows.Next() {
		c, err := scanCoordinator(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PGStore) GetCoordinator(ctx context.Context, id string) (Coordinator, error) {
	c, err := scanCoordinator(p.pool.QueryRow(ctx, `SELECT `+coordinatorColumns+` FROM coordinators WHERE id = $1`, id))
	return c, mapPGError(err)
}

func (p *PGStore) FindActiveCoordinator(ctx context.Context, id, password string) (Coordinator, error) {
	c, err := scanCoordinator(p.pool.QueryRow(ctx, `
		SELECT `+coordinatorColumns+` FROM coordinators
		WHERE id = $1 AND password = $2 AND is_active
	`, id, password))
	return c, mapPGError(err)
}

// InsertCoordinator stores nc under the next COORD<n> id from coordinator_seq.
func (p *PGStore) InsertCoordinator(ctx context.Context, nc NewCoordinator) (Coordinator, error) {
	active := true
	if nc.IsActive != nil {
		active = *nc.IsActive
	}
	c, err := scanCoordinator(p.pool.QueryRow(ctx, `
		INSERT INTO coordinators (id, name, department, password, is_active)
		VALUES ('COORD' || nextval('coordinator_seq'), $1, $2, $3, $4)
		RETURNING `+coordinatorColumns,
		nc.Name, nc.Department, nc.Password, active))
	return c, mapPGError(err)
}

func (p *PGStore) UpdateCoordinator(ctx context.Context, id string, patch CoordinatorPatch) error {
	return affected(p.pool.Exec(ctx, `
		UPDATE coordinators SET
			name = COALESCE($2, name),
			department = COALESCE($3, department),
			password = COALESCE($4, password),
			is_active = COALESCE($5, is_active)
		WHERE id = $1
	`, id, patch.Name, patch.Department, patch.Password, patch.IsActive))
}

func (p *PGStore) DeleteCoordinator(ctx context.Context, id string) error {
	return affected(p.pool.Exec(ctx, `DELETE FROM coordinators WHERE id = $1`, id))
}

const programColumns = `id, title, description, date, time, venue, coordinator_ids, participant_ids, created_at, updated_at`

func scanProgram(row pgx.Row) (Program, error) {
	var pr Program
	err := row.Scan(&pr.ID, &pr.Title, &pr.Description, &pr.Date, &pr.Time, &pr.Venue,
		&pr.CoordinatorIDs, &pr.ParticipantIDs, &pr.CreatedAt, &pr.UpdatedAt)
	if pr.CoordinatorIDs == nil {
		pr.CoordinatorIDs = []string{}
	}
	if pr.ParticipantIDs == nil {
		pr.ParticipantIDs = []string{}
	}
	return pr, err
}

func (p *PGStore) ListPrograms(ctx context.Context) ([]Program, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+programColumns+` FROM programs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Program{}
	for rows.Next() {
		pr, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func (p *PGStore) GetProgram(ctx context.Context, id string) (Program, error) {
	pr, err := scanProgram(p.pool.QueryRow(ctx, `SELECT `+programColumns+` FROM programs WHERE id = $1`, id))
	return pr, mapPGError(err)
}

func (p *PGStore) InsertProgram(ctx context.Context, np NewProgram) (Program, error) {
	coords := np.CoordinatorIDs
	if coords == nil {
		coords = []string{}
	}
	pr, err := scanProgram(p.pool.QueryRow(ctx, `
		INSERT INTO programs (id, title, description, date, time, venue, coordinator_ids, participant_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '{}')
		RETURNING `+programColumns,
		uuid.NewString(), np.Title, np.Description, np.Date, np.Time, np.Venue, coords))
	return pr, mapPGError(err)
}

func (p *PGStore) UpdateProgram(ctx context.Context, id string, patch ProgramPatch) error {
	return affected(p.pool.Exec(ctx, `
		UPDATE programs SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			date = COALESCE($4, date),
			time = COALESCE($5, time),
			venue = COALESCE($6, venue),
			coordinator_ids = COALESCE($7::text[], coordinator_ids),
			participant_ids = COALESCE($8::text[], participant_ids),
			updated_at = NOW()
		WHERE id = $1
	`, id, patch.Title, patch.Description, patch.Date, patch.Time, patch.Venue,
		idsArg(patch.CoordinatorIDs), idsArg(patch.ParticipantIDs)))
}

func (p *PGStore) DeleteProgram(ctx context.Context, id string) error {
	return affected(p.pool.Exec(ctx, `DELETE FROM programs WHERE id = $1`, id))
}

func (p *PGStore) PruneMember(ctx context.Context, id string) (int, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE programs SET
			coordinator_ids = array_remove(coordinator_ids, $1),
			participant_ids = array_remove(participant_ids, $1),
			updated_at = NOW()
		WHERE $1 = ANY(coordinator_ids) OR $1 = ANY(participant_ids)
	`, id)
	if err != nil {
		return 0, mapPGError(err)
	}
	return int(tag.RowsAffected()), nil
}

func scanDepartment(row pgx.Row) (Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Name, &d.IsActive, &d.CreatedAt)
	return d, err
}

func (p *PGStore) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, is_active, created_at FROM departments ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Department{}
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *PGStore) GetDepartment(ctx context.Context, id string) (Department, error) {
	d, err := scanDepartment(p.pool.QueryRow(ctx, `SELECT id, name, is_active, created_at FROM departments WHERE id = $1`, id))
	return d, mapPGError(err)
}

func (p *PGStore) InsertDepartment(ctx context.Context, name string) (Department, error) {
	d, err := scanDepartment(p.pool.QueryRow(ctx, `
		INSERT INTO departments (id, name, is_active)
		VALUES ($1, $2, TRUE)
		RETURNING id, name, is_active, created_at
	`, uuid.NewString(), name))
	return d, mapPGError(err)
}

func (p *PGStore) UpdateDepartment(ctx context.Context, id string, patch DepartmentPatch) error {
	return affected(p.pool.Exec(ctx, `
		UPDATE departments SET
			name = COALESCE($2, name),
			is_active = COALESCE($3, is_active)
		WHERE id = $1
	`, id, patch.Name, patch.IsActive))
}

func (p *PGStore) DeleteDepartment(ctx context.Context, id string) error {
	return affected(p.pool.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id))
}

func (p *PGStore) ListActivities(ctx context.Context, studentID string) ([]Activity, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, student_id, badge, title, content, created_at
		FROM student_activities
		WHERE student_id = $1
		ORDER BY created_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Activity{}
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.StudentID, &a.Badge, &a.Title, &a.Content, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PGStore) InsertActivity(ctx context.Context, studentID string, na NewActivity) (Activity, error) {
	a := Activity{ID: uuid.NewString(), StudentID: studentID, Badge: na.Badge, Title: na.Title, Content: na.Content}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO student_activities (id, student_id, badge, title, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, a.ID, a.StudentID, a.Badge, a.Title, a.Content).Scan(&a.CreatedAt)
	if err != nil {
		return Activity{}, mapPGError(err)
	}
	return a, nil
}

func (p *PGStore) DeleteActivity(ctx context.Context, id string) error {
	return affected(p.pool.Exec(ctx, `DELETE FROM student_activities WHERE id = $1`, id))
}

func (p *PGStore) DeleteStudentActivities(ctx context.Context, studentID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM student_activities WHERE student_id = $1`, studentID)
	return mapPGError(err)
}
