package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/user"
)

const classroomColumns = `id, name, description, teacher_id, created_at, updated_at`

type classroomRepository struct {
	db *sqlx.DB
}

var _ classroom.Repository = (*classroomRepository)(nil)

func NewClassroomRepository(db *sqlx.DB) classroom.Repository {
	return &classroomRepository{db: db}
}

func (repo *classroomRepository) CreateClassroom(ctx context.Context, c classroom.Classroom) (classroom.Classroom, error) {
	q := `
		INSERT INTO classrooms (name, description, teacher_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := sqlx.GetContext(ctx, conn(ctx, repo.db), &c.ID, q, c.Name, c.Description, c.TeacherID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return classroom.Classroom{}, mapError(errors.Wrap(err, "inserting classroom"), "invalid classroom teacher")
	}
	return c, nil
}

func (repo *classroomRepository) GetClassroomByID(ctx context.Context, id int) (classroom.Classroom, error) {
	var c classroom.Classroom
	q := `SELECT ` + classroomColumns + ` FROM classrooms WHERE id = $1`
	if err := sqlx.GetContext(ctx, conn(ctx, repo.db), &c, q, id); err != nil {
		if err == sql.ErrNoRows {
			return classroom.Classroom{}, classroom.ErrNotFound
		}
		return classroom.Classroom{}, errors.Wrap(err, "selecting classroom")
	}
	return c, nil
}

func (repo *classroomRepository) QueryAllClassrooms(ctx context.Context) ([]classroom.Classroom, error) {
	classrooms := make([]classroom.Classroom, 0)
	q := `SELECT ` + classroomColumns + ` FROM classrooms ORDER BY name, id`
	if err := sqlx.SelectContext(ctx, conn(ctx, repo.db), &classrooms, q); err != nil {
		return nil, errors.Wrap(err, "selecting classrooms")
	}
	return classrooms, nil
}

func (repo *classroomRepository) QueryClassroomsByID(ctx context.Context, ids ...int) ([]classroom.Classroom, error) {
	classrooms := make([]classroom.Classroom, 0, len(ids))
	q := `SELECT ` + classroomColumns + ` FROM classrooms WHERE id = ANY($1) ORDER BY name, id`
	if err := sqlx.SelectContext(ctx, conn(ctx, repo.db), &classrooms, q, int64s(ids)); err != nil {
		return nil, errors.Wrap(err, "selecting classrooms")
	}
	return classrooms, nil
}

func (repo *classroomRepository) UpdateClassroom(ctx context.Context, c classroom.Classroom) (classroom.Classroom, error) {
	q := `UPDATE classrooms SET name = $2, description = $3, teacher_id = $4, updated_at = $5 WHERE id = $1`
	res, err := conn(ctx, repo.db).ExecContext(ctx, q, c.ID, c.Name, c.Description, c.TeacherID, c.UpdatedAt)
	if err != nil {
		return classroom.Classroom{}, mapError(errors.Wrap(err, "updating classroom"), "invalid classroom teacher")
	}
	if n, err := res.RowsAffected(); err != nil {
		return classroom.Classroom{}, errors.Wrap(err, "updating classroom")
	} else if n == 0 {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	return c, nil
}

func (repo *classroomRepository) QueryClassroomIDsByTeacher(ctx context.Context, teacherID int) ([]int, error) {
	ids := make([]int, 0)
	q := `SELECT id FROM classrooms WHERE teacher_id = $1 ORDER BY id`
	if err := sqlx.SelectContext(ctx, conn(ctx, repo.db), &ids, q, teacherID); err != nil {
		return nil, errors.Wrap(err, "selecting teacher classrooms")
	}
	return ids, nil
}

func (repo *classroomRepository) SetClassroomsTeacher(ctx context.Context, teacherID int, classroomIDs ...int) error {
	q := `
		UPDATE classrooms SET teacher_id = $1, updated_at = $3
		WHERE id = ANY($2) AND teacher_id IS DISTINCT FROM $1`
	_, err := conn(ctx, repo.db).ExecContext(ctx, q, teacherID, int64s(classroomIDs), classroom.NowFunc().UTC())
	return errors.Wrap(err, "setting classrooms teacher")
}

func (repo *classroomRepository) UnsetClassroomsTeacher(ctx context.Context, teacherID int, keptIDs ...int) error {
	q := `
		UPDATE classrooms SET teacher_id = NULL, updated_at = $3
		WHERE teacher_id = $1 AND NOT (id = ANY($2))`
	_, err := conn(ctx, repo.db).ExecContext(ctx, q, teacherID, int64s(keptIDs), classroom.NowFunc().UTC())
	return errors.Wrap(err, "unsetting classrooms teacher")
}

func (repo *classroomRepository) QueryMemberships(ctx context.Context, userID int) ([]classroom.Membership, error) {
	memberships := make([]classroom.Membership, 0)
	q := `SELECT user_id, classroom_id, position FROM classroom_memberships WHERE user_id = $1 ORDER BY position`
	if err := sqlx.SelectContext(ctx, conn(ctx, repo.db), &memberships, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting memberships")
	}
	return memberships, nil
}

func (repo *classroomRepository) SaveMembership(ctx context.Context, m classroom.Membership) error {
	q := `
		INSERT INTO classroom_memberships (user_id, classroom_id, position)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, classroom_id) DO UPDATE SET position = EXCLUDED.position`
	if _, err := conn(ctx, repo.db).ExecContext(ctx, q, m.UserID, m.ClassroomID, m.Position); err != nil {
		return mapError(errors.Wrap(err, "saving membership"), "invalid membership")
	}
	return nil
}

func (repo *classroomRepository) DeleteMemberships(ctx context.Context, userID int, classroomIDs ...int) error {
	q := `DELETE FROM classroom_memberships WHERE user_id = $1 AND classroom_id = ANY($2)`
	_, err := conn(ctx, repo.db).ExecContext(ctx, q, userID, int64s(classroomIDs))
	return errors.Wrap(err, "deleting memberships")
}

func (repo *classroomRepository) QueryStudents(ctx context.Context, classroomID int) ([]user.User, error) {
	students := make([]user.User, 0)
	q := `
		SELECT u.id, u.name, u.username, u.email, u.role, u.guardian_email, u.password_hash,
			u.created_at, u.updated_at, u.last_login
		FROM users u
		JOIN classroom_memberships m ON m.user_id = u.id
		WHERE m.classroom_id = $1 AND u.role = $2
		ORDER BY u.username`
	if err := sqlx.SelectContext(ctx, conn(ctx, repo.db), &students, q, classroomID, user.RoleStudent); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	if err := loadUserClassrooms(ctx, conn(ctx, repo.db), students); err != nil {
		return nil, err
	}
	return students, nil
}
