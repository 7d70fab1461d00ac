package sqlxrepos

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
)

const attendanceColumns = `id, user_id, classroom_id, day, status, marked_by_id, marked_at, updated_at`

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func normalizeDay(att *attendance.Attendance) {
	att.Day = core.DayOf(att.Day, att.Day.Location())
}

func (repo *attendanceRepository) UpsertAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	q := `
		INSERT INTO attendances (user_id, classroom_id, day, status, marked_by_id, marked_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, classroom_id, day) DO UPDATE
		SET status = EXCLUDED.status, marked_by_id = EXCLUDED.marked_by_id, updated_at = EXCLUDED.updated_at
		RETURNING ` + attendanceColumns
	var saved attendance.Attendance
	err := sqlx.GetContext(
		ctx, conn(ctx, repo.db), &saved, q,
		att.UserID, att.ClassroomID, att.Day.Format(core.DateLayout), att.Status, att.MarkedByID, att.MarkedAt, att.UpdatedAt,
	)
	if err != nil {
		return attendance.Attendance{}, mapError(errors.Wrap(err, "upserting attendance"), "invalid attendance")
	}
	normalizeDay(&saved)
	return saved, nil
}

func (repo *attendanceRepository) QueryAttendances(ctx context.Context, filter attendance.QueryFilter) ([]attendance.Attendance, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, cond+" = $"+strconv.Itoa(len(args)))
	}
	if filter.UserID != 0 {
		add("user_id", filter.UserID)
	}
	if filter.ClassroomID != 0 {
		add("classroom_id", filter.ClassroomID)
	}
	if !filter.Day.IsZero() {
		add("day", filter.Day.Format(core.DateLayout))
	}

	q := `SELECT ` + attendanceColumns + ` FROM attendances`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY day DESC, user_id`

	atts := make([]attendance.Attendance, 0)
	if err := sqlx.SelectContext(ctx, conn(ctx, repo.db), &atts, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting attendances")
	}
	for i := range atts {
		normalizeDay(&atts[i])
	}
	return atts, nil
}
