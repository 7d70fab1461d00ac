package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func keyOf(att attendance.Attendance) dayKey {
	return dayKey{att.UserID, att.ClassroomID, att.Day.Format(core.DateLayout)}
}

// UpsertAttendance checks and writes under a single lock, so concurrent marks of the same day
// always end up in one record.
func (repo *attendanceRepository) UpsertAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	defer repo.db.lockWrite(ctx)()

	if _, ok := repo.db.t.users[att.UserID]; !ok {
		return attendance.Attendance{}, core.NewConflictError("invalid attendance", nil)
	}
	if _, ok := repo.db.t.classrooms[att.ClassroomID]; !ok {
		return attendance.Attendance{}, core.NewConflictError("invalid attendance", nil)
	}

	att.Day = core.DayOf(att.Day, att.Day.Location())
	key := keyOf(att)
	if id, ok := repo.db.t.attByDay[key]; ok {
		existing := repo.db.t.attendances[id]
		existing.Status = att.Status
		existing.MarkedByID = att.MarkedByID
		existing.UpdatedAt = att.UpdatedAt
		repo.db.t.attendances[id] = existing
		return existing, nil
	}

	att.ID = repo.db.nextID("attendances")
	repo.db.t.attendances[att.ID] = att
	repo.db.t.attByDay[key] = att.ID
	return att, nil
}

func (repo *attendanceRepository) QueryAttendances(_ context.Context, filter attendance.QueryFilter) ([]attendance.Attendance, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var day string
	if !filter.Day.IsZero() {
		day = filter.Day.Format(core.DateLayout)
	}

	atts := make([]attendance.Attendance, 0)
	for _, att := range repo.db.t.attendances {
		if filter.UserID != 0 && att.UserID != filter.UserID {
			continue
		}
		if filter.ClassroomID != 0 && att.ClassroomID != filter.ClassroomID {
			continue
		}
		if day != "" && att.Day.Format(core.DateLayout) != day {
			continue
		}
		atts = append(atts, att)
	}
	sort.Slice(atts, func(i, j int) bool {
		if !atts[i].Day.Equal(atts[j].Day) {
			return atts[i].Day.After(atts[j].Day)
		}
		return atts[i].UserID < atts[j].UserID
	})
	return atts, nil
}
