package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/user"
)

type classroomRepository struct {
	db *DB
}

var _ classroom.Repository = (*classroomRepository)(nil)

func NewClassroomRepository(db *DB) classroom.Repository {
	return &classroomRepository{db: db}
}

func sortClassrooms(classrooms []classroom.Classroom) {
	sort.Slice(classrooms, func(i, j int) bool {
		if classrooms[i].Name != classrooms[j].Name {
			return classrooms[i].Name < classrooms[j].Name
		}
		return classrooms[i].ID < classrooms[j].ID
	})
}

// checkTeacherRef mimics the foreign key on classrooms.teacher_id. The caller holds db.mu.
func (repo *classroomRepository) checkTeacherRef(teacherID *int) error {
	if teacherID == nil {
		return nil
	}
	if _, ok := repo.db.t.users[*teacherID]; !ok {
		return core.NewConflictError("invalid classroom teacher", nil)
	}
	return nil
}

func (repo *classroomRepository) CreateClassroom(ctx context.Context, c classroom.Classroom) (classroom.Classroom, error) {
	defer repo.db.lockWrite(ctx)()

	if err := repo.checkTeacherRef(c.TeacherID); err != nil {
		return classroom.Classroom{}, err
	}
	c.ID = repo.db.nextID("classrooms")
	c.TeacherID = cloneInt(c.TeacherID)
	repo.db.t.classrooms[c.ID] = c
	return c, nil
}

func (repo *classroomRepository) GetClassroomByID(_ context.Context, id int) (classroom.Classroom, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if c, ok := repo.db.t.classrooms[id]; ok {
		return c, nil
	}
	return classroom.Classroom{}, classroom.ErrNotFound
}

func (repo *classroomRepository) QueryAllClassrooms(_ context.Context) ([]classroom.Classroom, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classrooms := make([]classroom.Classroom, 0, len(repo.db.t.classrooms))
	for _, c := range repo.db.t.classrooms {
		classrooms = append(classrooms, c)
	}
	sortClassrooms(classrooms)
	return classrooms, nil
}

func (repo *classroomRepository) QueryClassroomsByID(_ context.Context, ids ...int) ([]classroom.Classroom, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	classrooms := make([]classroom.Classroom, 0, len(ids))
	for _, id := range core.UniqueInts(ids) {
		if c, ok := repo.db.t.classrooms[id]; ok {
			classrooms = append(classrooms, c)
		}
	}
	sortClassrooms(classrooms)
	return classrooms, nil
}

func (repo *classroomRepository) UpdateClassroom(ctx context.Context, c classroom.Classroom) (classroom.Classroom, error) {
	defer repo.db.lockWrite(ctx)()

	if _, ok := repo.db.t.classrooms[c.ID]; !ok {
		return classroom.Classroom{}, classroom.ErrNotFound
	}
	if err := repo.checkTeacherRef(c.TeacherID); err != nil {
		return classroom.Classroom{}, err
	}
	c.TeacherID = cloneInt(c.TeacherID)
	repo.db.t.classrooms[c.ID] = c
	return c, nil
}

func (repo *classroomRepository) QueryClassroomIDsByTeacher(_ context.Context, teacherID int) ([]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]int, 0)
	for id, c := range repo.db.t.classrooms {
		if c.PrimaryTeacherID() == teacherID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (repo *classroomRepository) SetClassroomsTeacher(ctx context.Context, teacherID int, classroomIDs ...int) error {
	defer repo.db.lockWrite(ctx)()

	now := classroom.NowFunc().UTC()
	for _, id := range classroomIDs {
		c, ok := repo.db.t.classrooms[id]
		if !ok || c.PrimaryTeacherID() == teacherID {
			continue
		}
		tid := teacherID
		c.TeacherID = &tid
		c.UpdatedAt = now
		repo.db.t.classrooms[id] = c
	}
	return nil
}

func (repo *classroomRepository) UnsetClassroomsTeacher(ctx context.Context, teacherID int, keptIDs ...int) error {
	defer repo.db.lockWrite(ctx)()

	now := classroom.NowFunc().UTC()
	for id, c := range repo.db.t.classrooms {
		if c.PrimaryTeacherID() != teacherID || core.IntsContain(keptIDs, id) {
			continue
		}
		c.TeacherID = nil
		c.UpdatedAt = now
		repo.db.t.classrooms[id] = c
	}
	return nil
}

func (repo *classroomRepository) QueryMemberships(_ context.Context, userID int) ([]classroom.Membership, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	memberships := make([]classroom.Membership, 0)
	for k, pos := range repo.db.t.memberships {
		if k.userID == userID {
			memberships = append(memberships, classroom.Membership{UserID: k.userID, ClassroomID: k.classroomID, Position: pos})
		}
	}
	sort.Slice(memberships, func(i, j int) bool { return memberships[i].Position < memberships[j].Position })
	return memberships, nil
}

func (repo *classroomRepository) SaveMembership(ctx context.Context, m classroom.Membership) error {
	defer repo.db.lockWrite(ctx)()

	if _, ok := repo.db.t.users[m.UserID]; !ok {
		return core.NewConflictError("invalid membership", nil)
	}
	if _, ok := repo.db.t.classrooms[m.ClassroomID]; !ok {
		return core.NewConflictError("invalid membership", nil)
	}
	repo.db.t.memberships[memberKey{m.UserID, m.ClassroomID}] = m.Position
	return nil
}

func (repo *classroomRepository) DeleteMemberships(ctx context.Context, userID int, classroomIDs ...int) error {
	defer repo.db.lockWrite(ctx)()

	for _, id := range classroomIDs {
		delete(repo.db.t.memberships, memberKey{userID, id})
	}
	return nil
}

func (repo *classroomRepository) QueryStudents(_ context.Context, classroomID int) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	students := make([]user.User, 0)
	for k := range repo.db.t.memberships {
		if k.classroomID != classroomID {
			continue
		}
		if usr, ok := repo.db.t.users[k.userID]; ok && usr.IsStudent() {
			students = append(students, repo.db.withClassrooms(usr))
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Username < students[j].Username })
	return students, nil
}
