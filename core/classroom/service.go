package classroom

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("classroom")

	errNotATeacher    = "user is not a teacher"
	errNoSuchTeacher  = "teacher not found"
	errAdminClassroom = errors.New("admins cannot be assigned to classrooms")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		CreateClassroom(ctx context.Context, c Classroom) (Classroom, error)
		GetClassroomByID(ctx context.Context, id int) (Classroom, error)
		// QueryAllClassrooms returns every Classroom, ordered by name.
		QueryAllClassrooms(ctx context.Context) ([]Classroom, error)
		// QueryClassroomsByID returns the existing classrooms among ids, ordered by name.
		QueryClassroomsByID(ctx context.Context, ids ...int) ([]Classroom, error)
		UpdateClassroom(ctx context.Context, c Classroom) (Classroom, error)

		// QueryClassroomIDsByTeacher returns the classrooms teacherID is the primary teacher of.
		QueryClassroomIDsByTeacher(ctx context.Context, teacherID int) ([]int, error)
		// SetClassroomsTeacher makes teacherID the primary teacher of the given classrooms.
		SetClassroomsTeacher(ctx context.Context, teacherID int, classroomIDs ...int) error
		// UnsetClassroomsTeacher clears teacherID from the classrooms it teaches, except keptIDs.
		UnsetClassroomsTeacher(ctx context.Context, teacherID int, keptIDs ...int) error

		// QueryMemberships returns the memberships of userID ordered by position.
		QueryMemberships(ctx context.Context, userID int) ([]Membership, error)
		// SaveMembership inserts m, or updates its position when the (user, classroom) pair already exists.
		SaveMembership(ctx context.Context, m Membership) error
		DeleteMemberships(ctx context.Context, userID int, classroomIDs ...int) error
		// QueryStudents returns the students that are members of classroomID, ordered by username.
		QueryStudents(ctx context.Context, classroomID int) ([]user.User, error)
	}

	Options struct {
		// SymmetricTeacherUnassign clears the primary teacher of the classrooms a teacher is no longer assigned to.
		SymmetricTeacherUnassign bool
	}

	Service struct {
		repo     Repository
		usrRepo  user.Repository
		tx       core.Transactor
		policy   *policy.Policy
		validate *validator.Validate
		opts     Options
	}
)

func NewService(
	repo Repository,
	usrRepo user.Repository,
	tx core.Transactor,
	pol *policy.Policy,
	validate *validator.Validate,
	opts Options,
) *Service {
	return &Service{
		repo:     repo,
		usrRepo:  usrRepo,
		tx:       tx,
		policy:   pol,
		validate: validate,
		opts:     opts,
	}
}

// Actor resolves the policy.Actor of usr.
func (svc *Service) Actor(ctx context.Context, usr user.User) (policy.Actor, error) {
	if !usr.IsTeacher() {
		return policy.NewActor(usr), nil
	}
	taught, err := svc.repo.QueryClassroomIDsByTeacher(ctx, usr.ID)
	if err != nil {
		return policy.Actor{}, errors.Wrap(err, "querying taught classrooms")
	}
	return policy.NewActor(usr, taught...), nil
}

// Authorize resolves the Actor of usr and checks it may perform action on target.
func (svc *Service) Authorize(ctx context.Context, usr user.User, action policy.Action, target policy.Target) error {
	actor, err := svc.Actor(ctx, usr)
	if err != nil {
		return err
	}
	return svc.policy.Authorize(actor, action, target)
}

// Target returns the policy.Target of c.
func Target(c Classroom) policy.Target {
	return policy.Target{ClassroomID: c.ID, ClassroomTeacherID: c.PrimaryTeacherID()}
}

func (svc *Service) checkTeacher(ctx context.Context, teacherID *int) error {
	if teacherID == nil {
		return nil
	}
	teacher, err := svc.usrRepo.GetUserByID(ctx, *teacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: errNoSuchTeacher})
		}
		return errors.Wrap(err, "finding teacher")
	}
	if !teacher.IsTeacher() {
		return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: errNotATeacher})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, actor user.User, nc NewClassroom) (Classroom, error) {
	if err := svc.Authorize(ctx, actor, policy.ManageClassrooms, policy.Target{}); err != nil {
		return Classroom{}, err
	}
	if err := nc.Validate(svc.validate); err != nil {
		return Classroom{}, err
	}

	var c Classroom
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.checkTeacher(ctx, nc.TeacherID); err != nil {
			return err
		}
		now := NowFunc().UTC()
		var err error
		c, err = svc.repo.CreateClassroom(ctx, Classroom{
			Name:        nc.Name,
			Description: nc.Description,
			TeacherID:   nc.TeacherID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		return errors.Wrap(err, "creating classroom")
	})
	return c, err
}

func (svc *Service) Update(ctx context.Context, actor user.User, id int, uc UpdateClassroom) (Classroom, error) {
	if err := svc.Authorize(ctx, actor, policy.ManageClassrooms, policy.Target{ClassroomID: id}); err != nil {
		return Classroom{}, err
	}
	if err := uc.Validate(svc.validate); err != nil {
		return Classroom{}, err
	}

	var c Classroom
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if c, err = svc.repo.GetClassroomByID(ctx, id); err != nil {
			return err
		}
		if err = svc.checkTeacher(ctx, uc.TeacherID); err != nil {
			return err
		}
		c.Name = uc.Name
		c.Description = uc.Description
		c.TeacherID = uc.TeacherID
		c.UpdatedAt = NowFunc().UTC()
		c, err = svc.repo.UpdateClassroom(ctx, c)
		return errors.Wrap(err, "updating classroom")
	})
	return c, err
}

// GetByID returns a Classroom without any permission check.
func (svc *Service) GetByID(ctx context.Context, id int) (Classroom, error) {
	return svc.repo.GetClassroomByID(ctx, id)
}

func (svc *Service) Get(ctx context.Context, actor user.User, id int) (Classroom, error) {
	c, err := svc.repo.GetClassroomByID(ctx, id)
	if err != nil {
		return Classroom{}, err
	}
	if err := svc.Authorize(ctx, actor, policy.ViewClassroom, Target(c)); err != nil {
		return Classroom{}, err
	}
	return c, nil
}

// QueryVisible returns the classrooms actor may view: all of them for admins, the assigned ones otherwise.
func (svc *Service) QueryVisible(ctx context.Context, actor user.User) ([]Classroom, error) {
	if actor.IsAdmin() {
		return svc.repo.QueryAllClassrooms(ctx)
	}
	a, err := svc.Actor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(a.Classrooms) == 0 {
		return []Classroom{}, nil
	}
	return svc.repo.QueryClassroomsByID(ctx, a.Classrooms...)
}

// Students returns the students of a classroom; only admins and its assigned teachers may list them.
func (svc *Service) Students(ctx context.Context, actor user.User, classroomID int) ([]user.User, error) {
	c, err := svc.repo.GetClassroomByID(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	if err := svc.Authorize(ctx, actor, policy.ViewAttendance, Target(c)); err != nil {
		return nil, err
	}
	return svc.repo.QueryStudents(ctx, classroomID)
}

// Assign makes classroomIDs the exact set of classrooms of a user, in order: the first one becomes
// the user's primary classroom. Teachers also become the primary teacher of every listed classroom.
// Duplicate ids are dropped; repeating an assignment changes nothing.
func (svc *Service) Assign(ctx context.Context, actor user.User, userID int, classroomIDs []int) (user.User, error) {
	if err := svc.Authorize(ctx, actor, policy.AssignMembership, policy.Target{}); err != nil {
		return user.User{}, err
	}
	classroomIDs = core.UniqueInts(classroomIDs)

	var usr user.User
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if usr, err = svc.usrRepo.GetUserByID(ctx, userID); err != nil {
			return err
		}
		if usr.IsAdmin() {
			return core.NewValidationError(errAdminClassroom)
		}
		if err = svc.reconcile(ctx, usr, classroomIDs); err != nil {
			return err
		}
		usr, err = svc.usrRepo.GetUserByID(ctx, userID)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (svc *Service) reconcile(ctx context.Context, usr user.User, classroomIDs []int) error {
	if len(classroomIDs) > 0 {
		found, err := svc.repo.QueryClassroomsByID(ctx, classroomIDs...)
		if err != nil {
			return errors.Wrap(err, "querying classrooms")
		}
		if len(found) != len(classroomIDs) {
			return ErrNotFound
		}
	}

	existing, err := svc.repo.QueryMemberships(ctx, usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying memberships")
	}
	positions := make(map[int]int, len(existing))
	for _, m := range existing {
		positions[m.ClassroomID] = m.Position
	}

	// drop memberships of unselected classrooms
	stale := make([]int, 0, len(existing))
	for _, m := range existing {
		if !core.IntsContain(classroomIDs, m.ClassroomID) {
			stale = append(stale, m.ClassroomID)
		}
	}
	if len(stale) > 0 {
		if err = svc.repo.DeleteMemberships(ctx, usr.ID, stale...); err != nil {
			return errors.Wrap(err, "deleting memberships")
		}
	}

	// insert new memberships & reorder existing ones
	for pos, id := range classroomIDs {
		if p, ok := positions[id]; ok && p == pos {
			continue
		}
		if err = svc.repo.SaveMembership(ctx, Membership{UserID: usr.ID, ClassroomID: id, Position: pos}); err != nil {
			return errors.Wrap(err, "saving membership")
		}
	}

	if !usr.IsTeacher() {
		return nil
	}
	if len(classroomIDs) > 0 {
		if err = svc.repo.SetClassroomsTeacher(ctx, usr.ID, classroomIDs...); err != nil {
			return errors.Wrap(err, "setting classrooms teacher")
		}
	}
	if svc.opts.SymmetricTeacherUnassign {
		if err = svc.repo.UnsetClassroomsTeacher(ctx, usr.ID, classroomIDs...); err != nil {
			return errors.Wrap(err, "unsetting classrooms teacher")
		}
	}
	return nil
}
