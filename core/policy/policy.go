// Package policy decides whether an actor may perform an action on a target.
// Decisions are pure: everything needed is carried by the Actor and the Target.
package policy

import (
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type Action int

const (
	ManageUsers Action = iota + 1
	UpdateUser
	ManageClassrooms
	AssignMembership
	CreateClassroomTask
	ViewClassroom
	ViewAttendance
	MarkAttendance
	ViewOwnAttendance
	NotifyGuardian
	SetGuardianContact
	ViewSubmissions
	SubmitTask
	ViewOwnSubmission
	ViewSubmissionFile
)

var actionNames = map[Action]string{
	ManageUsers:         "manage users",
	UpdateUser:          "update user",
	ManageClassrooms:    "manage classrooms",
	AssignMembership:    "assign membership",
	CreateClassroomTask: "create classroom task",
	ViewClassroom:       "view classroom",
	ViewAttendance:      "view attendance",
	MarkAttendance:      "mark attendance",
	ViewOwnAttendance:   "view own attendance",
	NotifyGuardian:      "notify guardian",
	SetGuardianContact:  "set guardian contact",
	ViewSubmissions:     "view submissions",
	SubmitTask:          "submit task",
	ViewOwnSubmission:   "view own submission",
	ViewSubmissionFile:  "view submission file",
}

func (a Action) String() string { return actionNames[a] }

// Actor is the authenticated identity attempting an action.
type Actor struct {
	ID   int
	Role user.Role
	// Classrooms the actor belongs to. For teachers, it also holds the classrooms they are the primary teacher of.
	Classrooms []int
}

// NewActor builds the Actor of usr; taught lists the classrooms usr is the primary teacher of.
func NewActor(usr user.User, taught ...int) Actor {
	classrooms := make([]int, 0, len(usr.Classrooms)+len(taught))
	classrooms = append(classrooms, usr.Classrooms...)
	classrooms = append(classrooms, taught...)
	return Actor{ID: usr.ID, Role: usr.Role, Classrooms: core.UniqueInts(classrooms)}
}

// Target describes the entity an action applies to. Fields irrelevant to an action are ignored.
type Target struct {
	ClassroomID        int
	ClassroomTeacherID int // primary teacher of ClassroomID, 0 if none
	StudentID          int
	StudentClassrooms  []int // classrooms StudentID belongs to
	OwnerID            int   // owner of an attendance record or a submission
	TaskAuthorID       int
}

type check func(opts Options, a Actor, t Target) bool

// grants holds the check of each role for an action; a nil check denies.
type grants struct {
	admin, teacher, student check
}

func allow(Options, Actor, Target) bool { return true }

// teacherAssigned: the actor is the primary teacher of the target classroom or one of its members.
func teacherAssigned(_ Options, a Actor, t Target) bool {
	if t.ClassroomID == 0 {
		return false
	}
	return t.ClassroomTeacherID == a.ID || core.IntsContain(a.Classrooms, t.ClassroomID)
}

func studentInClassroom(_ Options, _ Actor, t Target) bool {
	return t.ClassroomID != 0 && core.IntsContain(t.StudentClassrooms, t.ClassroomID)
}

func actorInClassroom(_ Options, a Actor, t Target) bool {
	return t.ClassroomID != 0 && core.IntsContain(a.Classrooms, t.ClassroomID)
}

func isOwner(_ Options, a Actor, t Target) bool { return t.OwnerID == a.ID }

func isTaskAuthor(_ Options, a Actor, t Target) bool { return t.TaskAuthorID != 0 && t.TaskAuthorID == a.ID }

func sharesClassroomWithStudent(_ Options, a Actor, t Target) bool {
	for _, id := range t.StudentClassrooms {
		if core.IntsContain(a.Classrooms, id) {
			return true
		}
	}
	return false
}

func all(checks ...check) check {
	return func(opts Options, a Actor, t Target) bool {
		for _, c := range checks {
			if !c(opts, a, t) {
				return false
			}
		}
		return true
	}
}

func submissionAllowed(opts Options, a Actor, t Target) bool {
	if !opts.RequireSubmissionMembership || t.ClassroomID == 0 {
		return true
	}
	return actorInClassroom(opts, a, t)
}

var table = map[Action]grants{
	ManageUsers:         {admin: allow},
	UpdateUser:          {admin: allow, teacher: isOwner, student: isOwner},
	ManageClassrooms:    {admin: allow},
	AssignMembership:    {admin: allow},
	CreateClassroomTask: {admin: allow, teacher: teacherAssigned},
	ViewClassroom:       {admin: allow, teacher: teacherAssigned, student: actorInClassroom},
	ViewAttendance:      {admin: allow, teacher: teacherAssigned},
	MarkAttendance:      {admin: studentInClassroom, teacher: all(teacherAssigned, studentInClassroom)},
	ViewOwnAttendance:   {student: all(isOwner, actorInClassroom)},
	NotifyGuardian:      {admin: studentInClassroom, teacher: all(teacherAssigned, studentInClassroom)},
	SetGuardianContact:  {admin: allow, teacher: sharesClassroomWithStudent},
	ViewSubmissions:     {admin: allow, teacher: isTaskAuthor},
	SubmitTask:          {student: submissionAllowed},
	ViewOwnSubmission:   {student: isOwner},
	ViewSubmissionFile:  {admin: allow, teacher: isTaskAuthor, student: isOwner},
}

type Options struct {
	// RequireSubmissionMembership restricts SubmitTask to students of the task's classroom.
	RequireSubmissionMembership bool
}

type Policy struct {
	opts Options
}

func New(opts Options) *Policy {
	return &Policy{opts: opts}
}

// CanPerform reports whether a may perform action on t. Unknown actions and roles are denied.
func (p *Policy) CanPerform(a Actor, action Action, t Target) bool {
	g, ok := table[action]
	if !ok {
		return false
	}

	var c check
	switch a.Role {
	case user.RoleAdmin:
		c = g.admin
	case user.RoleTeacher:
		c = g.teacher
	case user.RoleStudent:
		c = g.student
	}
	if c == nil {
		return false
	}
	return c(p.opts, a, t)
}

// Authorize returns core.ErrPermissionDenied when a may not perform action on t.
func (p *Policy) Authorize(a Actor, action Action, t Target) error {
	if !p.CanPerform(a, action, t) {
		return core.ErrPermissionDenied
	}
	return nil
}

var _ user.Authorizer = (*Policy)(nil)

func (p *Policy) AuthorizeUserCreate(actor user.User) error {
	return p.Authorize(NewActor(actor), ManageUsers, Target{})
}

func (p *Policy) AuthorizeUserUpdate(actor, usr user.User) error {
	return p.Authorize(NewActor(actor), UpdateUser, Target{OwnerID: usr.ID})
}

var defaultPolicy = New(Options{})

// CanPerform evaluates the default policy.
func CanPerform(a Actor, action Action, t Target) bool {
	return defaultPolicy.CanPerform(a, action, t)
}
