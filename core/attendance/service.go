package attendance

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/classroom"
	"github.com/trezcool/darasa/core/policy"
	"github.com/trezcool/darasa/core/user"
)

var (
	ErrNotFound = core.NewNotFoundError("attendance")

	errNotAStudent = "user is not a student"

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// UpsertAttendance inserts att or, when a record of the same (user, classroom, day) exists,
		// overwrites its Status, MarkedByID and UpdatedAt while keeping its MarkedAt.
		UpsertAttendance(ctx context.Context, att Attendance) (Attendance, error)
		// QueryAttendances returns the records matching filter, latest day first then by user.
		QueryAttendances(ctx context.Context, filter QueryFilter) ([]Attendance, error)
	}

	Service struct {
		repo     Repository
		classSvc *classroom.Service
		usrSvc   *user.Service
		tx       core.Transactor
		mailSvc  core.EmailService
		loc      *time.Location
	}
)

func NewService(
	repo Repository,
	classSvc *classroom.Service,
	usrSvc *user.Service,
	tx core.Transactor,
	mailSvc core.EmailService,
	loc *time.Location,
) *Service {
	return &Service{
		repo:     repo,
		classSvc: classSvc,
		usrSvc:   usrSvc,
		tx:       tx,
		mailSvc:  mailSvc,
		loc:      loc,
	}
}

// Today returns the start of the current calendar day in the configured timezone.
func (svc *Service) Today() time.Time {
	return core.StartOfDay(NowFunc(), svc.loc)
}

// ParseDay parses a YYYY-MM-DD date as the start of that day in the configured timezone.
func (svc *Service) ParseDay(s string) (time.Time, error) {
	return core.ParseDateIn(s, svc.loc)
}

// dayOf is the stored form of the calendar day of t in the configured timezone.
func (svc *Service) dayOf(t time.Time) time.Time {
	return core.DayOf(t, svc.loc)
}

func (svc *Service) studentTarget(ctx context.Context, studentID, classroomID int) (user.User, policy.Target, error) {
	c, err := svc.classSvc.GetByID(ctx, classroomID)
	if err != nil {
		return user.User{}, policy.Target{}, err
	}
	student, err := svc.usrSvc.GetByID(ctx, studentID)
	if err != nil {
		return user.User{}, policy.Target{}, err
	}
	if !student.IsStudent() {
		return user.User{}, policy.Target{}, core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: errNotAStudent})
	}
	target := classroom.Target(c)
	target.StudentID = student.ID
	target.StudentClassrooms = student.Classrooms
	return student, target, nil
}

// Mark records status for a student of a classroom on the calendar day of asOf in the configured timezone.
// A second mark on the same day overwrites the status of the existing record.
func (svc *Service) Mark(ctx context.Context, actor user.User, studentID, classroomID int, status string, asOf time.Time) (Attendance, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return Attendance{}, err
	}

	var att Attendance
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		_, target, err := svc.studentTarget(ctx, studentID, classroomID)
		if err != nil {
			return err
		}
		if err = svc.classSvc.Authorize(ctx, actor, policy.MarkAttendance, target); err != nil {
			return err
		}

		now := NowFunc().UTC()
		att, err = svc.repo.UpsertAttendance(ctx, Attendance{
			UserID:      studentID,
			ClassroomID: classroomID,
			Day:         svc.dayOf(asOf),
			Status:      st,
			MarkedByID:  actor.ID,
			MarkedAt:    now,
			UpdatedAt:   now,
		})
		return errors.Wrap(err, "upserting attendance")
	})
	if err != nil {
		return Attendance{}, err
	}
	return att, nil
}

// ForClassroomDay returns the attendance of a classroom on day, keyed by student.
func (svc *Service) ForClassroomDay(ctx context.Context, actor user.User, classroomID int, day time.Time) (map[int]Attendance, error) {
	c, err := svc.classSvc.GetByID(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	if err = svc.classSvc.Authorize(ctx, actor, policy.ViewAttendance, classroom.Target(c)); err != nil {
		return nil, err
	}

	atts, err := svc.repo.QueryAttendances(ctx, QueryFilter{ClassroomID: classroomID, Day: svc.dayOf(day)})
	if err != nil {
		return nil, errors.Wrap(err, "querying attendances")
	}
	byStudent := make(map[int]Attendance, len(atts))
	for _, att := range atts {
		byStudent[att.UserID] = att
	}
	return byStudent, nil
}

// Own returns the attendance history of a student in one of their classrooms.
func (svc *Service) Own(ctx context.Context, actor user.User, classroomID int) ([]Attendance, error) {
	c, err := svc.classSvc.GetByID(ctx, classroomID)
	if err != nil {
		return nil, err
	}
	target := classroom.Target(c)
	target.OwnerID = actor.ID
	if err = svc.classSvc.Authorize(ctx, actor, policy.ViewOwnAttendance, target); err != nil {
		return nil, err
	}

	atts, err := svc.repo.QueryAttendances(ctx, QueryFilter{UserID: actor.ID, ClassroomID: classroomID})
	if err != nil {
		return nil, errors.Wrap(err, "querying attendances")
	}
	return atts, nil
}

// SetGuardianEmail sets the guardian contact of a student; teachers may only do so for their own students.
func (svc *Service) SetGuardianEmail(ctx context.Context, actor user.User, studentID int, email string) (user.User, error) {
	var student user.User
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if student, err = svc.usrSvc.GetByID(ctx, studentID); err != nil {
			return err
		}
		target := policy.Target{StudentID: student.ID, StudentClassrooms: student.Classrooms}
		if err = svc.classSvc.Authorize(ctx, actor, policy.SetGuardianContact, target); err != nil {
			return err
		}
		student, err = svc.usrSvc.SetGuardianEmail(ctx, student, email)
		return err
	})
	if err != nil {
		return user.User{}, err
	}
	return student, nil
}

// Notify emails the guardian of a student about their attendance on day, if warranted.
// It reports whether a notification was sent.
func (svc *Service) Notify(ctx context.Context, actor user.User, studentID, classroomID int, day time.Time, subject, body string) (bool, error) {
	student, target, err := svc.studentTarget(ctx, studentID, classroomID)
	if err != nil {
		return false, err
	}
	if err = svc.classSvc.Authorize(ctx, actor, policy.NotifyGuardian, target); err != nil {
		return false, err
	}

	atts, err := svc.repo.QueryAttendances(ctx, QueryFilter{UserID: studentID, ClassroomID: classroomID, Day: svc.dayOf(day)})
	if err != nil {
		return false, errors.Wrap(err, "querying attendances")
	}
	if len(atts) == 0 {
		return false, ErrNotFound
	}
	att := atts[0]
	if !NotificationWarranted(att, student) {
		return false, nil
	}

	msg := NewNotification(att, student)
	if subject = core.CleanString(subject); subject != "" {
		msg.Subject = subject
	}
	if body = core.CleanString(body); body != "" {
		msg.BodyStr = body
	}
	svc.mailSvc.SendMessages(msg)
	return true, nil
}

// NewNotification builds the default guardian email for att.
func NewNotification(att Attendance, student user.User) *core.EmailMessage {
	var subject string
	switch att.Status {
	case StatusAbsent:
		subject = "Absence Notification for " + student.Username
	case StatusLate:
		subject = "Late Arrival Notification for " + student.Username
	default:
		subject = "Attendance Notification for " + student.Username
	}

	body := fmt.Sprintf(
		"Dear Parent/Guardian,\n\n"+
			"This is to inform you that %s was marked %s today in class.\n\n"+
			"Please contact the school for more information.\n\n"+
			"Regards,\n"+
			"School Administration",
		student.Username, att.Status,
	)

	return &core.EmailMessage{
		To:      []mail.Address{{Address: student.GuardianEmail}},
		Subject: subject,
		BodyStr: body,
	}
}
