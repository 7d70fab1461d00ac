package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/user"
)

func (s *Server) registerAttendanceAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	ag := g.Group("/classrooms/:id/attendance", authed...)
	ag.GET("", s.classroomAttendance)
	ag.GET("/me", s.ownAttendance)
	ag.PUT("/:userID", s.markAttendance)
	ag.POST("/:userID/notify", s.notifyGuardian)
}

type (
	// StudentAttendance is a row of the attendance sheet; Attendance is nil while the student is unmarked.
	StudentAttendance struct {
		Student    user.User              `json:"student"`
		Attendance *attendance.Attendance `json:"attendance"`
	}

	NotifyResponse struct {
		Sent bool `json:"sent"`
	}
)

// classroomAttendance returns the attendance sheet of a classroom for ?date= (default today).
func (s *Server) classroomAttendance(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	day, err := dateQuery(ctx, "date", s.deps.AttendanceSvc.Today(), s.deps.Conf.Location)
	if err != nil {
		return err
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	marks, err := s.deps.AttendanceSvc.ForClassroomDay(reqCtx, ctxUsr, id, day)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	students, err := s.deps.ClassroomSvc.Students(reqCtx, ctxUsr, id)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}

	sheet := make([]StudentAttendance, 0, len(students))
	for _, student := range students {
		row := StudentAttendance{Student: student}
		if att, ok := marks[student.ID]; ok {
			att := att
			row.Attendance = &att
		}
		sheet = append(sheet, row)
	}
	return ctx.JSON(http.StatusOK, sheet)
}

func (s *Server) ownAttendance(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	atts, err := s.deps.AttendanceSvc.Own(ctx.Request().Context(), ctxUsr, id)
	if err != nil {
		return errors.Wrap(err, "querying own attendance")
	}
	return ctx.JSON(http.StatusOK, atts)
}

func (s *Server) markAttendance(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	studentID, err := idParam(ctx, "userID")
	if err != nil {
		return err
	}
	var data attendance.MarkRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkRequest")
	}
	if err = s.deps.Validate.Struct(&data); err != nil {
		return err
	}
	day := s.deps.AttendanceSvc.Today()
	if data.Date != "" {
		if day, err = s.deps.AttendanceSvc.ParseDay(data.Date); err != nil {
			return errors.Wrap(err, "parsing date")
		}
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	att, err := s.deps.AttendanceSvc.Mark(ctx.Request().Context(), ctxUsr, studentID, id, data.Status, day)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (s *Server) notifyGuardian(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	studentID, err := idParam(ctx, "userID")
	if err != nil {
		return err
	}
	var data attendance.NotifyRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NotifyRequest")
	}
	if err = s.deps.Validate.Struct(&data); err != nil {
		return err
	}
	day := s.deps.AttendanceSvc.Today()
	if data.Date != "" {
		if day, err = s.deps.AttendanceSvc.ParseDay(data.Date); err != nil {
			return errors.Wrap(err, "parsing date")
		}
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	sent, err := s.deps.AttendanceSvc.Notify(ctx.Request().Context(), ctxUsr, studentID, id, day, data.Subject, data.Body)
	if err != nil {
		return errors.Wrap(err, "notifying guardian")
	}
	return ctx.JSON(http.StatusOK, NotifyResponse{Sent: sent})
}
