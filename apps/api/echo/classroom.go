package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/classroom"
)

func (s *Server) registerClassroomAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	cg := g.Group("/classrooms", authed...)
	cg.GET("", s.queryClassrooms)
	cg.POST("", s.createClassroom)
	cg.GET("/:id", s.retrieveClassroom)
	cg.PUT("/:id", s.updateClassroom)
	cg.GET("/:id/students", s.queryStudents)
}

func (s *Server) queryClassrooms(ctx echo.Context) error {
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}
	classrooms, err := s.deps.ClassroomSvc.QueryVisible(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "querying classrooms")
	}
	return ctx.JSON(http.StatusOK, classrooms)
}

func (s *Server) createClassroom(ctx echo.Context) error {
	var data classroom.NewClassroom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassroom")
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	c, err := s.deps.ClassroomSvc.Create(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "creating classroom")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (s *Server) retrieveClassroom(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	c, err := s.deps.ClassroomSvc.Get(ctx.Request().Context(), ctxUsr, id)
	if err != nil {
		return errors.Wrap(err, "retrieving classroom")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (s *Server) updateClassroom(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data classroom.UpdateClassroom
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClassroom")
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	c, err := s.deps.ClassroomSvc.Update(ctx.Request().Context(), ctxUsr, id, data)
	if err != nil {
		return errors.Wrap(err, "updating classroom")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (s *Server) queryStudents(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	students, err := s.deps.ClassroomSvc.Students(ctx.Request().Context(), ctxUsr, id)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, students)
}
