package echoapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/task"
)

func (s *Server) registerTaskAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	g.POST("/classrooms/:id/tasks", s.createClassroomTask, authed...)
	g.GET("/classrooms/:id/tasks", s.queryClassroomTasks, authed...)

	tg := g.Group("/tasks/:id/submissions", authed...)
	tg.GET("", s.queryTaskSubmissions)
	tg.POST("", s.submitTask)

	sg := g.Group("/submissions", authed...)
	sg.GET("", s.ownSubmissions)
	sg.POST("", s.submitFreeStanding)

	g.GET("/uploads/*", s.downloadFile, authed...)
}

func (s *Server) createClassroomTask(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data task.NewClassroomTask
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassroomTask")
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	t, err := s.deps.TaskSvc.CreateClassroomTask(ctx.Request().Context(), ctxUsr, id, data)
	if err != nil {
		return errors.Wrap(err, "creating classroom task")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (s *Server) queryClassroomTasks(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	tasks, err := s.deps.TaskSvc.ListClassroomTasks(ctx.Request().Context(), ctxUsr, id)
	if err != nil {
		return errors.Wrap(err, "querying classroom tasks")
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (s *Server) queryTaskSubmissions(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	subs, err := s.deps.TaskSvc.ListSubmissions(ctx.Request().Context(), ctxUsr, id)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (s *Server) ownSubmissions(ctx echo.Context) error {
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	subs, err := s.deps.TaskSvc.OwnSubmissions(ctx.Request().Context(), ctxUsr)
	if err != nil {
		return errors.Wrap(err, "querying own submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (s *Server) submitTask(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	return s.submit(ctx, &id, http.StatusOK)
}

func (s *Server) submitFreeStanding(ctx echo.Context) error {
	return s.submit(ctx, nil, http.StatusCreated)
}

// submit reads a multipart form made of a "content" field and an optional "file".
func (s *Server) submit(ctx echo.Context, classroomTaskID *int, code int) error {
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	var att *task.Attachment
	fh, err := ctx.FormFile("file")
	switch {
	case err == nil:
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening uploaded file")
		}
		defer f.Close()
		att = &task.Attachment{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Content:     f,
		}
	case errors.Cause(err) == http.ErrMissingFile, errors.Cause(err) == http.ErrNotMultipart:
	default:
		return errors.Wrap(err, "reading uploaded file")
	}

	sub, err := s.deps.TaskSvc.Submit(ctx.Request().Context(), ctxUsr, classroomTaskID, ctx.FormValue("content"), att)
	if err != nil {
		return errors.Wrap(err, "submitting")
	}
	return ctx.JSON(code, sub)
}

// downloadFile streams a submission attachment to the users allowed to see it.
func (s *Server) downloadFile(ctx echo.Context) error {
	ref := strings.TrimPrefix(ctx.Param("*"), "/")
	if ref == "" {
		return errHttpNotFound
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	rc, sub, err := s.deps.TaskSvc.OpenFile(ctx.Request().Context(), ctxUsr, ref)
	if err != nil {
		return errors.Wrap(err, "opening file")
	}
	defer rc.Close()

	name := ref[strings.LastIndex(ref, "/")+1:]
	if sub.FileName != nil {
		name = *sub.FileName
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return ctx.Stream(http.StatusOK, echo.MIMEOctetStream, rc)
}
