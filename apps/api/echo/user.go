package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

var errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

const contextObjectKey = "object"

func (s *Server) registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", s.login)

	// authed endpoints
	ag := ug.Group("", authed...)
	ag.POST("/token-refresh", s.refreshTokenHandler)
	ag.GET("/me", s.me)
	ag.POST("", s.createUser, s.adminMiddleware)
	ag.GET("", s.queryUsers, s.adminMiddleware)
	ag.GET("/roles", s.queryRoles, s.adminMiddleware)

	// detail endpoints
	dg := ag.Group("/:id")
	dg.GET("", s.retrieveUser, s.ctxUserOrAdminMiddleware)
	dg.PUT("", s.updateUser, s.ctxUserOrAdminMiddleware)
	dg.PUT("/classrooms", s.assignClassrooms, s.adminMiddleware)
	dg.PUT("/guardian-email", s.setGuardianEmail)
}

// Handlers

func (s *Server) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	usr, err := s.deps.UserSvc.Authenticate(ctx.Request().Context(), data.Username, data.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrAuthenticationFailed {
			return errAuthenticationFailed
		}
		return errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(s.deps.Conf, NewClaims(s.deps.Conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: &usr})
}

func (s *Server) refreshTokenHandler(ctx echo.Context) error {
	token, err := s.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (s *Server) me(ctx echo.Context) error {
	usr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

// createUser creates the user and assigns its classrooms in a single unit of work.
func (s *Server) createUser(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	var usr user.User
	err = s.deps.Tx.WithinTx(ctx.Request().Context(), func(c context.Context) error {
		var err error
		if usr, err = s.deps.UserSvc.Create(c, ctxUsr, data); err != nil {
			return err
		}
		if len(data.Classrooms) > 0 {
			usr, err = s.deps.ClassroomSvc.Assign(c, ctxUsr, usr.ID, data.Classrooms)
		}
		return err
	})
	if err != nil {
		return errors.Wrap(err, "creating user")
	}

	return ctx.JSON(http.StatusCreated, usr)
}

func (s *Server) queryUsers(ctx echo.Context) error {
	filter, ok := bindUserFilter(ctx)
	if !ok {
		return ctx.JSON(http.StatusOK, []user.User{})
	}

	users, err := s.deps.UserSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (s *Server) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (s *Server) retrieveUser(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) updateUser(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	usr, err = s.deps.UserSvc.Update(ctx.Request().Context(), ctxUsr, usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) assignClassrooms(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data AssignRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignRequest")
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	usr, err := s.deps.ClassroomSvc.Assign(ctx.Request().Context(), ctxUsr, id, data.Classrooms)
	if err != nil {
		return errors.Wrap(err, "assigning classrooms")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (s *Server) setGuardianEmail(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var data GuardianEmailRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GuardianEmailRequest")
	}
	ctxUsr, err := s.getContextUser(ctx)
	if err != nil {
		return err
	}

	usr, err := s.deps.AttendanceSvc.SetGuardianEmail(ctx.Request().Context(), ctxUsr, id, data.GuardianEmail)
	if err != nil {
		return errors.Wrap(err, "setting guardian email")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// ctxUserOrAdminMiddleware loads the user of the :id path parameter into the context for itself or an admin.
// Anybody else gets a not found.
func (s *Server) ctxUserOrAdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := s.getContextUser(ctx)
		if err != nil {
			return err
		}
		id, err := idParam(ctx, "id")
		if err != nil {
			return err
		}

		if id == ctxUsr.ID || ctxUsr.IsAdmin() {
			if usr, err := s.deps.UserSvc.GetByID(ctx.Request().Context(), id); err == nil {
				ctx.Set(contextObjectKey, usr)
				return next(ctx)
			} else if errors.Cause(err) != user.ErrNotFound {
				return errors.Wrap(err, "finding user by ID")
			}
		}
		return errHttpNotFound
	}
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}

	AssignRequest struct {
		Classrooms []int `json:"classrooms"`
	}

	GuardianEmailRequest struct {
		GuardianEmail string `json:"guardian_email"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}
