package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core/policy"
)

// userMiddleware loads the authenticated user; it runs after the JWT middleware.
func (s *Server) userMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := s.getContextUser(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}

// adminMiddleware only lets through the users allowed to manage users.
func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := s.getContextUser(ctx)
		if err != nil {
			return err
		}
		if !policy.CanPerform(policy.NewActor(usr), policy.ManageUsers, policy.Target{}) {
			return errHttpForbidden
		}
		return next(ctx)
	}
}
