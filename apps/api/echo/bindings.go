package echoapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// idParam returns the positive integer path parameter name; anything else is not found.
func idParam(ctx echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(ctx.Param(name))
	if err != nil || id <= 0 {
		return 0, errHttpNotFound
	}
	return id, nil
}

// dateQuery parses the YYYY-MM-DD query parameter name, defaulting to def.
func dateQuery(ctx echo.Context, name string, def time.Time, loc *time.Location) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return def, nil
	}
	day, err := core.ParseDateIn(val, loc)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "must be a valid date (YYYY-MM-DD)"})
	}
	return day, nil
}

// bindUserFilter reads ?search= and the repeated ?role= parameters. ok is false when a role is unknown.
func bindUserFilter(ctx echo.Context) (filter user.QueryFilter, ok bool) {
	filter.Search = ctx.QueryParam("search")
	for _, r := range ctx.QueryParams()["role"] {
		role, err := user.ParseRole(r)
		if err != nil {
			return filter, false
		}
		filter.Roles = append(filter.Roles, role)
	}
	return filter, true
}
