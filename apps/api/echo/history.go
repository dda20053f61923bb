package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edukit/gradebook/core"
	"github.com/edukit/gradebook/core/course"
	"github.com/edukit/gradebook/core/user"
)

type historyApi struct {
	svc course.Service
}

func registerHistoryAPI(app *echo.Echo, jwt echo.MiddlewareFunc, svc course.Service, usrSvc user.Service) {
	api := historyApi{svc: svc}

	g := app.Group("/history", jwt)
	g.GET("/getGradeHistoryByStudent", api.byStudent, roleMiddleware(usrSvc, user.RoleStudent))
	g.GET("/getGradeHistoryByTeacher", api.byTeacher, roleMiddleware(usrSvc, user.RoleTeacher))
}

func (api *historyApi) byStudent(ctx echo.Context) error {
	email := core.CleanString(ctx.QueryParam("emailStudent"), true /* lower */)
	history, err := api.svc.HistoryByStudent(ctx.Request().Context(), email)
	if err != nil {
		return errors.Wrap(err, "querying grade history by student")
	}
	return ctx.JSON(http.StatusOK, history)
}

func (api *historyApi) byTeacher(ctx echo.Context) error {
	email := core.CleanString(ctx.QueryParam("emailTeacher"), true /* lower */)
	history, err := api.svc.HistoryByTeacher(ctx.Request().Context(), email)
	if err != nil {
		return errors.Wrap(err, "querying grade history by teacher")
	}
	return ctx.JSON(http.StatusOK, history)
}
