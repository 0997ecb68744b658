package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tchoudhury/pathshala/core/student"
	"github.com/tchoudhury/pathshala/core/user"
)

type studentApi struct {
	svc *student.Service
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *student.Service) {
	api := studentApi{svc: svc}

	sg := g.Group("/students", jwt)
	sg.POST("", api.create, roleMiddleware(user.RoleLibrarian))
	sg.GET("", api.query, roleMiddleware(user.RoleLibrarian, user.RoleAccountant, user.RoleStaff))
	sg.GET("/:id", api.retrieve, roleMiddleware(user.RoleLibrarian, user.RoleAccountant, user.RoleStaff))
	sg.PUT("/:id", api.update, roleMiddleware(user.RoleLibrarian))
	sg.DELETE("/:id", api.destroy, adminMiddleware())
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	std, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}

	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentApi) query(ctx echo.Context) error {
	var filter student.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}

	students, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	std, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	origStd, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(origStd, api.svc); err != nil {
		return err
	}

	std, err := api.svc.Update(reqCtx, origStd.ID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
