package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core/batch"
)

type batchApi struct {
	svc      *batch.Service
	validate *validator.Validate
}

func registerBatchAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := batchApi{svc: deps.BatchSvc, validate: deps.Validate}

	sg := g.Group("/students", jwt)
	sg.GET("", api.students)
	sg.GET("/:rollNo", api.student)

	bg := g.Group("/batches", jwt)
	bg.GET("", api.query)
	bg.POST("", api.create, adminMiddleware(auth))
	bg.GET("/:id", api.retrieve)
	bg.DELETE("/:id", api.destroy, adminMiddleware(auth))
}

func (api *batchApi) students(ctx echo.Context) error {
	students, err := api.svc.Students(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *batchApi) student(ctx echo.Context) error {
	info, err := api.svc.FindStudent(ctx.Request().Context(), ctx.Param("rollNo"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, info)
}

func (api *batchApi) query(ctx echo.Context) error {
	batches, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing batches")
	}
	if batches == nil {
		batches = []batch.Batch{}
	}
	return ctx.JSON(http.StatusOK, batches)
}

func (api *batchApi) create(ctx echo.Context) error {
	var data batch.NewBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBatch")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	b, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating batch")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *batchApi) retrieve(ctx echo.Context) error {
	b, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *batchApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
