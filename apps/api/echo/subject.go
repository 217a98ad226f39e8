package echoapi

import (
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core/subject"
	sheetsvc "github.com/trezcool/clotrack/services/sheet"
)

type subjectApi struct {
	auth     *authenticator
	svc      *subject.Service
	validate *validator.Validate
}

func registerSubjectAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := subjectApi{auth: auth, svc: deps.SubjectSvc, validate: deps.Validate}
	admin := adminMiddleware(auth)

	sg := g.Group("/subjects", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create, admin)
	sg.POST("/assign-instructor", api.assignInstructor, admin)
	sg.GET("/:id", api.retrieve)
	sg.DELETE("/:id", api.destroy, admin)
	sg.PUT("/:id/students", api.assignStudents, admin)
	sg.GET("/:id/students", api.students)

	tg := g.Group("/tagging", jwt, admin)
	tg.POST("/student", api.assignStudent)
	tg.POST("/remove-student", api.removeStudent)
	tg.POST("/batch", api.assignBatch)
	tg.POST("/upload", api.uploadTagging)
	tg.GET("/template", api.taggingTemplate)

	ig := g.Group("/instructor", jwt, instructorMiddleware(auth))
	ig.GET("/subjects", api.instructorSubjects)
}

func (api *subjectApi) query(ctx echo.Context) error {
	filter := new(subject.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []subject.Subject{})
	}
	filter.Clean()

	subjects, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []subject.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *subjectApi) create(ctx echo.Context) error {
	var data subject.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.validate, api.svc); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *subjectApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *subjectApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *subjectApi) assignInstructor(ctx echo.Context) error {
	var data subject.AssignInstructor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignInstructor")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	s, err := api.svc.AssignInstructor(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *subjectApi) assignStudents(ctx echo.Context) error {
	var data subject.AssignStudents
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignStudents")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	s, err := api.svc.AssignStudents(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *subjectApi) students(ctx echo.Context) error {
	id, err := api.auth.contextIdentity(ctx)
	if err != nil {
		return err
	}
	students, err := api.svc.Students(ctx.Request().Context(), id, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *subjectApi) bindTag(ctx echo.Context) (subject.TagStudent, error) {
	var data subject.TagStudent
	if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(err, "binding to TagStudent")
	}
	data.Clean()
	return data, api.validate.Struct(data)
}

func (api *subjectApi) assignStudent(ctx echo.Context) error {
	data, err := api.bindTag(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.AssignStudent(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *subjectApi) removeStudent(ctx echo.Context) error {
	data, err := api.bindTag(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.RemoveStudent(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *subjectApi) assignBatch(ctx echo.Context) error {
	var data subject.AssignBatch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignBatch")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	s, skipped, err := api.svc.AssignBatch(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, AssignBatchResponse{Subject: s, Skipped: skipped})
}

func (api *subjectApi) uploadTagging(ctx echo.Context) error {
	f, err := openUpload(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := sheetsvc.ReadTagging(f)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errEmptySheet
	}

	rowErrs, err := api.svc.UploadTagging(ctx.Request().Context(), rows)
	if err != nil {
		return errors.Wrap(err, "uploading tagging")
	}
	resp := UploadTaggingResponse{Rows: len(rows), Tagged: len(rows) - len(rowErrs), Errors: make([]string, 0, len(rowErrs))}
	for _, re := range rowErrs {
		resp.Errors = append(resp.Errors, re.Error())
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *subjectApi) taggingTemplate(ctx echo.Context) error {
	rows, err := api.svc.TaggingTemplate(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building tagging template")
	}
	return sendCSV(ctx, "tagging_template.csv", func(w io.Writer) error { return sheetsvc.WriteTagging(w, rows) })
}

func (api *subjectApi) instructorSubjects(ctx echo.Context) error {
	id, err := api.auth.contextIdentity(ctx)
	if err != nil {
		return err
	}
	summaries, err := api.svc.InstructorSubjects(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "listing instructor subjects")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

type (
	AssignBatchResponse struct {
		Subject subject.Subject `json:"subject"`
		Skipped []string        `json:"skipped"` // already tagged to another instructor
	}

	UploadTaggingResponse struct {
		Rows   int      `json:"rows"`
		Tagged int      `json:"tagged"`
		Errors []string `json:"errors"`
	}
)
