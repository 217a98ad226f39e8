package echoapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
	sheetsvc "github.com/trezcool/clotrack/services/sheet"
)

const msgConflicts = "students have marks from several instructors; fix the tagging and resubmit"

type markApi struct {
	auth     *authenticator
	svc      *mark.Service
	subjects *subject.Service
	validate *validator.Validate
}

func registerMarkAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := markApi{auth: auth, svc: deps.MarkSvc, subjects: deps.SubjectSvc, validate: deps.Validate}

	ig := g.Group("/instructor/subjects/:id", jwt, instructorMiddleware(auth))
	ig.GET("/marks", api.instructorMarks)
	ig.POST("/marks", api.submit)
	ig.POST("/preview", api.preview)
	ig.GET("/template", api.template)

	cg := g.Group("/coordinator", jwt, instructorMiddleware(auth), coordinatorMiddleware(auth, deps.SubjectSvc))
	cg.GET("", api.coordinatedSubject)
	cg.PUT("/evaluation", api.setEvaluationSettings)
	cg.GET("/template", api.coordinatorTemplate)
	cg.GET("/submissions", api.submissions)
	cg.GET("/submissions/:instructorId", api.viewSubmission)
	cg.GET("/aggregate", api.aggregate)
}

func sheetName(parts ...string) string {
	return strings.Join(parts, "_") + ".csv"
}

// Instructor handlers

func (api *markApi) instructorMarks(ctx echo.Context) error {
	id, err := api.auth.contextIdentity(ctx)
	if err != nil {
		return err
	}
	s, marks, err := api.svc.InstructorMarks(ctx.Request().Context(), id, ctx.Param("id"))
	if err != nil {
		return err
	}
	ia, _ := s.Instructor(id.UserID)
	return ctx.JSON(http.StatusOK, InstructorMarksResponse{Subject: s, Students: ia.Students, Marks: marks})
}

func (api *markApi) submit(ctx echo.Context) error {
	id, err := api.auth.contextIdentity(ctx)
	if err != nil {
		return err
	}
	records, err := bindRecords(ctx)
	if err != nil {
		return err
	}

	result, err := api.svc.Submit(ctx.Request().Context(), id, ctx.Param("id"), criteria(ctx), records)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, result)
}

func (api *markApi) preview(ctx echo.Context) error {
	id, err := api.auth.contextIdentity(ctx)
	if err != nil {
		return err
	}
	records, err := bindRecords(ctx)
	if err != nil {
		return err
	}

	previews, err := api.svc.Preview(ctx.Request().Context(), id, ctx.Param("id"), criteria(ctx), records)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, previews)
}

func (api *markApi) template(ctx echo.Context) error {
	id, err := api.auth.contextIdentity(ctx)
	if err != nil {
		return err
	}
	evalCriteria := criteria(ctx)
	t, err := api.svc.Template(ctx.Request().Context(), id, ctx.Param("id"), evalCriteria)
	if err != nil {
		return err
	}
	return sendCSV(ctx, sheetName(evalCriteria, "template"), func(w io.Writer) error { return sheetsvc.WriteTable(w, t) })
}

// Coordinator handlers

func (api *markApi) coordinatedSubject(ctx echo.Context) error {
	_, s, err := coordinatorIdentity(ctx, api.auth)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *markApi) setEvaluationSettings(ctx echo.Context) error {
	id, s, err := coordinatorIdentity(ctx, api.auth)
	if err != nil {
		return err
	}

	var data subject.EvaluationSettings
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EvaluationSettings")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, warnings, err := api.subjects.SetEvaluationSettings(ctx.Request().Context(), id, s.ID, data)
	if err != nil {
		return err
	}
	if warnings == nil {
		warnings = []string{}
	}
	return ctx.JSON(http.StatusOK, EvaluationSettingsResponse{Subject: s, Warnings: warnings})
}

func (api *markApi) coordinatorTemplate(ctx echo.Context) error {
	id, s, err := coordinatorIdentity(ctx, api.auth)
	if err != nil {
		return err
	}
	evalCriteria := criteria(ctx)
	t, err := api.svc.Template(ctx.Request().Context(), id, s.ID, evalCriteria)
	if err != nil {
		return err
	}
	return sendCSV(ctx, sheetName(s.Code, evalCriteria, "template"), func(w io.Writer) error { return sheetsvc.WriteTable(w, t) })
}

func (api *markApi) submissions(ctx echo.Context) error {
	id, s, err := coordinatorIdentity(ctx, api.auth)
	if err != nil {
		return err
	}
	statuses, err := api.svc.Submissions(ctx.Request().Context(), id, s.ID, criteria(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, statuses)
}

func (api *markApi) viewSubmission(ctx echo.Context) error {
	id, s, err := coordinatorIdentity(ctx, api.auth)
	if err != nil {
		return err
	}
	evalCriteria := criteria(ctx)
	t, err := api.svc.ViewSubmission(ctx.Request().Context(), id, s.ID, ctx.Param("instructorId"), evalCriteria)
	if err != nil {
		return err
	}
	return sendTable(ctx, sheetName(s.Code, evalCriteria, ctx.Param("instructorId")), t)
}

// aggregate answers with the merged sheet, or with the conflicts preventing it.
func (api *markApi) aggregate(ctx echo.Context) error {
	id, s, err := coordinatorIdentity(ctx, api.auth)
	if err != nil {
		return err
	}
	evalCriteria := criteria(ctx)
	agg, err := api.svc.Aggregate(ctx.Request().Context(), id, s.ID, evalCriteria)
	if err != nil {
		return err
	}
	if conflicts := agg.Conflicts(); len(conflicts) > 0 {
		return ctx.JSON(http.StatusConflict, ConflictResponse{Error: msgConflicts, Conflicts: conflicts})
	}
	return sendTable(ctx, sheetName(s.Code, evalCriteria, "aggregated"), agg.Table())
}

type (
	InstructorMarksResponse struct {
		Subject  subject.Subject    `json:"subject"`
		Students []string           `json:"students"`
		Marks    []mark.StudentMark `json:"marks"`
	}

	EvaluationSettingsResponse struct {
		Subject  subject.Subject `json:"subject"`
		Warnings []string        `json:"warnings"`
	}

	ConflictResponse struct {
		Error     string          `json:"error"`
		Conflicts []mark.Conflict `json:"conflicts"`
	}
)
