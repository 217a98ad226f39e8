package echoapi

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/mark"
	sheetsvc "github.com/trezcool/clotrack/services/sheet"
)

const (
	criteriaParam = "criteria"
	formatParam   = "format"
	formatCSV     = "csv"
	uploadField   = "file"
	mimeTextCSV   = "text/csv"
)

var (
	errNoUpload   = core.NewValidationError(nil, core.FieldError{Field: uploadField, Error: "no file uploaded"})
	errEmptySheet = core.NewValidationError(nil, core.FieldError{Field: uploadField, Error: "the sheet has no rows"})
)

// criteria returns the evaluation criterion named by the query string.
func criteria(ctx echo.Context) string {
	return core.CleanString(ctx.QueryParam(criteriaParam))
}

func wantsCSV(ctx echo.Context) bool {
	return strings.EqualFold(ctx.QueryParam(formatParam), formatCSV)
}

// openUpload returns the uploaded sheet: the `file` part of a multipart form, or the whole body when sent as text/csv.
func openUpload(ctx echo.Context) (io.ReadCloser, error) {
	req := ctx.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), mimeTextCSV) {
		return req.Body, nil
	}

	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		if err == http.ErrMissingFile || err == http.ErrNotMultipart {
			return nil, errNoUpload
		}
		return nil, errors.Wrap(err, "reading uploaded file")
	}
	return fh.Open()
}

// bindRecords reads the student records of a marks request, either from an uploaded sheet or from a JSON body.
func bindRecords(ctx echo.Context) ([]mark.StudentRecord, error) {
	ct := ctx.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEMultipartForm) || strings.HasPrefix(ct, mimeTextCSV) {
		f, err := openUpload(ctx)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return sheetsvc.ReadMarks(f)
	}

	var data MarksRequest
	if err := ctx.Bind(&data); err != nil {
		return nil, errors.Wrap(err, "binding to MarksRequest")
	}
	return data.Records, nil
}

// sendCSV answers with a downloadable CSV sheet.
func sendCSV(ctx echo.Context, filename string, write func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return errors.Wrap(err, "writing csv")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return ctx.Blob(http.StatusOK, mimeTextCSV, buf.Bytes())
}

func sendTable(ctx echo.Context, filename string, t mark.Table) error {
	if wantsCSV(ctx) {
		return sendCSV(ctx, filename, func(w io.Writer) error { return sheetsvc.WriteTable(w, t) })
	}
	return ctx.JSON(http.StatusOK, t)
}

type MarksRequest struct {
	Records []mark.StudentRecord `json:"records"`
}
