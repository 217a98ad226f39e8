package subject

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clotrack/core"
)

var (
	dupCLOTag  = "dupclo"
	dupCLOText = "duplicate CLO number"

	dupQuestionTag  = "dupquestion"
	dupQuestionText = "duplicate question number"

	dupPartTag  = "duppart"
	dupPartText = "duplicate part number"
)

// settingsValidate guards the Service against settings its callers did not validate.
var settingsValidate = func() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}()

// InitValidators registers the subject validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(settingsStructValidation, EvaluationSettings{})
	core.RegisterCustomTranslation(validate, translator, dupCLOTag, dupCLOText)
	core.RegisterCustomTranslation(validate, translator, dupQuestionTag, dupQuestionText)
	core.RegisterCustomTranslation(validate, translator, dupPartTag, dupPartText)
}

// settingsStructValidation rejects duplicate CLO, question & part numbers.
func settingsStructValidation(sl validator.StructLevel) {
	es := sl.Current().Interface().(EvaluationSettings)

	if es.CLOs != nil {
		seen := make(map[int]bool, len(*es.CLOs))
		for i, clo := range *es.CLOs {
			if seen[clo.CLONumber] {
				sl.ReportError(clo.CLONumber, fmt.Sprintf("clos[%d].clo_number", i), "CLONumber", dupCLOTag, "")
			}
			seen[clo.CLONumber] = true
		}
	}

	if es.EvaluationSchema != nil {
		for name, ec := range *es.EvaluationSchema {
			seenQ := make(map[int]bool, len(ec.Questions))
			for i, q := range ec.Questions {
				if seenQ[q.QuestionNo] {
					fld := fmt.Sprintf("evaluation_schema.%s.questions[%d].question_no", name, i)
					sl.ReportError(q.QuestionNo, fld, "QuestionNo", dupQuestionTag, "")
				}
				seenQ[q.QuestionNo] = true

				seenP := make(map[int]bool, len(q.Parts))
				for j, p := range q.Parts {
					if seenP[p.PartNo] {
						fld := fmt.Sprintf("evaluation_schema.%s.questions[%d].parts[%d].part_no", name, i, j)
						sl.ReportError(p.PartNo, fld, "PartNo", dupPartTag, "")
					}
					seenP[p.PartNo] = true
				}
			}
		}
	}
}

// schemaWarnings reports criteria whose questions do not add up to their total marks,
// and questions whose parts do not add up to their max marks.
func schemaWarnings(schema map[string]EvaluationCriterion) []string {
	warnings := make([]string, 0)
	for _, name := range (Subject{EvaluationSchema: schema}).CriteriaNames() {
		ec := schema[name]
		var sum float64
		for _, q := range ec.Questions {
			sum += q.MaxMarks
			if len(q.Parts) == 0 {
				continue
			}
			var partSum float64
			for _, p := range q.Parts {
				partSum += p.MaxMarks
			}
			if partSum != q.MaxMarks {
				warnings = append(warnings, fmt.Sprintf(
					"%s: parts of question %d add up to %g, expected %g", name, q.QuestionNo, partSum, q.MaxMarks,
				))
			}
		}
		if sum != ec.TotalMarks {
			warnings = append(warnings, fmt.Sprintf(
				"%s: question max marks add up to %g, expected %g", name, sum, ec.TotalMarks,
			))
		}
	}
	return warnings
}
