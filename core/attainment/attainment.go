// Package attainment derives per-student CLO attainment from raw marks.
// Everything in it is pure: the same inputs always yield the same Result.
package attainment

import (
	"context"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/trezcool/clotrack/core/subject"
)

// Marks are raw marks keyed by unit.
type Marks map[ColumnKey]float64

// ParseMarks parses a raw marks row once. Cells whose key is not exactly a unit
// column, or whose value is not a finite number, are dropped. Keys are not
// trimmed, so padded variants of a column never compete with it.
func ParseMarks(raw map[string]string) Marks {
	marks := make(Marks, len(raw))
	for col, val := range raw {
		k, ok := ParseColumnKey(col)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		marks[k] = f
	}
	return marks
}

type Result struct {
	CLOMarks           map[string]float64 `json:"clo_marks"`
	CLOTotals          map[string]float64 `json:"clo_totals"`
	TotalMarksAchieved float64            `json:"total_marks"`
	TotalMarksWeighted float64            `json:"total_marks_weightage"`
}

// Input is everything about a subject the computation of one criterion depends on.
type Input struct {
	Criteria string
	Schema   subject.EvaluationCriterion
	Mappings []subject.CLOMapping
	CLOs     []subject.CLO
}

// NewInput returns the Input of the subject's criterion, if it exists.
func NewInput(s subject.Subject, criteria string) (Input, bool) {
	ec, ok := s.Criterion(criteria)
	if !ok {
		return Input{}, false
	}
	return Input{Criteria: criteria, Schema: ec, Mappings: s.CLOMappings, CLOs: s.CLOs}, true
}

// Plan is an Input prepared for repeated computations.
type Plan struct {
	units  []Unit
	weight float64
	claims map[ColumnKey][]string // unit -> CLO keys, in mapping order
	clos   []string
}

// NewPlan indexes the mappings of the Input once.
// Mapping entries of other criteria, or of CLOs the subject does not declare, are ignored.
func NewPlan(in Input) *Plan {
	p := &Plan{
		units:  Units(in.Criteria, in.Schema),
		weight: in.Schema.WeightageFactor(),
		claims: make(map[ColumnKey][]string),
		clos:   make([]string, 0, len(in.CLOs)),
	}

	declared := make(map[int]bool, len(in.CLOs))
	for _, clo := range in.CLOs {
		if !declared[clo.CLONumber] {
			p.clos = append(p.clos, CLOKey(clo.CLONumber))
		}
		declared[clo.CLONumber] = true
	}

	for _, cm := range in.Mappings {
		if !declared[cm.CLONumber] {
			continue
		}
		clo := CLOKey(cm.CLONumber)
		for _, m := range cm.Mappings {
			if m.Criteria != in.Criteria {
				continue
			}
			k := keyOf(m)
			if !containsStr(p.claims[k], clo) {
				p.claims[k] = append(p.claims[k], clo)
			}
		}
	}
	return p
}

// Compute rolls the marks up into CLO attainment.
// Every declared CLO is present in the Result, with 0/0 when nothing feeds it.
func (p *Plan) Compute(marks Marks) Result {
	res := Result{
		CLOMarks:  make(map[string]float64, len(p.clos)),
		CLOTotals: make(map[string]float64, len(p.clos)),
	}
	for _, clo := range p.clos {
		res.CLOMarks[clo] = 0
		res.CLOTotals[clo] = 0
	}

	for _, u := range p.units {
		raw := marks[u.Key]
		res.TotalMarksAchieved += raw
		scaled := raw * p.weight
		for _, clo := range p.claims[u.Key] {
			res.CLOMarks[clo] += scaled
			res.CLOTotals[clo] += u.MaxMarks * p.weight
		}
	}

	res.TotalMarksWeighted = res.TotalMarksAchieved * p.weight
	return res
}

// Compute derives the attainment of one student for a criterion from its raw marks row.
func Compute(criteria string, schema subject.EvaluationCriterion, mappings []subject.CLOMapping, clos []subject.CLO, raw map[string]string) Result {
	in := Input{Criteria: criteria, Schema: schema, Mappings: mappings, CLOs: clos}
	return NewPlan(in).Compute(ParseMarks(raw))
}

// ComputeAll computes the attainment of many students concurrently, using at most `workers` goroutines.
// Results are in the order of rows.
func ComputeAll(ctx context.Context, in Input, rows []map[string]string, workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}
	plan := NewPlan(in)
	results := make([]Result, len(rows))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range rows {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = plan.Compute(ParseMarks(rows[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Weighted returns the weighted value of every unit column of the row, keyed by weighted column name.
// Missing or invalid marks weigh 0.
func (p *Plan) Weighted(marks Marks) map[string]float64 {
	w := make(map[string]float64, len(p.units))
	for _, u := range p.units {
		w[WeightedColumn(u.Key.String())] = marks[u.Key] * p.weight
	}
	return w
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
