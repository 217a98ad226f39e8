package attainment

import (
	"regexp"
	"strconv"

	"github.com/trezcool/clotrack/core/subject"
)

// Standard column names of marks sheets.
const (
	ColRollNo             = "RollNo"
	ColStudentName        = "Student Name"
	ColTotalMarks         = "TotalMarks"
	ColTotalMarksWeighted = "TotalMarks_Weightage"

	weightedSuffix = "_Weightage"
	scaledSuffix   = "_scaled"
)

var columnKeyRegex = regexp.MustCompile(`^(\w+?)_Q([1-9][0-9]*)(?:_P([1-9][0-9]*))?$`)

// ColumnKey identifies a markable unit: a whole question when PartNo is 0, else one of its parts.
type ColumnKey struct {
	Criteria   string
	QuestionNo int
	PartNo     int
}

// String returns the wire form of the key: {criteria}_Q{n} or {criteria}_Q{n}_P{m}.
func (k ColumnKey) String() string {
	s := k.Criteria + "_Q" + strconv.Itoa(k.QuestionNo)
	if k.PartNo > 0 {
		s += "_P" + strconv.Itoa(k.PartNo)
	}
	return s
}

func (k ColumnKey) HasPart() bool {
	return k.PartNo > 0
}

// ParseColumnKey parses the wire form of a ColumnKey.
func ParseColumnKey(s string) (ColumnKey, bool) {
	m := columnKeyRegex.FindStringSubmatch(s)
	if m == nil {
		return ColumnKey{}, false
	}
	k := ColumnKey{Criteria: m[1]}
	k.QuestionNo, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		k.PartNo, _ = strconv.Atoi(m[3])
	}
	return k, true
}

// keyOf returns the ColumnKey a mapping entry points at.
func keyOf(m subject.MapEntry) ColumnKey {
	k := ColumnKey{Criteria: m.Criteria, QuestionNo: m.QuestionNo}
	if m.PartNo != nil {
		k.PartNo = *m.PartNo
	}
	return k
}

func CLOKey(n int) string {
	return "CLO" + strconv.Itoa(n)
}

// WeightedColumn returns the name of the weighted column derived from col.
func WeightedColumn(col string) string {
	return col + weightedSuffix
}

// ScaledColumn returns the name of the scaled column derived from col.
func ScaledColumn(col string) string {
	return col + scaledSuffix
}

// Unit is a markable unit of an evaluation criterion.
type Unit struct {
	Key      ColumnKey
	MaxMarks float64
}

// Units lays out the markable units of a criterion in sheet order:
// the parts of parted questions, the questions themselves otherwise.
func Units(criteria string, ec subject.EvaluationCriterion) []Unit {
	units := make([]Unit, 0, len(ec.Questions))
	for _, q := range ec.Questions {
		if len(q.Parts) == 0 {
			units = append(units, Unit{Key: ColumnKey{Criteria: criteria, QuestionNo: q.QuestionNo}, MaxMarks: q.MaxMarks})
			continue
		}
		for _, p := range q.Parts {
			units = append(units, Unit{
				Key:      ColumnKey{Criteria: criteria, QuestionNo: q.QuestionNo, PartNo: p.PartNo},
				MaxMarks: p.MaxMarks,
			})
		}
	}
	return units
}

// Columns returns the standard header of a marks sheet for the criterion.
func Columns(criteria string, ec subject.EvaluationCriterion, clos []subject.CLO) []string {
	units := Units(criteria, ec)
	cols := make([]string, 0, 4+2*len(units)+len(clos))
	cols = append(cols, ColRollNo, ColStudentName)
	for _, u := range units {
		cols = append(cols, u.Key.String())
	}
	for _, u := range units {
		cols = append(cols, WeightedColumn(u.Key.String()))
	}
	cols = append(cols, ColTotalMarks, ColTotalMarksWeighted)
	for _, clo := range clos {
		cols = append(cols, CLOKey(clo.CLONumber))
	}
	return cols
}
