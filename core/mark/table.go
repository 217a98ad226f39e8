package mark

import "sort"

// Table is a marks sheet: a header and rows of cells in header order.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Records returns the rows keyed by column.
func (t Table) Records() []map[string]string {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Header))
		for i, col := range t.Header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records
}

// Resolution is the outcome of aggregating the marks of one student: Resolved or Conflict.
type Resolution interface {
	RollNo() string
	resolution()
}

// Resolved is the single submitted row of a student.
type Resolved struct {
	Mark StudentMark `json:"-"`
	Row  []string    `json:"row"`
}

func (r Resolved) RollNo() string { return r.Mark.RollNo }
func (Resolved) resolution()      {}

// Conflict flags a student whose marks were submitted by several instructors.
type Conflict struct {
	Roll          string   `json:"roll_no"`
	InstructorIDs []string `json:"instructor_ids"`
}

func (c Conflict) RollNo() string { return c.Roll }
func (Conflict) resolution()      {}

type Aggregation struct {
	SubjectID    string
	EvalCriteria string
	Header       []string
	Entries      []Resolution // sorted by roll number
}

// Table returns the resolved rows.
func (a Aggregation) Table() Table {
	t := Table{Header: a.Header, Rows: make([][]string, 0, len(a.Entries))}
	for _, e := range a.Entries {
		if r, ok := e.(Resolved); ok {
			t.Rows = append(t.Rows, r.Row)
		}
	}
	return t
}

func (a Aggregation) Conflicts() []Conflict {
	conflicts := make([]Conflict, 0)
	for _, e := range a.Entries {
		if c, ok := e.(Conflict); ok {
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

// resolve groups the marks by roll number, flagging those submitted by more than one instructor.
func resolve(marks []StudentMark, project func(StudentMark) []string) []Resolution {
	byRoll := make(map[string][]StudentMark)
	for _, m := range marks {
		byRoll[m.RollNo] = append(byRoll[m.RollNo], m)
	}

	rolls := make([]string, 0, len(byRoll))
	for r := range byRoll {
		rolls = append(rolls, r)
	}
	sort.Strings(rolls)

	entries := make([]Resolution, 0, len(rolls))
	for _, r := range rolls {
		group := byRoll[r]
		ids := make([]string, 0, len(group))
		for _, m := range group {
			if !containsStr(ids, m.InstructorID) {
				ids = append(ids, m.InstructorID)
			}
		}
		if len(ids) > 1 {
			sort.Strings(ids)
			entries = append(entries, Conflict{Roll: r, InstructorIDs: ids})
			continue
		}
		// a single instructor has one row per key
		entries = append(entries, Resolved{Mark: group[0], Row: project(group[0])})
	}
	return entries
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
