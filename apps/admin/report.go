package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/mark"
	sheetsvc "github.com/trezcool/clotrack/services/sheet"
)

// the CLI acts with admin rights on every subject
var adminIdentity = core.Identity{Name: "admin cli", Role: core.RoleAdmin}

func cells(values []string) []interface{} {
	row := make([]interface{}, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func renderTable(w io.Writer, t mark.Table) error {
	table := tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
	}))
	table.Header(cells(t.Header)...)
	for _, row := range t.Rows {
		if err := table.Append(cells(row)...); err != nil {
			return err
		}
	}
	return table.Render()
}

func (cli *commandLine) submissions(subjectCode, evalCriteria string) error {
	ctx := context.Background()
	s, err := cli.subjSvc.GetByCode(ctx, subjectCode)
	if err != nil {
		return err
	}
	statuses, err := cli.markSvc.Submissions(ctx, adminIdentity, s.ID, evalCriteria)
	if err != nil {
		return err
	}

	t := mark.Table{Header: []string{"Instructor", "Submitted", "Students"}}
	for _, st := range statuses {
		submitted := "no"
		if st.HasSubmitted {
			submitted = "yes"
		}
		t.Rows = append(t.Rows, []string{st.InstructorName, submitted, strconv.Itoa(st.Count)})
	}
	return renderTable(cli.out, t)
}

func (cli *commandLine) aggregate(subjectCode, evalCriteria string, asCSV bool) error {
	ctx := context.Background()
	s, err := cli.subjSvc.GetByCode(ctx, subjectCode)
	if err != nil {
		return err
	}
	agg, err := cli.markSvc.Aggregate(ctx, adminIdentity, s.ID, evalCriteria)
	if err != nil {
		return err
	}

	if conflicts := agg.Conflicts(); len(conflicts) > 0 {
		t := mark.Table{Header: []string{"RollNo", "Instructor"}}
		for _, c := range conflicts {
			for _, iid := range c.InstructorIDs {
				t.Rows = append(t.Rows, []string{c.RollNo(), iid})
			}
		}
		fmt.Fprintln(cli.out, "students have marks from several instructors:")
		if err = renderTable(cli.out, t); err != nil {
			return err
		}
		return errConflicts
	}

	if asCSV {
		return sheetsvc.WriteTable(cli.out, agg.Table())
	}
	return renderTable(cli.out, agg.Table())
}
