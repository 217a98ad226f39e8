package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core/batch"
	sheetsvc "github.com/trezcool/clotrack/services/sheet"
)

// addBatch creates a batch from a CSV roster.
func (cli *commandLine) addBatch(id, department, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	students, err := sheetsvc.ReadStudents(f)
	if err != nil {
		return err
	}
	nb := batch.NewBatch{ID: id, Department: department, Students: students}
	if err = nb.Validate(cli.validate, cli.batchSvc); err != nil {
		return err
	}
	b, err := cli.batchSvc.Create(context.Background(), nb)
	if err != nil {
		return errors.Wrap(err, "creating batch")
	}
	fmt.Fprintf(cli.out, "batch %s created with %d students\n", b.ID, len(b.Students))
	return nil
}
