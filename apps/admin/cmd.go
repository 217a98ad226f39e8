package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/clotrack/core/batch"
	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
	"github.com/trezcool/clotrack/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp      = errors.New("help provided")
	errConflicts = errors.New("marks conflict; fix the tagging and resubmit")
)

type commandLine struct {
	db       *sql.DB // nil unless the postgres engine is used
	out      io.Writer
	validate *validator.Validate
	usrRepo  user.Repository
	batchSvc *batch.Service
	subjSvc  *subject.Service
	markSvc  *mark.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL [-admin] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  addbatch -id ID -file STUDENTS.csv [-department DEPT] - create a batch from a roster")
	fmt.Fprintln(cli.out, "  submissions -subject CODE -criteria CRITERIA - list the submission status of each instructor")
	fmt.Fprintln(cli.out, "  aggregate -subject CODE -criteria CRITERIA [-csv] - print the aggregated marks sheet")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run the postgres migrations (up, up-by-one, up-to, down, down-to, redo)")
}

func (cli *commandLine) readPassword(cmd *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		cmd.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Make the user an admin.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	addBatchCmd := flag.NewFlagSet("addbatch", flag.ContinueOnError)
	addBatchID := addBatchCmd.String("id", "", "The batch ID.")
	addBatchFile := addBatchCmd.String("file", "", "CSV roster with RollNo, Name & Department columns.")
	addBatchDept := addBatchCmd.String("department", "", "Default department of the students.")

	reportFlags := func(name string) (*flag.FlagSet, *string, *string) {
		cmd := flag.NewFlagSet(name, flag.ContinueOnError)
		code := cmd.String("subject", "", "The subject code.")
		crit := cmd.String("criteria", "", "The evaluation criterion (e.g. MST).")
		return cmd, code, crit
	}
	submissionsCmd, submissionsSubject, submissionsCriteria := reportFlags("submissions")
	aggregateCmd, aggregateSubject, aggregateCriteria := reportFlags("aggregate")
	aggregateCSV := aggregateCmd.Bool("csv", false, "Print the sheet as CSV.")

	for _, cmd := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, addBatchCmd, submissionsCmd, aggregateCmd} {
		cmd.SetOutput(cli.out)
	}

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(addUserCmd)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserName, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword(resetPasswordCmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "addbatch":
		if err := addBatchCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addBatchID == "" || *addBatchFile == "" {
			addBatchCmd.Usage()
			return errHelp
		}
		return cli.addBatch(*addBatchID, *addBatchDept, *addBatchFile)

	case "submissions":
		if err := submissionsCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *submissionsSubject == "" || *submissionsCriteria == "" {
			submissionsCmd.Usage()
			return errHelp
		}
		return cli.submissions(*submissionsSubject, *submissionsCriteria)

	case "aggregate":
		if err := aggregateCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *aggregateSubject == "" || *aggregateCriteria == "" {
			aggregateCmd.Usage()
			return errHelp
		}
		return cli.aggregate(*aggregateSubject, *aggregateCriteria, *aggregateCSV)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}
