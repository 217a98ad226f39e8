package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/batch"
	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
	"github.com/trezcool/clotrack/core/user"
	logsvc "github.com/trezcool/clotrack/services/logger"
	"github.com/trezcool/clotrack/storage/database"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	repos, err := database.Open(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s database: %v", conf.Database.Engine, err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	usrSvc := user.NewService(repos.Users, logger)
	batchSvc := batch.NewService(repos.Batches, logger)
	subjSvc := subject.NewService(repos.Subjects, repos.Marks, usrSvc, batchSvc, logger)

	// start CLI
	cli := commandLine{
		out:      os.Stdout,
		validate: validate,
		usrRepo:  repos.Users,
		batchSvc: batchSvc,
		subjSvc:  subjSvc,
		markSvc:  mark.NewService(repos.Marks, subjSvc, usrSvc, batchSvc, logger, conf.Compute.Workers),
	}
	if repos.SQL != nil {
		cli.db = repos.SQL.DB
	}

	err = cli.run(os.Args)
	if cerr := repos.Close(); cerr != nil {
		logger.Error("closing database", cerr)
	}
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
