// Package database opens the repositories of the configured engine.
package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/batch"
	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
	"github.com/trezcool/clotrack/core/user"
	rediscache "github.com/trezcool/clotrack/storage/cache/redis"
	inmemdb "github.com/trezcool/clotrack/storage/database/inmem"
	mongodb "github.com/trezcool/clotrack/storage/database/mongo"
	pgdb "github.com/trezcool/clotrack/storage/database/postgres"
)

type Repositories struct {
	Users    user.Repository
	Batches  batch.Repository
	Subjects subject.Repository
	Marks    mark.Repository

	SQL *sqlx.DB // postgres engine only

	closers []func() error
}

// Close releases the connections held by the repositories.
func (r *Repositories) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open sets up the repositories of conf.Database.Engine, creating & migrating the database when needed.
// Subjects are cached in Redis when conf.Cache.RedisAddr is set.
func Open(ctx context.Context, conf *core.Config, logger core.Logger) (*Repositories, error) {
	repos := new(Repositories)

	switch conf.Database.Engine {
	case core.EngineInMem:
		db := inmemdb.Open()
		repos.Users = inmemdb.NewUserRepository(db)
		repos.Batches = inmemdb.NewBatchRepository(db)
		repos.Subjects = inmemdb.NewSubjectRepository(db)
		repos.Marks = inmemdb.NewMarkRepository(db)

	case core.EngineMongo:
		db, err := mongodb.Open(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "opening mongo")
		}
		repos.closers = append(repos.closers, func() error { return mongodb.Close(db) })
		if err = mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = repos.Close()
			return nil, errors.Wrap(err, "ensuring mongo indexes")
		}
		repos.Users = mongodb.NewUserRepository(db)
		repos.Batches = mongodb.NewBatchRepository(db)
		repos.Subjects = mongodb.NewSubjectRepository(db)
		repos.Marks = mongodb.NewMarkRepository(db)

	case core.EnginePostgres:
		if err := pgdb.CreateIfNotExist(conf); err != nil {
			return nil, errors.Wrap(err, "creating postgres database")
		}
		db, err := pgdb.Open(conf)
		if err != nil {
			return nil, errors.Wrap(err, "opening postgres")
		}
		repos.SQL = db
		repos.closers = append(repos.closers, db.Close)
		if err = pgdb.Migrate(db.DB); err != nil {
			_ = repos.Close()
			return nil, errors.Wrap(err, "migrating postgres")
		}
		repos.Users = pgdb.NewUserRepository(db)
		repos.Batches = pgdb.NewBatchRepository(db)
		repos.Subjects = pgdb.NewSubjectRepository(db)
		repos.Marks = pgdb.NewMarkRepository(db)

	default:
		return nil, fmt.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	if conf.Cache.RedisAddr != "" {
		client := rediscache.NewClient(conf)
		repos.closers = append(repos.closers, client.Close)
		repos.Subjects = rediscache.NewSubjectRepository(repos.Subjects, client, conf.Cache.SubjectTTL, logger)
	}
	return repos, nil
}
