package inmemdb

import (
	"sync"

	"github.com/trezcool/clotrack/core/batch"
	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
	"github.com/trezcool/clotrack/core/user"
)

type (
	DB struct {
		user    *userTable
		batch   *batchTable
		subject *subjectTable
		mark    *markTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	batchTable struct {
		mutex sync.RWMutex
		table map[string]*batch.Batch
	}

	subjectTable struct {
		mutex sync.RWMutex
		table map[string]*subject.Subject
	}

	markTable struct {
		mutex sync.RWMutex
		table map[mark.Key]*mark.StudentMark
	}
)

func Open() *DB {
	return &DB{
		user:    &userTable{table: make(map[string]*user.User)},
		batch:   &batchTable{table: make(map[string]*batch.Batch)},
		subject: &subjectTable{table: make(map[string]*subject.Subject)},
		mark:    &markTable{table: make(map[mark.Key]*mark.StudentMark)},
	}
}
