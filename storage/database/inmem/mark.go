package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/clotrack/core/mark"
)

type markRepository struct {
	db *markTable
}

func NewMarkRepository(db *DB) mark.Repository {
	return &markRepository{db: db.mark}
}

func copyMark(m mark.StudentMark) mark.StudentMark {
	data := make(map[string]string, len(m.Data))
	for k, v := range m.Data {
		data[k] = v
	}
	cloMarks := make(map[string]float64, len(m.CLOMarks))
	for k, v := range m.CLOMarks {
		cloMarks[k] = v
	}
	cloTotals := make(map[string]float64, len(m.CLOTotals))
	for k, v := range m.CLOTotals {
		cloTotals[k] = v
	}
	m.Data, m.CLOMarks, m.CLOTotals = data, cloMarks, cloTotals
	return m
}

func (repo *markRepository) Upsert(_ context.Context, m mark.StudentMark) (mark.StudentMark, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if orig, ok := repo.db.table[m.Key()]; ok {
		m.ID = orig.ID
		m.CreatedAt = orig.CreatedAt
	}
	cp := copyMark(m)
	repo.db.table[m.Key()] = &cp
	return copyMark(m), nil
}

func (repo *markRepository) QueryMarks(_ context.Context, filter mark.QueryFilter) ([]mark.StudentMark, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	marks := make([]mark.StudentMark, 0)
	for k, m := range repo.db.table {
		if filter.SubjectID != "" && k.SubjectID != filter.SubjectID {
			continue
		}
		if filter.InstructorID != "" && k.InstructorID != filter.InstructorID {
			continue
		}
		if filter.EvalCriteria != "" && k.EvalCriteria != filter.EvalCriteria {
			continue
		}
		marks = append(marks, copyMark(*m))
	}
	sort.Slice(marks, func(i, j int) bool {
		if marks[i].RollNo != marks[j].RollNo {
			return marks[i].RollNo < marks[j].RollNo
		}
		return marks[i].InstructorID < marks[j].InstructorID
	})
	return marks, nil
}

func (repo *markRepository) SubjectCriteria(_ context.Context, subjectID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	seen := make(map[string]bool)
	criteria := make([]string, 0)
	for k := range repo.db.table {
		if k.SubjectID == subjectID && !seen[k.EvalCriteria] {
			seen[k.EvalCriteria] = true
			criteria = append(criteria, k.EvalCriteria)
		}
	}
	sort.Strings(criteria)
	return criteria, nil
}

func (repo *markRepository) DeleteSubjectMarks(_ context.Context, subjectID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for k := range repo.db.table {
		if k.SubjectID == subjectID {
			delete(repo.db.table, k)
		}
	}
	return nil
}
