package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/clotrack/core/subject"
)

type subjectRepository struct {
	db *subjectTable
}

func NewSubjectRepository(db *DB) subject.Repository {
	return &subjectRepository{db: db.subject}
}

func copyPartNo(p *int) *int {
	if p == nil {
		return nil
	}
	n := *p
	return &n
}

// copySubject deep copies the Subject so stored values never alias the caller's.
func copySubject(s subject.Subject) subject.Subject {
	schema := make(map[string]subject.EvaluationCriterion, len(s.EvaluationSchema))
	for name, ec := range s.EvaluationSchema {
		if ec.Weightage != nil {
			w := *ec.Weightage
			ec.Weightage = &w
		}
		qs := make([]subject.Question, 0, len(ec.Questions))
		for _, q := range ec.Questions {
			q.Parts = append([]subject.Part(nil), q.Parts...)
			qs = append(qs, q)
		}
		ec.Questions = qs
		schema[name] = ec
	}
	s.EvaluationSchema = schema

	s.CLOs = append([]subject.CLO(nil), s.CLOs...)

	mappings := make([]subject.CLOMapping, 0, len(s.CLOMappings))
	for _, cm := range s.CLOMappings {
		entries := make([]subject.MapEntry, 0, len(cm.Mappings))
		for _, m := range cm.Mappings {
			m.PartNo = copyPartNo(m.PartNo)
			entries = append(entries, m)
		}
		cm.Mappings = entries
		mappings = append(mappings, cm)
	}
	s.CLOMappings = mappings

	instructors := make([]subject.InstructorAssignment, 0, len(s.Instructors))
	for _, ia := range s.Instructors {
		ia.Students = append([]string{}, ia.Students...)
		instructors = append(instructors, ia)
	}
	s.Instructors = instructors
	return s
}

func (repo *subjectRepository) CreateSubject(_ context.Context, s subject.Subject) (subject.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, other := range repo.db.table {
		if other.Code == s.Code {
			return subject.Subject{}, subject.ErrCodeExists
		}
	}
	cp := copySubject(s)
	repo.db.table[s.ID] = &cp
	return copySubject(s), nil
}

func (repo *subjectRepository) GetSubject(_ context.Context, filter subject.GetFilter) (subject.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if s, ok := repo.db.table[filter.ID]; ok {
			return copySubject(*s), nil
		}
		return subject.Subject{}, subject.ErrNotFound
	}
	if filter.Code != "" {
		for _, s := range repo.db.table {
			if s.Code == filter.Code {
				return copySubject(*s), nil
			}
		}
	}
	return subject.Subject{}, subject.ErrNotFound
}

func (repo *subjectRepository) QuerySubjects(_ context.Context, filter subject.QueryFilter) ([]subject.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subjects := make([]subject.Subject, 0)
	for _, s := range repo.db.table {
		if filter.Code != "" && s.Code != filter.Code {
			continue
		}
		if filter.Department != "" && s.Department != filter.Department {
			continue
		}
		if filter.InstructorID != "" && !s.HasInstructor(filter.InstructorID) && !s.IsCoordinator(filter.InstructorID) {
			continue
		}
		subjects = append(subjects, copySubject(*s))
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Code < subjects[j].Code })
	return subjects, nil
}

func (repo *subjectRepository) UpdateSubject(_ context.Context, s subject.Subject) (subject.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[s.ID]; !ok {
		return subject.Subject{}, subject.ErrNotFound
	}
	cp := copySubject(s)
	repo.db.table[s.ID] = &cp
	return copySubject(s), nil
}

func (repo *subjectRepository) DeleteSubject(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.table, id)
	return nil
}
