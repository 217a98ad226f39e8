package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/clotrack/core/subject"
)

type subjectRepository struct {
	coll *mongo.Collection
}

var _ subject.Repository = (*subjectRepository)(nil)

func NewSubjectRepository(db *mongo.Database) subject.Repository {
	return &subjectRepository{coll: db.Collection(subjectsCollection)}
}

func (repo *subjectRepository) CreateSubject(ctx context.Context, s subject.Subject) (subject.Subject, error) {
	if _, err := repo.coll.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return subject.Subject{}, subject.ErrCodeExists
		}
		return subject.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return s, nil
}

func (repo *subjectRepository) GetSubject(ctx context.Context, filter subject.GetFilter) (subject.Subject, error) {
	var q bson.M
	switch {
	case filter.ID != "":
		q = bson.M{"_id": filter.ID}
	case filter.Code != "":
		q = bson.M{"subjectCode": filter.Code}
	default:
		return subject.Subject{}, subject.ErrNotFound
	}

	var s subject.Subject
	if err := repo.coll.FindOne(ctx, q).Decode(&s); err != nil {
		if err == mongo.ErrNoDocuments {
			return subject.Subject{}, subject.ErrNotFound
		}
		return subject.Subject{}, errors.Wrap(err, "finding subject")
	}
	return s, nil
}

func (repo *subjectRepository) QuerySubjects(ctx context.Context, filter subject.QueryFilter) ([]subject.Subject, error) {
	q := bson.M{}
	if filter.Code != "" {
		q["subjectCode"] = filter.Code
	}
	if filter.Department != "" {
		q["department"] = filter.Department
	}
	if filter.InstructorID != "" {
		q["$or"] = bson.A{
			bson.M{"instructors.instructorId": filter.InstructorID},
			bson.M{"coordinatorId": filter.InstructorID},
		}
	}

	subjects := make([]subject.Subject, 0)
	cur, err := repo.coll.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "subjectCode", Value: 1}}))
	if err = decodeAll(ctx, cur, err, &subjects); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subjects, nil
}

func (repo *subjectRepository) UpdateSubject(ctx context.Context, s subject.Subject) (subject.Subject, error) {
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": s.ID}, s)
	if err != nil {
		return subject.Subject{}, errors.Wrap(err, "updating subject")
	}
	if res.MatchedCount == 0 {
		return subject.Subject{}, subject.ErrNotFound
	}
	return s, nil
}

func (repo *subjectRepository) DeleteSubject(ctx context.Context, id string) error {
	_, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id})
	return errors.Wrap(err, "deleting subject")
}
