package mongodb

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
)

type markRepository struct {
	coll *mongo.Collection
}

var (
	_ mark.Repository   = (*markRepository)(nil)
	_ subject.MarkStore = (*markRepository)(nil)
)

func NewMarkRepository(db *mongo.Database) mark.Repository {
	return &markRepository{coll: db.Collection(marksCollection)}
}

func keyFilter(k mark.Key) bson.M {
	return bson.M{
		"subjectId":    k.SubjectID,
		"rollNo":       k.RollNo,
		"instructorId": k.InstructorID,
		"evalCriteria": k.EvalCriteria,
	}
}

// Upsert relies on the unique index over the mark key: concurrent submissions of the same key
// end up in a single document.
func (repo *markRepository) Upsert(ctx context.Context, m mark.StudentMark) (mark.StudentMark, error) {
	update := bson.M{
		"$set": bson.M{
			"data":      m.Data,
			"cloMarks":  m.CLOMarks,
			"cloTotals": m.CLOTotals,
			"updatedAt": m.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":       m.ID,
			"createdAt": m.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored mark.StudentMark
	err := repo.coll.FindOneAndUpdate(ctx, keyFilter(m.Key()), update, opts).Decode(&stored)
	if err != nil {
		return mark.StudentMark{}, errors.Wrapf(err, "upserting marks of %s", m.RollNo)
	}
	return stored, nil
}

func (repo *markRepository) QueryMarks(ctx context.Context, filter mark.QueryFilter) ([]mark.StudentMark, error) {
	q := bson.M{}
	if filter.SubjectID != "" {
		q["subjectId"] = filter.SubjectID
	}
	if filter.InstructorID != "" {
		q["instructorId"] = filter.InstructorID
	}
	if filter.EvalCriteria != "" {
		q["evalCriteria"] = filter.EvalCriteria
	}

	opts := options.Find().SetSort(bson.D{{Key: "rollNo", Value: 1}, {Key: "instructorId", Value: 1}})
	marks := make([]mark.StudentMark, 0)
	cur, err := repo.coll.Find(ctx, q, opts)
	if err = decodeAll(ctx, cur, err, &marks); err != nil {
		return nil, errors.Wrap(err, "querying marks")
	}
	return marks, nil
}

func (repo *markRepository) SubjectCriteria(ctx context.Context, subjectID string) ([]string, error) {
	values, err := repo.coll.Distinct(ctx, "evalCriteria", bson.M{"subjectId": subjectID})
	if err != nil {
		return nil, errors.Wrap(err, "listing marked criteria")
	}
	criteria := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			criteria = append(criteria, s)
		}
	}
	sort.Strings(criteria)
	return criteria, nil
}

func (repo *markRepository) DeleteSubjectMarks(ctx context.Context, subjectID string) error {
	_, err := repo.coll.DeleteMany(ctx, bson.M{"subjectId": subjectID})
	return errors.Wrap(err, "deleting subject marks")
}
