package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/batch"
)

type batchRepository struct {
	coll *mongo.Collection
}

var _ batch.Repository = (*batchRepository)(nil)

func NewBatchRepository(db *mongo.Database) batch.Repository {
	return &batchRepository{coll: db.Collection(batchesCollection)}
}

func (repo *batchRepository) CreateBatch(ctx context.Context, b batch.Batch) (batch.Batch, error) {
	if _, err := repo.coll.InsertOne(ctx, b); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return batch.Batch{}, core.NewValidationError(errors.New("batch or roll number already exists"))
		}
		return batch.Batch{}, errors.Wrap(err, "inserting batch")
	}
	return b, nil
}

func (repo *batchRepository) findOne(ctx context.Context, filter bson.M, notFound error) (batch.Batch, error) {
	var b batch.Batch
	if err := repo.coll.FindOne(ctx, filter).Decode(&b); err != nil {
		if err == mongo.ErrNoDocuments {
			return batch.Batch{}, notFound
		}
		return batch.Batch{}, errors.Wrap(err, "finding batch")
	}
	return b, nil
}

func (repo *batchRepository) GetBatch(ctx context.Context, id string) (batch.Batch, error) {
	return repo.findOne(ctx, bson.M{"_id": id}, batch.ErrNotFound)
}

func (repo *batchRepository) QueryBatches(ctx context.Context) ([]batch.Batch, error) {
	batches := make([]batch.Batch, 0)
	cur, err := repo.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err = decodeAll(ctx, cur, err, &batches); err != nil {
		return nil, errors.Wrap(err, "querying batches")
	}
	return batches, nil
}

func (repo *batchRepository) FindStudent(ctx context.Context, rollNo string) (batch.Batch, error) {
	return repo.findOne(ctx, bson.M{"students.rollNo": rollNo}, batch.ErrStudentNotFound)
}

func (repo *batchRepository) DeleteBatch(ctx context.Context, id string) error {
	res, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting batch")
	}
	if res.DeletedCount == 0 {
		return batch.ErrNotFound
	}
	return nil
}
