package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/clotrack/core"
)

// Collections
const (
	usersCollection    = "users"
	batchesCollection  = "batches"
	subjectsCollection = "subjects"
	marksCollection    = "studentmarks"
)

// Open connects to the configured MongoDB deployment and waits for it to be ready.
func Open(ctx context.Context, conf *core.Config) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.Database.URI).SetAppName(conf.AppName))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = ping(ctx, client); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client.Database(conf.Database.Name), nil
}

// ping waits for the deployment to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, client *mongo.Client) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		if err = client.Ping(ctx, nil); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "mongo ping")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}
	return errors.Wrap(err, "mongo ping timeout")
}

func Close(db *mongo.Database) error {
	return db.Client().Disconnect(context.Background())
}

type index struct {
	collection string
	keys       bson.D
}

var uniqueIndexes = []index{
	{collection: usersCollection, keys: bson.D{{Key: "email", Value: 1}}},
	{collection: subjectsCollection, keys: bson.D{{Key: "subjectCode", Value: 1}}},
	{collection: batchesCollection, keys: bson.D{{Key: "students.rollNo", Value: 1}}},
	{collection: marksCollection, keys: bson.D{
		{Key: "subjectId", Value: 1},
		{Key: "rollNo", Value: 1},
		{Key: "instructorId", Value: 1},
		{Key: "evalCriteria", Value: 1},
	}},
}

// EnsureIndexes creates the unique indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for _, idx := range uniqueIndexes {
		model := mongo.IndexModel{Keys: idx.keys, Options: options.Index().SetUnique(true)}
		if _, err := db.Collection(idx.collection).Indexes().CreateOne(ctx, model); err != nil {
			return errors.Wrapf(err, "creating index on %s", idx.collection)
		}
	}
	return nil
}

// decodeAll decodes every document of the cursor into out (a pointer to a slice).
func decodeAll(ctx context.Context, cur *mongo.Cursor, err error, out interface{}) error {
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}
