package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/clotrack/core/batch"
)

type batchRepository struct {
	db *batchTable
}

func NewBatchRepository(db *DB) batch.Repository {
	return &batchRepository{db: db.batch}
}

func copyBatch(b batch.Batch) batch.Batch {
	b.Students = append([]batch.Student(nil), b.Students...)
	return b
}

func (repo *batchRepository) CreateBatch(_ context.Context, b batch.Batch) (batch.Batch, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cp := copyBatch(b)
	repo.db.table[b.ID] = &cp
	return b, nil
}

func (repo *batchRepository) GetBatch(_ context.Context, id string) (batch.Batch, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if b, ok := repo.db.table[id]; ok {
		return copyBatch(*b), nil
	}
	return batch.Batch{}, batch.ErrNotFound
}

func (repo *batchRepository) QueryBatches(_ context.Context) ([]batch.Batch, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	batches := make([]batch.Batch, 0, len(repo.db.table))
	for _, b := range repo.db.table {
		batches = append(batches, copyBatch(*b))
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

func (repo *batchRepository) FindStudent(_ context.Context, rollNo string) (batch.Batch, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, b := range repo.db.table {
		for _, s := range b.Students {
			if s.RollNo == rollNo {
				return copyBatch(*b), nil
			}
		}
	}
	return batch.Batch{}, batch.ErrStudentNotFound
}

func (repo *batchRepository) DeleteBatch(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	if _, ok := repo.db.table[id]; !ok {
		return batch.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
