package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/subject"
	logsvc "github.com/trezcool/clotrack/services/logger"
	inmemdb "github.com/trezcool/clotrack/storage/database/inmem"
)

// An unreachable server must degrade the cache to its underlying repository.
func TestSubjectRepository_Unavailable(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = client.Close() }()

	logger := logsvc.NewSilentLogger(core.NewTestConfig())
	repo := NewSubjectRepository(inmemdb.NewSubjectRepository(inmemdb.Open()), client, time.Minute, logger)

	s, err := repo.CreateSubject(ctx, subject.Subject{ID: "s1", Code: "CS101", Name: "Algorithms"})
	if err != nil {
		t.Fatalf("CreateSubject() error = %v", err)
	}

	got, err := repo.GetSubject(ctx, subject.GetFilter{Code: "CS101"})
	if err != nil {
		t.Fatalf("GetSubject() error = %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("GetSubject() = %s; want %s", got.ID, s.ID)
	}

	s.Name = "Advanced Algorithms"
	if _, err = repo.UpdateSubject(ctx, s); err != nil {
		t.Fatalf("UpdateSubject() error = %v", err)
	}
	if got, _ = repo.GetSubject(ctx, subject.GetFilter{ID: "s1"}); got.Name != s.Name {
		t.Errorf("Name = %s; want %s", got.Name, s.Name)
	}

	if err = repo.DeleteSubject(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSubject() error = %v", err)
	}
	if _, err = repo.GetSubject(ctx, subject.GetFilter{ID: "s1"}); !core.IsNotFound(err) {
		t.Errorf("GetSubject() error = %v; want not found", err)
	}
}

// racingRepo runs onGet once, right after a read, like a writer landing mid cache fill.
type racingRepo struct {
	subject.Repository
	onGet func()
}

func (r *racingRepo) GetSubject(ctx context.Context, filter subject.GetFilter) (subject.Subject, error) {
	s, err := r.Repository.GetSubject(ctx, filter)
	if hook := r.onGet; hook != nil {
		r.onGet = nil
		hook()
	}
	return s, err
}

func newTestCache(t *testing.T) (*miniredis.Miniredis, *racingRepo, subject.Repository) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := &racingRepo{Repository: inmemdb.NewSubjectRepository(inmemdb.Open())}
	logger := logsvc.NewSilentLogger(core.NewTestConfig())
	return srv, db, NewSubjectRepository(db, client, time.Minute, logger)
}

func TestSubjectRepository_ReadThrough(t *testing.T) {
	ctx := context.Background()
	srv, db, repo := newTestCache(t)

	s, err := repo.CreateSubject(ctx, subject.Subject{ID: "s1", Code: "CS101", Name: "Algorithms"})
	if err != nil {
		t.Fatalf("CreateSubject() error = %v", err)
	}
	if _, err = repo.GetSubject(ctx, subject.GetFilter{ID: "s1"}); err != nil {
		t.Fatalf("GetSubject() error = %v", err)
	}
	if !srv.Exists(idKey("s1")) || !srv.Exists(codeKey("CS101")) {
		t.Fatal("subject not cached after a read")
	}

	// bypass the cache: reads keep being served from it
	renamed := s
	renamed.Name = "Renamed"
	if _, err = db.UpdateSubject(ctx, renamed); err != nil {
		t.Fatalf("UpdateSubject() error = %v", err)
	}
	if got, _ := repo.GetSubject(ctx, subject.GetFilter{Code: "CS101"}); got.Name != "Algorithms" {
		t.Errorf("Name = %s; want cached Algorithms", got.Name)
	}

	if _, err = repo.UpdateSubject(ctx, renamed); err != nil {
		t.Fatalf("UpdateSubject() error = %v", err)
	}
	if srv.Exists(idKey("s1")) || srv.Exists(codeKey("CS101")) {
		t.Error("subject still cached after an update")
	}
	if got, _ := repo.GetSubject(ctx, subject.GetFilter{ID: "s1"}); got.Name != "Renamed" {
		t.Errorf("Name = %s; want Renamed", got.Name)
	}
}

func TestSubjectRepository_EvictedDuringFill(t *testing.T) {
	ctx := context.Background()
	srv, db, repo := newTestCache(t)

	s, err := repo.CreateSubject(ctx, subject.Subject{ID: "s1", Code: "CS101", Name: "Algorithms"})
	if err != nil {
		t.Fatalf("CreateSubject() error = %v", err)
	}
	updated := s
	updated.Name = "Advanced Algorithms"
	db.onGet = func() {
		if _, err := repo.UpdateSubject(ctx, updated); err != nil {
			t.Errorf("UpdateSubject() error = %v", err)
		}
	}

	got, err := repo.GetSubject(ctx, subject.GetFilter{ID: "s1"})
	if err != nil {
		t.Fatalf("GetSubject() error = %v", err)
	}
	if got.Name != "Algorithms" {
		t.Errorf("Name = %s; want the value read before the update", got.Name)
	}
	if srv.Exists(idKey("s1")) || srv.Exists(codeKey("CS101")) {
		t.Fatal("value read before the update was cached")
	}

	for _, filter := range []subject.GetFilter{{ID: "s1"}, {Code: "CS101"}} {
		if got, _ = repo.GetSubject(ctx, filter); got.Name != updated.Name {
			t.Errorf("GetSubject(%+v) Name = %s; want %s", filter, got.Name, updated.Name)
		}
	}
}
