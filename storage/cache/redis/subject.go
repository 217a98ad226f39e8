// Package rediscache caches hot reads of the database repositories in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/subject"
)

// NewClient returns a client of the configured Redis server.
func NewClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Cache.RedisAddr,
		Password: conf.Cache.RedisPassword,
		DB:       conf.Cache.RedisDB,
	})
}

// subjectRepository is a read-through cache of a subject.Repository.
// Cache failures are logged and never fail a read.
type subjectRepository struct {
	subject.Repository
	client *redis.Client
	ttl    time.Duration
	logger core.Logger
}

var _ subject.Repository = (*subjectRepository)(nil)

func NewSubjectRepository(repo subject.Repository, client *redis.Client, ttl time.Duration, logger core.Logger) subject.Repository {
	return &subjectRepository{Repository: repo, client: client, ttl: ttl, logger: logger}
}

// genKey counts the evictions; a write-back is dropped if it moved since the read it caches.
const genKey = "subject:gen"

var errStaleRead = errors.New("subject cache evicted since read")

func idKey(id string) string     { return "subject:id:" + id }
func codeKey(code string) string { return "subject:code:" + code }

func (c *subjectRepository) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, genKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return gen, err
}

func (c *subjectRepository) GetSubject(ctx context.Context, filter subject.GetFilter) (subject.Subject, error) {
	var key string
	switch {
	case filter.ID != "":
		key = idKey(filter.ID)
	case filter.Code != "":
		key = codeKey(filter.Code)
	default:
		return c.Repository.GetSubject(ctx, filter)
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var s subject.Subject
		if err = json.Unmarshal(data, &s); err == nil {
			return s, nil
		}
	}
	if err != redis.Nil {
		c.logger.Warn("reading subject cache", errors.Wrap(err, key))
	}

	// read before loading, so that an eviction racing the load is seen
	gen, genErr := c.generation(ctx)
	s, err := c.Repository.GetSubject(ctx, filter)
	if err != nil {
		return subject.Subject{}, err
	}
	if genErr == nil {
		c.set(ctx, s, gen)
	}
	return s, nil
}

// set caches s unless the cache was evicted after generation gen was read.
func (c *subjectRepository) set(ctx context.Context, s subject.Subject, gen int64) {
	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Warn("encoding subject cache", err)
		return
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, idKey(s.ID), data, c.ttl)
			pipe.Set(ctx, codeKey(s.Code), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch err {
	case nil, errStaleRead, redis.TxFailedErr:
	default:
		c.logger.Warn("writing subject cache", errors.Wrap(err, s.ID))
	}
}

func (c *subjectRepository) evict(ctx context.Context, keys ...string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		c.logger.Warn("evicting subject cache", errors.Wrapf(err, "%v", keys))
	}
}

func (c *subjectRepository) UpdateSubject(ctx context.Context, s subject.Subject) (subject.Subject, error) {
	s, err := c.Repository.UpdateSubject(ctx, s)
	if err != nil {
		return subject.Subject{}, err
	}
	c.evict(ctx, idKey(s.ID), codeKey(s.Code))
	return s, nil
}

func (c *subjectRepository) DeleteSubject(ctx context.Context, id string) error {
	s, err := c.Repository.GetSubject(ctx, subject.GetFilter{ID: id})
	if err != nil && !core.IsNotFound(err) {
		return err
	}
	if err = c.Repository.DeleteSubject(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, idKey(id), codeKey(s.Code))
	return nil
}
