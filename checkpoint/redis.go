package checkpoint

import (
	"context"
	"errors"
	"time"

	quizai "github.com/lpf0528/quiz-ai"
	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "quizai:checkpoint:"

// Redis stores the checkpoints of a thread in one list.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ quizai.Checkpointer = (*Redis)(nil)

// RedisOption configures Redis.
type RedisOption func(*Redis)

// WithKeyPrefix sets the key prefix. Default is "quizai:checkpoint:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// WithTTL expires a thread when it has not been saved for ttl. Zero keeps
// threads forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// NewRedis creates a Redis checkpointer on an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(threadID string) string {
	return r.prefix + threadID
}

func (r *Redis) Save(ctx context.Context, cp *quizai.Checkpoint) error {
	raw, err := encode(cp)
	if err != nil {
		return err
	}

	key := r.key(cp.ThreadID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return goerr.Wrap(err, "failed to push checkpoint", goerr.V("key", key))
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, threadID string) (*quizai.Checkpoint, error) {
	key := r.key(threadID)
	raw, err := r.client.LIndex(ctx, key, -1).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(threadID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read checkpoint", goerr.V("key", key))
	}
	return decode(raw, threadID)
}

func (r *Redis) List(ctx context.Context, threadID string) ([]*quizai.Checkpoint, error) {
	key := r.key(threadID)
	items, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read checkpoints", goerr.V("key", key))
	}

	out := make([]*quizai.Checkpoint, 0, len(items))
	for _, item := range items {
		cp, err := decode([]byte(item), threadID)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (r *Redis) Delete(ctx context.Context, threadID string) error {
	key := r.key(threadID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return goerr.Wrap(err, "failed to delete checkpoints", goerr.V("key", key))
	}
	return nil
}
