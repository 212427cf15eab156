// Package redisfifo implements fifo.Queue on top of a Redis list, so several
// processes can share one backlog. Rate limiting stays local to each
// process; only the items and their completion count live in Redis.
package redisfifo

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
	"github.com/vnykmshr/sloq/pkg/common/validation"
	"github.com/vnykmshr/sloq/pkg/queue/fifo"
)

// Lua scripts keep capacity checks and completion accounting atomic.
const (
	luaPush = `
local max = tonumber(ARGV[1])
if max > 0 and redis.call('LLEN', KEYS[1]) >= max then
	return 0
end
redis.call('RPUSH', KEYS[1], ARGV[2])
redis.call('INCR', KEYS[2])
return 1
`

	luaTaskDone = `
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n <= 0 then
	return -1
end
return redis.call('DECR', KEYS[1])
`
)

// Codec converts items to and from their stored form.
type Codec[T any] interface {
	Marshal(item T) ([]byte, error)
	Unmarshal(data []byte) (T, error)
}

// JSONCodec stores items as JSON documents.
type JSONCodec[T any] struct{}

// Marshal encodes item as JSON.
func (JSONCodec[T]) Marshal(item T) ([]byte, error) {
	return json.Marshal(item)
}

// Unmarshal decodes a JSON document into a T.
func (JSONCodec[T]) Unmarshal(data []byte) (T, error) {
	var item T
	err := json.Unmarshal(data, &item)
	return item, err
}

// Config holds configuration for a Redis-backed queue.
type Config[T any] struct {
	// Client is the Redis connection. Required.
	Client redis.UniversalClient

	// Key is the prefix for the queue's Redis keys. Required.
	Key string

	// MaxSize bounds the list length. <= 0 means unbounded.
	MaxSize int

	// Codec encodes items. Defaults to JSONCodec.
	Codec Codec[T]

	// BlockTimeout is the server-side BLPOP timeout per attempt. Get checks
	// ctx between attempts. Defaults to 1s.
	BlockTimeout time.Duration

	// PollInterval paces blocking Put and Join. Defaults to 50ms.
	PollInterval time.Duration

	// OpTimeout bounds introspection calls. Defaults to 1s.
	OpTimeout time.Duration

	// Logger receives warnings about failed introspection. Defaults to slog.Default().
	Logger *slog.Logger
}

// Queue is a fifo.Queue stored in Redis.
type Queue[T any] struct {
	config        Config[T]
	itemsKey      string
	unfinishedKey string
	logger        *slog.Logger

	pushScript     *redis.Script
	taskDoneScript *redis.Script
}

var _ fifo.Queue[string] = (*Queue[string])(nil)

// New creates a Redis-backed queue. It does not contact the server.
func New[T any](config Config[T]) (*Queue[T], error) {
	if err := validation.ValidateNotNil("redisfifo", "client", config.Client); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotEmpty("redisfifo", "key", config.Key); err != nil {
		return nil, err
	}
	if config.Codec == nil {
		config.Codec = JSONCodec[T]{}
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 50 * time.Millisecond
	}
	if config.OpTimeout <= 0 {
		config.OpTimeout = time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Queue[T]{
		config:         config,
		itemsKey:       config.Key + ":items",
		unfinishedKey:  config.Key + ":unfinished",
		logger:         config.Logger.With(slog.String("component", "redisfifo"), slog.String("key", config.Key)),
		pushScript:     redis.NewScript(luaPush),
		taskDoneScript: redis.NewScript(luaTaskDone),
	}, nil
}

// Put appends item, polling while the list is at MaxSize.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	data, err := q.config.Codec.Marshal(item)
	if err != nil {
		return sqerrors.NewOperationError("redisfifo", "Put", err).WithContext("encode item")
	}

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := q.push(ctx, data)
		if err != nil {
			return sqerrors.NewOperationError("redisfifo", "Put", err)
		}
		if ok {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return sqerrors.NewOperationError("redisfifo", "Put", ctx.Err())
		}
	}
}

// TryPut appends item or fails with ErrCapacityExceeded.
func (q *Queue[T]) TryPut(item T) error {
	data, err := q.config.Codec.Marshal(item)
	if err != nil {
		return sqerrors.NewOperationError("redisfifo", "TryPut", err).WithContext("encode item")
	}

	ctx, cancel := context.WithTimeout(context.Background(), q.config.OpTimeout)
	defer cancel()

	ok, err := q.push(ctx, data)
	if err != nil {
		return sqerrors.NewOperationError("redisfifo", "TryPut", err)
	}
	if !ok {
		return sqerrors.ErrCapacityExceeded
	}
	return nil
}

// Get pops the oldest item with BLPOP, retrying until an item arrives or
// ctx is done. Items that fail to decode are dropped, marked done and
// skipped. A closed client yields an error wrapping ErrClosed.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, sqerrors.NewOperationError("redisfifo", "Get", err)
		}

		res, err := q.config.Client.BLPop(ctx, q.config.BlockTimeout, q.itemsKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			switch {
			case ctx.Err() != nil:
				err = ctx.Err()
			case errors.Is(err, redis.ErrClosed):
				err = sqerrors.ErrClosed
			}
			return zero, sqerrors.NewOperationError("redisfifo", "Get", err)
		}
		// BLPOP replies with [key, value].
		item, err := q.decode("Get", res[1])
		if err != nil {
			continue
		}
		return item, nil
	}
}

// TryGet pops the oldest item or fails with ErrEmpty. An item that fails to
// decode is dropped and marked done before the error is returned.
func (q *Queue[T]) TryGet() (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.config.OpTimeout)
	defer cancel()

	data, err := q.config.Client.LPop(ctx, q.itemsKey).Result()
	if errors.Is(err, redis.Nil) {
		var zero T
		return zero, sqerrors.ErrEmpty
	}
	if err != nil {
		var zero T
		return zero, sqerrors.NewOperationError("redisfifo", "TryGet", err)
	}
	return q.decode("TryGet", data)
}

// TaskDone decrements the shared unfinished counter.
func (q *Queue[T]) TaskDone() error {
	ctx, cancel := context.WithTimeout(context.Background(), q.config.OpTimeout)
	defer cancel()

	n, err := q.taskDoneScript.Run(ctx, q.config.Client, []string{q.unfinishedKey}).Int64()
	if err != nil {
		return sqerrors.NewOperationError("redisfifo", "TaskDone", err)
	}
	if n < 0 {
		return sqerrors.ErrTaskDoneOverflow
	}
	return nil
}

// Join polls the unfinished counter until it reaches zero.
func (q *Queue[T]) Join(ctx context.Context) error {
	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		n, err := q.unfinished(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return sqerrors.NewOperationError("redisfifo", "Join", ctx.Err())
			}
			return sqerrors.NewOperationError("redisfifo", "Join", err)
		}
		if n <= 0 {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return sqerrors.NewOperationError("redisfifo", "Join", ctx.Err())
		}
	}
}

// Len returns the list length. Redis failures are logged and reported as 0.
func (q *Queue[T]) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), q.config.OpTimeout)
	defer cancel()

	n, err := q.config.Client.LLen(ctx, q.itemsKey).Result()
	if err != nil {
		q.logger.Warn("queue length unavailable", slog.Any("error", err))
		return 0
	}
	return int(n)
}

// Empty reports whether the list is empty.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Full reports whether the list has reached MaxSize.
func (q *Queue[T]) Full() bool {
	return q.config.MaxSize > 0 && q.Len() >= q.config.MaxSize
}

// Clear deletes the queue's keys, dropping pending items and completion state.
func (q *Queue[T]) Clear(ctx context.Context) error {
	if err := q.config.Client.Del(ctx, q.itemsKey, q.unfinishedKey).Err(); err != nil {
		return sqerrors.NewOperationError("redisfifo", "Clear", err)
	}
	return nil
}

func (q *Queue[T]) push(ctx context.Context, data []byte) (bool, error) {
	n, err := q.pushScript.Run(ctx, q.config.Client,
		[]string{q.itemsKey, q.unfinishedKey}, q.config.MaxSize, data).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (q *Queue[T]) unfinished(ctx context.Context) (int64, error) {
	n, err := q.config.Client.Get(ctx, q.unfinishedKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// decode unmarshals a popped item. On failure the item is already gone
// from the list, so its unfinished count is released here; otherwise Join
// would wait for a TaskDone that never comes.
func (q *Queue[T]) decode(op, data string) (T, error) {
	item, err := q.config.Codec.Unmarshal([]byte(data))
	if err == nil {
		return item, nil
	}

	q.logger.Warn("dropped undecodable item", slog.String("op", op), slog.Int("bytes", len(data)), slog.Any("error", err))
	if derr := q.TaskDone(); derr != nil {
		q.logger.Warn("release dropped item", slog.Any("error", derr))
	}
	var zero T
	return zero, sqerrors.NewOperationError("redisfifo", op, err).WithContext("decode item")
}
