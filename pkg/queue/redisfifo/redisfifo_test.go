package redisfifo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/sloq/internal/testutil"
	sqerrors "github.com/vnykmshr/sloq/pkg/common/errors"
)

type job struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func newTestQueue(t *testing.T, maxSize int) *Queue[job] {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 1})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}

	q, err := New(Config[job]{
		Client:       client,
		Key:          fmt.Sprintf("sloq_test_%d", time.Now().UnixNano()),
		MaxSize:      maxSize,
		BlockTimeout: 100 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { _ = q.Clear(context.Background()) })
	return q
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config[job]{Key: "k"}); !errors.Is(err, sqerrors.ErrInvalidArgument) {
		t.Errorf("missing client: expected ErrInvalidArgument, got %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer func() { _ = client.Close() }()
	if _, err := New(Config[job]{Client: client}); !errors.Is(err, sqerrors.ErrInvalidArgument) {
		t.Errorf("missing key: expected ErrInvalidArgument, got %v", err)
	}
}

func TestJSONCodec(t *testing.T) {
	codec := JSONCodec[job]{}
	data, err := codec.Marshal(job{ID: 7, Name: "crawl"})
	testutil.AssertNoError(t, err)

	got, err := codec.Unmarshal(data)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got, job{ID: 7, Name: "crawl"})

	if _, err := codec.Unmarshal([]byte("{")); err == nil {
		t.Error("expected decode error")
	}
}

func TestRedisQueue_Integration(t *testing.T) {
	q := newTestQueue(t, 2)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	t.Run("FIFO order and capacity", func(t *testing.T) {
		testutil.AssertNoError(t, q.Put(ctx, job{ID: 1}))
		testutil.AssertNoError(t, q.TryPut(job{ID: 2}))
		testutil.AssertEqual(t, q.Full(), true)
		testutil.AssertEqual(t, q.Len(), 2)

		if err := q.TryPut(job{ID: 3}); !errors.Is(err, sqerrors.ErrCapacityExceeded) {
			t.Fatalf("expected ErrCapacityExceeded, got %v", err)
		}

		first, err := q.Get(ctx)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, first.ID, 1)

		second, err := q.TryGet()
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, second.ID, 2)
		testutil.AssertEqual(t, q.Empty(), true)

		if _, err := q.TryGet(); !errors.Is(err, sqerrors.ErrEmpty) {
			t.Fatalf("expected ErrEmpty, got %v", err)
		}
	})

	t.Run("TaskDone and Join", func(t *testing.T) {
		testutil.AssertNoError(t, q.TaskDone())
		testutil.AssertNoError(t, q.TaskDone())
		testutil.AssertNoError(t, q.Join(ctx))

		if err := q.TaskDone(); !errors.Is(err, sqerrors.ErrTaskDoneOverflow) {
			t.Fatalf("expected ErrTaskDoneOverflow, got %v", err)
		}
	})

	t.Run("Get honours context", func(t *testing.T) {
		short, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
		defer cancel()

		if _, err := q.Get(short); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestRedisQueue_UndecodableItems(t *testing.T) {
	q := newTestQueue(t, 0)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	// A writer with a different item type shares the same keys.
	raw, err := New(Config[string]{Client: q.config.Client, Key: q.config.Key})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, raw.Put(ctx, "not a job"))
	testutil.AssertNoError(t, q.Put(ctx, job{ID: 9}))
	testutil.AssertNoError(t, raw.Put(ctx, "also not a job"))

	got, err := q.Get(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.ID, 9)
	testutil.AssertNoError(t, q.TaskDone())

	if _, err := q.TryGet(); err == nil {
		t.Fatal("expected decode error")
	}
	testutil.AssertEqual(t, q.Empty(), true)

	// Both dropped items were released, so nothing is left unfinished.
	testutil.AssertNoError(t, q.Join(ctx))
}

func TestGetOnClosedClient(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	testutil.AssertNoError(t, client.Close())

	q, err := New(Config[job]{Client: client, Key: "sloq_closed"})
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	if _, err := q.Get(ctx); !errors.Is(err, sqerrors.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
