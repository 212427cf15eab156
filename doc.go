/*
Package sloq provides a blocking work queue whose consumers are released at a
bounded long-run rate.

Rate Limiting (pkg/ratelimit):
  - tokenbucket: Blocking token bucket with fractional accrual and seedable balance

Queues (pkg/queue, pkg/slowqueue):
  - fifo: FIFO interface with task tracking and an in-memory implementation
  - redisfifo: Redis list backed FIFO
  - slowqueue: FIFO whose Get waits for one token per released item

Task Scheduling (pkg/scheduling):
  - workerpool: Workers draining a rate-limited queue
  - reseed: Cron-scheduled re-seeding of a queue's token balance

Example usage:

	import (
		"github.com/vnykmshr/sloq/pkg/scheduling/workerpool"
		"github.com/vnykmshr/sloq/pkg/slowqueue"
	)

	q, _ := slowqueue.New[string](time.Second, 0) // one release per second
	q.ResetTokens(3)                               // first three go out at once

	for _, job := range jobs {
		q.Put(ctx, job)
	}

	pool, _ := workerpool.New[string](q, 4, handle)
	go pool.Run(ctx)
	q.Join(ctx)

Metrics for buckets, queues and pools are exported through Prometheus when
enabled in their Config (see pkg/metrics).
*/
package sloq
