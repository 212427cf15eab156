/*
Package workerpool runs a fixed number of workers that drain a rate-limited
queue.

Each worker loops: Get the next released item, run the handler, mark the item
done. Because Get on a slowqueue.Queue waits for a token, the pool as a whole
never processes items faster than the queue's release rate, however many
workers it has. Extra workers only help when handling an item takes longer
than one tick.

Basic usage:

	q, _ := slowqueue.New[string](2*time.Second, 0)
	pool, _ := workerpool.New[string](q, 4, func(ctx context.Context, url string) error {
		return fetch(ctx, url)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	for _, u := range urls {
		_ = q.Put(ctx, u)
	}
	_ = q.Join(ctx)
	cancel()
	<-done

Handler errors and panics are recovered, logged, counted and reported to
OnTaskComplete; they never stop the pool. A failing Source (for example a
Redis outage) stops every worker and Run returns the error.

Metrics:

With Config.Metrics enabled the pool reports its size, active workers,
completed and failed items, and handling time.
*/
package workerpool
