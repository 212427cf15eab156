/*
Package scheduling provides the consumers and schedulers that sit around a
rate-limited queue.

  - workerpool: Fixed set of workers draining a queue until cancelled
  - reseed: Cron-driven re-seeding of a queue's token balance

Worker Pool:

	pool, _ := workerpool.New[Job](q, 4, func(ctx context.Context, j Job) error {
		return j.Do(ctx)
	})
	go pool.Run(ctx)
	q.Join(ctx)

Reseeding:

	r, _ := reseed.New(q)
	r.Schedule("0 9 * * 1-5", 20) // weekday mornings open with a burst of 20
	r.Start()
	defer r.Stop()
*/
package scheduling
