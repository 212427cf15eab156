/*
Package ratelimit groups the rate limiting primitives used by sloq queues.

  - tokenbucket: Token bucket that accrues one token per tick

Unlike a request limiter, a tokenbucket.TokenBucket has no burst cap. Its
balance may be seeded to any value, including a negative one, and blocking
takes sleep until enough time has accrued:

	tb, _ := tokenbucket.New(time.Second)
	tb.Reset(-2)   // first token available after 3s
	_ = tb.Take(1) // blocks

Each sleep lasts the fraction of a token still missing, read as seconds.
With a tick shorter than a second one sleep accrues several tokens.

All buckets are safe for concurrent use. Blocking takes hold the bucket's lock
while sleeping, so waiters are served one at a time.
*/
package ratelimit
