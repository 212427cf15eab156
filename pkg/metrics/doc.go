// Package metrics provides Prometheus instrumentation for sloq components.
//
// # Overview
//
// The package defines one Registry holding the collectors for:
//   - Token buckets (tokens requested, taken, refused, time spent in take, balance, resets)
//   - Rate-limited queues (puts, releases, release wait, depth)
//   - Worker pools (size, active workers, completed and failed items, handling time)
//
// # Quick Start
//
// Enable metrics through the metrics-enabled constructors:
//
//	tb, _ := tokenbucket.New(100 * time.Millisecond)
//	bucket := tokenbucket.NewWithMetrics(tb, "api_calls", metrics.DefaultConfig())
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation. Components configured with
// the same registerer share a single Registry obtained through ForConfig:
//
//	reg := prometheus.NewRegistry()
//	cfg := metrics.Config{Enabled: true, Registry: reg}
//
// # Available Metrics
//
//   - sloq_tokenbucket_take_requests_total
//   - sloq_tokenbucket_take_allowed_total
//   - sloq_tokenbucket_take_denied_total
//   - sloq_tokenbucket_take_wait_duration_seconds
//   - sloq_tokenbucket_tokens
//   - sloq_tokenbucket_resets_total
//   - sloq_queue_puts_total
//   - sloq_queue_releases_total
//   - sloq_queue_release_wait_seconds
//   - sloq_queue_depth
//   - sloq_workerpool_size
//   - sloq_workerpool_active_workers
//   - sloq_workerpool_tasks_completed_total
//   - sloq_workerpool_tasks_failed_total
//   - sloq_workerpool_task_duration_seconds
package metrics
