// Package asyncx provides the small set of concurrency primitives the queue
// engine builds on, all with first-class context support.
//
// # Fan-out
//
// [AllSettled] runs a set of functions concurrently and always returns one
// [Result] per function, in the order given, so callers can inspect
// individual outcomes. The engine uses it to read the stats of every queue at
// once without letting one unreachable queue hide the others.
//
//	results := asyncx.AllSettled(ctx,
//	    func(ctx context.Context) (jobx.Stats, error) { return email.Stats(ctx) },
//	    func(ctx context.Context) (jobx.Stats, error) { return report.Stats(ctx) },
//	)
//
// # Retry
//
// [RetryWithBackoff] calls a function up to n times, doubling the wait after
// every failure. It respects context cancellation between retries.
//
//	_, err := asyncx.RetryWithBackoff(ctx, 5, 200*time.Millisecond, func(ctx context.Context) (string, error) {
//	    return rdb.Ping(ctx).Result()
//	})
//
// # Timeout
//
// [WithTimeout] runs a function with a deadline and returns
// context.DeadlineExceeded as soon as it passes. The function is not
// preempted: it keeps running and only observes its context being cancelled.
package asyncx
