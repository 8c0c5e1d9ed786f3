// Package reliability holds the retry policies and circuit breaker used by the
// bridges.
//
// Retry budgets are always bounded. A component that exhausts its budget does
// not keep trying; it reports the failure so the lifecycle coordinator can
// decide to shut the process down.
//
//	policy := reliability.NewExponentialBackoff(2*time.Second, time.Minute, 2.0, 10)
//	err := reliability.RetryNotify(ctx, policy, connect, func(attempt int, err error, next time.Duration) {
//	    logger.Warn("connect failed", "attempt", attempt, "error", err, "nextRetryIn", next)
//	})
package reliability
