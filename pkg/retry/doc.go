// Package retry runs operations with bounded attempts and backoff.
//
// Only typed errors whose kind is retryable (transient network, rate limit,
// server) are retried by default. When the budget is spent Do returns an
// *ExhaustedError wrapping the last failure, so callers can still inspect its
// kind.
package retry
