// Package ratelimit provides per-client request rate limiting.
//
// Two layers, both single-instance and in-memory:
//
//   - [Window]: a fixed-window governor for the content API. Each
//     client identity gets a counter that resets when its window
//     elapses (evaluated lazily on the next check, no sweep timer).
//     Denials report when the window resets so callers can set a
//     retry-after hint. The number of tracked identities is bounded;
//     past the bound, the least-recently-seen identity is evicted so
//     rotating source addresses cannot grow memory without limit.
//
//   - [Burst]: a token-bucket per-IP limiter wrapped around the whole
//     listener, for connection/goroutine exhaustion protection.
//
// State is process-local: a restart or horizontal scale-out resets all
// counters. Acceptable for abuse mitigation, not for precise quota
// enforcement - for those, use upstream WAF or CDN-level limiting.
package ratelimit
