// Package ratelimit throttles requests in memory on a single instance.
//
// Two limiters live here:
//   - Window, a fixed-window counter keyed by client and operation, used by
//     the mutation endpoints (a handful of writes per minute per client).
//   - IPLimiter, a per-IP token bucket used as site-wide middleware in front
//     of every route.
//
// Neither is shared between instances. Distributed floods need upstream
// filtering; these exist to bound resource use and to give a single log line
// and a metric per offender.
package ratelimit
