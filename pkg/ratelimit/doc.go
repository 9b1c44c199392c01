// Package ratelimit enforces per-tier call ceilings.
//
// Demo and free callers get a daily quota; paid callers get a per-second
// ceiling. Both are fixed windows counted per key:
//
//	tollgate:rl:<tier>:<keyID>:<windowStart>
//
// RedisLimiter shares counters across instances with a single Lua script
// per check. MemoryLimiter is for tests and single-instance dev runs.
//
// A denial is a Result with Allowed=false. An error means the counter store
// could not be reached, and callers must reject the request.
package ratelimit
