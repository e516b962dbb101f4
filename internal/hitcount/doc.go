// Package hitcount counts requests per key within fixed time windows.
//
// The API layer injects a Counter and increments "<path>-<ip>" on every chat
// request. Counts restart when a key's window elapses, so no periodic job is
// needed to clear them.
//
//   - MemoryCounter: in-process, size-bounded, least recently used key evicted first
//   - RedisCounter: shared across instances, INCR + EXPIRE per window bucket
package hitcount
