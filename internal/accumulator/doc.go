// Package accumulator implements the per-topic batch accumulator. Each
// Accumulator owns one goroutine and one bounded mailbox; it buffers payloads
// in arrival order and flushes them downstream when either the configured size
// threshold is reached or a fixed timeout has elapsed since the first buffered
// message. Shutdown drains the mailbox and guarantees one final flush.
package accumulator
