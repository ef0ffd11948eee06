// Package registry wires senders, per-topic accumulators and the shared sink
// together. A Registry lazily creates exactly one accumulator per topic, hands
// out typed Senders bound to it, and coordinates orderly shutdown: every
// accumulator is drained before the sink is stopped.
package registry
