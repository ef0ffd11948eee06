// Package pipeline defines the values that travel through the batching
// pipeline: messages accepted from producers, the batches accumulators flush,
// the Pusher contract implemented by downstream transports, and the error
// taxonomy shared by senders, accumulators and the sink.
package pipeline
