// Package main is the topicbatch executable.
//
// Run locally with the built-in demo producer:
//
//	go run ./cmd/topicbatch run
//
// It sends a JSON event to topic1 every 200ms, batches them five at a time
// (or every second), and pushes each batch to a simulated downstream. Press
// Ctrl-C to drain: the final partial batch is flushed before "gracefully
// stopped" is logged. Configure with -config config.yaml or TOPICBATCH_*
// environment variables, e.g. TOPICBATCH_SINK_PUSHERS=log,archive.
package main

import "github.com/JakeFAU/topicbatch/cmd"

func main() {
	cmd.Execute()
}
