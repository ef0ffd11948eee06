// Package api hosts the HTTP admin surface of the pipeline. Routes:
//   - GET /healthz and /readyz for Kubernetes probes; readyz turns 503 once
//     shutdown has begun.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for sink counters and per-topic accumulator states.
//   - POST /v1/topics/{topic}/events to publish the raw request body as one
//     message on a topic. With a rate limiter configured, a topic that runs
//     out of tokens gets 429.
package api
