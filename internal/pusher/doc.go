// Package pusher holds combinators over pipeline.Pusher: Retry adds
// exponential backoff to any transport and Multi fans a batch out to several.
// Concrete transports live in the subpackages.
package pusher
