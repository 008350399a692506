// Package httpclient builds the outbound HTTP clients used to reach
// the daemon's collaborators (the connection gateway and the
// capability server): resty on a retrying transport, a client-side
// rate limiter, and a circuit breaker per collaborator.
package httpclient
