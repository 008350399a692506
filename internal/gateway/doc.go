// Package gateway is the client for the local connection gateway, the
// process that owns network-wide visibility of this robot's endpoints.
//
// Endpoint exposure and withdrawal travel as flip batches over the
// gateway's HTTP API. Expose swallows transport failures with a
// warning, which keeps lifecycle transitions moving while the gateway
// restarts or the daemon itself is shutting down mid-stop. ExposeStrict
// propagates them and is used on the invitation path, where control
// must not be granted without a visible control surface.
package gateway
