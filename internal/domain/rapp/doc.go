// Package rapp defines the application unit this daemon manages: the
// on-disk descriptor (.rapp.yaml) and the exec-backed instance that
// implements the start/stop contract consumed by the lifecycle
// controller.
//
// An instance start yields the five endpoint sets (subscribers,
// publishers, services, action clients, action servers) resolved
// against the effective namespace; a stop yields the sets that were in
// use so the caller can withdraw their exposure even when termination
// misbehaves.
package rapp
