// Package ws serves the daemon's WebSocket feeds.
//
// Both application list topics are latched: the hub retains the last
// message per topic and replays it on subscribe, so clients never have
// to poll for the state they missed.
package ws
