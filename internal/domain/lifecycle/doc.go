// Package lifecycle owns the single application slot of the daemon.
//
// One rapp runs at a time. Starting walks a fixed validation order,
// brings required capabilities up, launches the process, settles, and
// exposes the declared interface to whoever holds control; stopping
// walks the same path backwards. A per-start monitor notices rapps
// that exit on their own and reuses the stop path, so crash cleanup
// and explicit stops cannot double-fire.
package lifecycle
