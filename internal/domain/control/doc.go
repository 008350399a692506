// Package control arbitrates remote control of the robot.
//
// A remote gains control through an invitation and gives it back by
// cancelling its own grant; at most one remote holds control at a
// time, and a permitted invite supplants a standing grant. The arbiter
// also owns the application namespace, resolved at grant time from the
// request, the gateway identity, or a fixed default leaf.
package control
