// Package capability provides the client for the capability server,
// the collaborator that owns activation of the named dependencies an
// application may require. The daemon never inspects capability state
// directly; it only asks the server to start or stop by name and to
// check whether a requirement list is satisfiable.
package capability
