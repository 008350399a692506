// Package registry holds the application catalog.
//
// Configured catalog locations (directories or glob patterns) are
// scanned for .rapp.yaml descriptors; incompatible ones are dropped at
// load time and the rest form the installed list. The runnable subset
// is recomputed on every load by asking the capability gate whether
// each application's requirements are satisfiable. An optional watcher
// reloads the catalog when descriptor files change on disk.
//
// Installed membership changes only on (re)load. Lifecycle transitions
// never mutate the catalog; they only mark which entry is running in
// the wire snapshots.
package registry
