// Package pipeline turns a simulate request into a finished run. It drives
// the run through its lifecycle (allocated, configured, simulating, plotting,
// indexed) by calling the workspace, topography cache, deformation generator,
// engine and renderer in order, and records every transition in the run
// ledger. A failure at any stage marks the run failed and is returned to the
// caller; nothing is retried.
package pipeline
