// Package topo provides the content-addressed bathymetry cache. Grids are
// keyed by extent, dataset and coarsening; a file written for a key is never
// regenerated or invalidated.
package topo
