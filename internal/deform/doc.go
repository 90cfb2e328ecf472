// Package deform builds seafloor deformation grids from a single rectangular
// fault using the Okada (1985) elastic half-space dislocation model.
package deform
