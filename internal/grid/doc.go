// Package grid holds regular longitude/latitude sample grids and the GeoClaw
// ASCII file formats used to hand them to the simulation engine: topotype 3
// for bathymetry and dtopotype 3 for time-indexed seafloor deformation.
package grid
