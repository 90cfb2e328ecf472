package model

import "errors"

// Pipeline error taxonomy. Stages wrap these with context; callers match them
// with errors.Is.
var (
	ErrTemplateNotFound   = errors.New("template not found")
	ErrInvalidTemplate    = errors.New("invalid template")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrDataSource         = errors.New("elevation data source error")
	ErrWorkspace          = errors.New("workspace error")
	ErrExecutableNotFound = errors.New("simulation executable not found")
	ErrSimulationFailed   = errors.New("simulation failed")
	ErrRenderFailed       = errors.New("plot rendering failed")
)
