package model

import "time"

// Run lifecycle states.
const (
	StateAllocated  = "allocated"
	StateConfigured = "configured"
	StateSimulating = "simulating"
	StatePlotting   = "plotting"
	StateIndexed    = "indexed"
	StateFailed     = "failed"
)

// States lists every lifecycle state in pipeline order.
var States = []string{
	StateAllocated,
	StateConfigured,
	StateSimulating,
	StatePlotting,
	StateIndexed,
	StateFailed,
}

// validTransitions maps each state to the set of states it may transition to.
var validTransitions = map[string]map[string]bool{
	StateAllocated: {
		StateConfigured: true,
		StateFailed:     true,
	},
	StateConfigured: {
		StateSimulating: true,
		StateFailed:     true,
	},
	StateSimulating: {
		StatePlotting: true,
		StateFailed:   true,
	},
	StatePlotting: {
		StateIndexed: true,
		StateFailed:  true,
	},
}

// ValidTransition reports whether transitioning from one state to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether no further transitions are possible from state.
func IsTerminal(state string) bool {
	return state == StateIndexed || state == StateFailed
}

// Run is one simulate request and the workspace it owns.
type Run struct {
	RunID      string     `json:"run_id"`
	TemplateID string     `json:"template"`
	Extent     Extent     `json:"extent"`
	FaultLon   float64    `json:"lon"`
	FaultLat   float64    `json:"lat"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	RunDir     string     `json:"run_dir,omitempty"`
	TopoPath   string     `json:"topo_path,omitempty"`
	DtopoPath  string     `json:"dtopo_path,omitempty"`
	FrameCount *int       `json:"frame_count,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Frame is one rendered simulation output. T is nil when the simulation time
// of the frame is unavailable.
type Frame struct {
	Frame int      `json:"frame"`
	T     *float64 `json:"t"`
}
