package metrics

import (
	"fmt"
	"time"
)

// ResourceConfig describes the agent capacity of one team. CurrentAgents is
// mutated by exactly one path: an applied ResourceChangeRequest.
type ResourceConfig struct {
	TeamName      string
	CurrentAgents int
	MinAgents     int
	MaxAgents     int
	ScalingFactor float64 // How much each additional agent improves throughput
}

// NewResourceConfig creates a resource configuration with the standard
// single-agent allocation.
func NewResourceConfig(team string, minAgents, maxAgents int) *ResourceConfig {
	return &ResourceConfig{
		TeamName:      team,
		CurrentAgents: minAgents,
		MinAgents:     minAgents,
		MaxAgents:     maxAgents,
		ScalingFactor: 1.0,
	}
}

// SetAgents updates the current agent count, holding the min <= current <= max
// invariant by clamping.
func (c *ResourceConfig) SetAgents(n int) {
	if n < c.MinAgents {
		n = c.MinAgents
	}
	if n > c.MaxAgents {
		n = c.MaxAgents
	}
	c.CurrentAgents = n
}

// AtCapacity reports whether the team cannot take more agents.
func (c *ResourceConfig) AtCapacity() bool {
	return c.CurrentAgents >= c.MaxAgents
}

// Clone returns a copy of the resource configuration.
func (c *ResourceConfig) Clone() *ResourceConfig {
	cp := *c
	return &cp
}

// ResourceChangeRequest asks for a team's agent count to change. It is
// created by the workload manager and consumed exactly once by the
// improvement team when the change is applied.
type ResourceChangeRequest struct {
	Team              string
	CurrentAgents     int
	RecommendedAgents int
	Reason            string
	Timestamp         time.Time
}

func (r *ResourceChangeRequest) String() string {
	return fmt.Sprintf("team %s: %d -> %d agents (%s)",
		r.Team, r.CurrentAgents, r.RecommendedAgents, r.Reason)
}

// Clone returns a copy of the request.
func (r *ResourceChangeRequest) Clone() *ResourceChangeRequest {
	c := *r
	return &c
}
