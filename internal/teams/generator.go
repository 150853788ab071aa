package teams

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/and-other-tales/juno/internal/logger"
	"github.com/and-other-tales/juno/internal/metrics"
	"github.com/and-other-tales/juno/internal/oracle"
	"github.com/and-other-tales/juno/internal/router"
	"github.com/and-other-tales/juno/internal/state"
)

// Generator produces the task for each cycle and decides when the run ends.
type Generator struct {
	Oracle oracle.Oracle
	Log    logger.Logger

	// AutoGenerate enables oracle-driven task creation. When off, the run
	// ends as soon as no user-supplied task is pending.
	AutoGenerate bool

	// Categories rotate per generated task.
	Categories []string

	// MaxCycles ends the run once the cycle counter reaches it. Zero means
	// unbounded.
	MaxCycles int

	// Targets seed the run's performance targets on the first cycle.
	Targets map[string]float64

	// StartNode is where a freshly stamped task is routed. Defaults to the
	// research team.
	StartNode string
}

// Node returns the task generator as a routing node. It advances the cycle
// counter, ends the run at the terminal conditions, and otherwise stamps a
// new task and routes to the research team.
func (g *Generator) Node() router.NodeFunc {
	return func(ctx context.Context, st *state.RunState) (*state.RunState, error) {
		next := st.Clone()
		next.CycleCount++

		if g.MaxCycles > 0 && next.CycleCount > g.MaxCycles {
			next.AppendNotice("RUN COMPLETE: reached maximum of %d cycles", g.MaxCycles)
			next.Next = state.NodeEnd
			return next, nil
		}

		if len(next.Targets) == 0 && len(g.Targets) > 0 {
			for name, value := range g.Targets {
				next.Targets = append(next.Targets, &metrics.PerformanceTarget{
					MetricName:  name,
					TargetValue: value,
					Description: fmt.Sprintf("keep %s at or above %.2f", name, value),
				})
			}
		}

		if next.CurrentTask == "" {
			if !g.AutoGenerate {
				next.AppendNotice("RUN COMPLETE: auto-generation disabled and no task pending")
				next.Next = state.NodeEnd
				return next, nil
			}
			next.CurrentTask = g.generate(ctx, next.TaskGenerationCount)
			next.CurrentTaskID = uuid.NewString()
			next.TaskGenerationCount++
		} else if next.CurrentTaskID == "" {
			next.CurrentTaskID = uuid.NewString()
		}

		g.Log.CycleStart(next.CycleCount, next.CurrentTask)
		next.Next = g.StartNode
		if next.Next == "" {
			next.Next = state.NodeResearchTeam
		}
		return next, nil
	}
}

// generate asks the oracle for a task in the next category, falling back to
// a fixed task template when the oracle fails. Task generation never ends
// the run.
func (g *Generator) generate(ctx context.Context, generation int) string {
	category := "research"
	if len(g.Categories) > 0 {
		category = g.Categories[generation%len(g.Categories)]
	}
	task, err := g.Oracle.GenerateTask(ctx, category)
	if err != nil {
		g.Log.Warnf("task generation failed (%v), using default %s task", err, category)
		return fmt.Sprintf("Research and write a summary of recent developments in %s.", category)
	}
	return task
}
