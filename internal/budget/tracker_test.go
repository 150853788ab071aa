package budget

import (
	"fmt"
	"math"
	"sync"
	"testing"
)

func TestTracker_AddAndTotal(t *testing.T) {
	tr := NewTracker()

	tr.Add("oracle", 1000, 500, 0.02)
	tr.Add("oracle", 2000, 1000, 0.04)
	tr.Add("sandbox", 0, 0, 0)

	oracle := tr.Component("oracle")
	if oracle.InputTokens != 3000 || oracle.OutputTokens != 1500 {
		t.Errorf("expected 3000/1500 oracle tokens, got %d/%d", oracle.InputTokens, oracle.OutputTokens)
	}
	if oracle.Calls != 2 {
		t.Errorf("expected 2 oracle calls, got %d", oracle.Calls)
	}

	total := tr.Total()
	if total.TotalTokens() != 4500 {
		t.Errorf("expected 4500 total tokens, got %d", total.TotalTokens())
	}
	if math.Abs(total.CostUSD-0.06) > 1e-9 {
		t.Errorf("expected total cost 0.06, got %v", total.CostUSD)
	}
	if total.Calls != 3 {
		t.Errorf("expected 3 total calls, got %d", total.Calls)
	}
}

func TestTracker_UnknownComponent(t *testing.T) {
	tr := NewTracker()

	if got := tr.Component("missing"); got != (Usage{}) {
		t.Errorf("expected zero usage for unknown component, got %+v", got)
	}
}

func TestTracker_ComponentsSorted(t *testing.T) {
	tr := NewTracker()
	tr.Add("writing", 1, 1, 0)
	tr.Add("oracle", 1, 1, 0)

	names := tr.Components()
	if len(names) != 2 || names[0] != "oracle" || names[1] != "writing" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestTracker_ConcurrentAdds(t *testing.T) {
	tr := NewTracker()

	const goroutines = 10
	const adds = 100
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			name := fmt.Sprintf("component-%d", id%2)
			for j := 0; j < adds; j++ {
				tr.Add(name, 10, 5, 0.001)
			}
		}(i)
	}
	wg.Wait()

	total := tr.Total()
	if total.Calls != goroutines*adds {
		t.Errorf("expected %d calls, got %d", goroutines*adds, total.Calls)
	}
	if total.TotalTokens() != int64(goroutines*adds*15) {
		t.Errorf("expected %d tokens, got %d", goroutines*adds*15, total.TotalTokens())
	}
}

func TestModelPricing_Cost(t *testing.T) {
	p := ModelPricing{InputPer1M: 3.0, OutputPer1M: 15.0}

	got := p.Cost(1_000_000, 2_000_000)
	if math.Abs(got-33.0) > 1e-9 {
		t.Errorf("expected cost 33.0, got %v", got)
	}
}
