package budget

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCreateInheritsFromParent(t *testing.T) {
	tr := NewTracker()
	tr.Create("parent", Opts{MaxTokens: IntLimit(1000), MaxCost: CostLimit(2.5)}, "")

	child := tr.Create("child", Opts{}, "parent")
	if child.MaxTokens == nil || *child.MaxTokens != 1000 {
		t.Errorf("child did not inherit max tokens: %+v", child.MaxTokens)
	}
	if child.MaxCost == nil || *child.MaxCost != 2.5 {
		t.Errorf("child did not inherit max cost")
	}

	// Explicit opts win over inheritance.
	tight := tr.Create("tight", Opts{MaxTokens: IntLimit(10)}, "parent")
	if *tight.MaxTokens != 10 {
		t.Errorf("explicit limit ignored")
	}
}

func TestCreateSubagentTakesMin(t *testing.T) {
	tr := NewTracker()
	tr.Create("parent", Opts{MaxTokens: IntLimit(1000)}, "")

	// Opts may tighten.
	c1 := tr.CreateSubagent("parent", "c1", Opts{MaxTokens: IntLimit(100)})
	if *c1.MaxTokens != 100 {
		t.Errorf("tightening failed: %d", *c1.MaxTokens)
	}

	// Opts may not loosen.
	c2 := tr.CreateSubagent("parent", "c2", Opts{MaxTokens: IntLimit(5000)})
	if *c2.MaxTokens != 1000 {
		t.Errorf("loosening allowed: %d", *c2.MaxTokens)
	}

	// Unlimited parent, limited opts.
	tr.Create("free", Opts{}, "")
	c3 := tr.CreateSubagent("free", "c3", Opts{MaxTokens: IntLimit(7)})
	if *c3.MaxTokens != 7 {
		t.Errorf("limit against unlimited parent: %v", c3.MaxTokens)
	}

	// Both unlimited stays unlimited.
	c4 := tr.CreateSubagent("free", "c4", Opts{})
	if c4.MaxTokens != nil {
		t.Errorf("unlimited not preserved")
	}
}

func TestBudgetInheritanceProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("child.max_tokens = min(parent, opts) with absence as unlimited", prop.ForAll(
		func(parentLimit, optLimit int, parentSet, optSet bool) bool {
			tr := NewTracker()
			parentOpts := Opts{}
			if parentSet {
				parentOpts.MaxTokens = IntLimit(parentLimit)
			}
			tr.Create("p", parentOpts, "")

			childOpts := Opts{}
			if optSet {
				childOpts.MaxTokens = IntLimit(optLimit)
			}
			child := tr.CreateSubagent("p", "c", childOpts)

			switch {
			case !parentSet && !optSet:
				return child.MaxTokens == nil
			case !parentSet:
				return child.MaxTokens != nil && *child.MaxTokens == optLimit
			case !optSet:
				return child.MaxTokens != nil && *child.MaxTokens == parentLimit
			default:
				want := parentLimit
				if optLimit < want {
					want = optLimit
				}
				return child.MaxTokens != nil && *child.MaxTokens == want
			}
		},
		gen.IntRange(0, 1<<20),
		gen.IntRange(0, 1<<20),
		gen.Bool(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestRecordResponseUsage(t *testing.T) {
	tr := NewTracker()
	tr.Create("r", Opts{}, "")

	tr.RecordResponseUsage("r", ResponseUsage{TotalTokens: 50, Cost: 0.1})
	tr.RecordResponseUsage("r", ResponseUsage{Input: 10, Output: 5, Cost: 0.05})

	b := tr.Get("r")
	if b.UsedTokens != 65 {
		t.Errorf("used tokens = %d, want 65", b.UsedTokens)
	}
	if b.UsedCost != 0.15000000000000002 && b.UsedCost < 0.149 {
		t.Errorf("used cost = %f", b.UsedCost)
	}
}

func TestChildLifecycleFoldsUsage(t *testing.T) {
	tr := NewTracker()
	tr.Create("p", Opts{MaxChildren: IntLimit(2)}, "")

	tr.ChildStarted("p", "c")
	if tr.Get("p").ActiveChildren != 1 {
		t.Errorf("active children not incremented")
	}
	if tr.Get("c") == nil {
		t.Error("child budget not initialized on start")
	}

	tr.RecordUsage("c", 40, 0.2)
	tr.ChildCompleted("p", "c")

	p := tr.Get("p")
	if p.ActiveChildren != 0 {
		t.Errorf("active children = %d, want 0", p.ActiveChildren)
	}
	if p.UsedTokens != 40 {
		t.Errorf("child tokens not folded in: %d", p.UsedTokens)
	}

	// Decrement clamps at zero.
	tr.ChildCompleted("p", "ghost")
	if tr.Get("p").ActiveChildren != 0 {
		t.Error("active children went negative")
	}
}

func TestEnforcerPreAPI(t *testing.T) {
	tr := NewTracker()
	enf := NewEnforcer(tr, DefaultEnforcerPolicy())
	enf.RunStart("r", Opts{MaxTokens: IntLimit(100)}, "")

	if _, err := enf.PreAPI("r", 50, 0); err != nil {
		t.Fatalf("within budget rejected: %v", err)
	}
	tr.RecordUsage("r", 90, 0)

	decision, err := enf.PreAPI("r", 50, 0)
	if err == nil {
		t.Fatal("over-budget call allowed")
	}
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) || exceeded.Axis != "tokens" {
		t.Errorf("unexpected error: %v", err)
	}
	if decision.Verdict != VerdictCompact || decision.Message == "" {
		t.Errorf("unexpected decision: %+v", decision)
	}
}

func TestEnforcerSpawnChild(t *testing.T) {
	tr := NewTracker()
	enf := NewEnforcer(tr, DefaultEnforcerPolicy())
	enf.RunStart("p", Opts{MaxChildren: IntLimit(1)}, "")

	if _, err := enf.SpawnChild("p"); err != nil {
		t.Fatalf("first spawn rejected: %v", err)
	}
	tr.ChildStarted("p", "c1")

	decision, err := enf.SpawnChild("p")
	if err == nil {
		t.Fatal("spawn over child cap allowed")
	}
	if decision.Verdict != VerdictError {
		t.Errorf("verdict = %q, want error", decision.Verdict)
	}
}
