package tools

import (
	"context"
	"testing"

	"github.com/haasonsaas/agentcore/internal/policy"
)

func namedTool(name string) Tool {
	return &FuncTool{
		ToolName: name,
		Fn: func(ctx context.Context, args map[string]any) (*Result, error) {
			return &Result{Content: name}, nil
		},
	}
}

func TestComposeFirstWins(t *testing.T) {
	builtins := []Tool{namedTool("read"), namedTool("write")}
	exts := []ExtensionTools{
		{Module: "zeta", Tools: []Tool{namedTool("read"), namedTool("zeta_tool")}},
		{Module: "alpha", Tools: []Tool{namedTool("read"), namedTool("shared")}},
		{Module: "beta", Tools: []Tool{namedTool("shared")}},
	}

	r, report := Compose(builtins, exts, nil)

	if r.Len() != 4 {
		t.Errorf("tool count = %d, want 4", r.Len())
	}
	if report.TotalTools != 4 {
		t.Errorf("report total = %d", report.TotalTools)
	}

	// Built-in wins "read"; alpha (lexicographically first) wins "shared".
	byName := map[string]ConflictEntry{}
	for _, c := range report.Conflicts {
		byName[c.ToolName] = c
	}
	read, ok := byName["read"]
	if !ok || !read.Winner.Builtin {
		t.Errorf("read conflict winner = %+v", read.Winner)
	}
	if len(read.Shadowed) != 2 {
		t.Errorf("read shadowed = %+v", read.Shadowed)
	}
	shared, ok := byName["shared"]
	if !ok || shared.Winner.Extension != "alpha" {
		t.Errorf("shared conflict winner = %+v", shared.Winner)
	}
	if len(shared.Shadowed) != 1 || shared.Shadowed[0].Extension != "beta" {
		t.Errorf("shared shadowed = %+v", shared.Shadowed)
	}
}

func TestComposeCarriesLoadErrors(t *testing.T) {
	failures := []LoadFailure{{Path: "/ext/bad.so", Message: "symbol missing"}}
	_, report := Compose(nil, nil, failures)
	if len(report.LoadErrors) != 1 || report.LoadErrors[0].Path != "/ext/bad.so" {
		t.Errorf("load errors = %+v", report.LoadErrors)
	}
}

func TestComposePreservesOrder(t *testing.T) {
	builtins := []Tool{namedTool("b1"), namedTool("b2")}
	exts := []ExtensionTools{
		{Module: "m2", Tools: []Tool{namedTool("e2")}},
		{Module: "m1", Tools: []Tool{namedTool("e1")}},
	}
	r, _ := Compose(builtins, exts, nil)

	want := []string{"b1", "b2", "e1", "e2"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order = %v, want %v", got, want)
		}
	}
}

func TestExecuteMissingToolIsErrorResult(t *testing.T) {
	r := NewRegistry()
	res, err := r.Execute(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Error("missing tool did not produce error result")
	}
}

func TestFilterDisabledAndEnabledOnly(t *testing.T) {
	r, _ := Compose([]Tool{namedTool("a"), namedTool("b"), namedTool("c")}, nil, nil)

	filtered := r.Filter(map[string]bool{"b": true}, nil)
	if _, ok := filtered.Get("b"); ok {
		t.Error("disabled tool survived")
	}
	if filtered.Len() != 2 {
		t.Errorf("len = %d", filtered.Len())
	}

	only := r.Filter(nil, map[string]bool{"c": true})
	if only.Len() != 1 {
		t.Errorf("enabled-only len = %d", only.Len())
	}
	if _, ok := only.Get("c"); !ok {
		t.Error("enabled tool missing")
	}
}

func TestFilterByPolicy(t *testing.T) {
	r, _ := Compose([]Tool{namedTool("read.file"), namedTool("bash.execute")}, nil, nil)

	pol, err := policy.FromProfile(policy.ProfileReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	filtered := r.FilterByPolicy(pol)
	if _, ok := filtered.Get("bash.execute"); ok {
		t.Error("policy-denied tool survived")
	}
	if _, ok := filtered.Get("read.file"); !ok {
		t.Error("allowed tool pruned")
	}
}
