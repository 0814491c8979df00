package tools

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/agentcore/internal/policy"
)

func approvalRegistry(t *testing.T, prompt Prompter) (*Registry, *ApprovalManager) {
	t.Helper()
	r, _ := Compose([]Tool{namedTool("bash.execute"), namedTool("read.file")}, nil, nil)
	mgr := NewApprovalManager(prompt)
	pol := policy.Policy{RequireApproval: []string{"bash.*"}}
	return r.WrapApproval(pol, mgr, "sess", "agent"), mgr
}

func TestApprovalGrantedExecutes(t *testing.T) {
	wrapped, _ := approvalRegistry(t, func(ctx context.Context, req ApprovalRequest) (bool, string, error) {
		return true, "", nil
	})

	res, err := wrapped.Execute(context.Background(), "bash.execute", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || res.Content != "bash.execute" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestApprovalDeniedProducesErrorResult(t *testing.T) {
	wrapped, _ := approvalRegistry(t, func(ctx context.Context, req ApprovalRequest) (bool, string, error) {
		return false, "operator said no", nil
	})

	res, err := wrapped.Execute(context.Background(), "bash.execute", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(res.Content, "operator said no") {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestApprovalDecisionPersistsPerScope(t *testing.T) {
	var prompts int32
	wrapped, mgr := approvalRegistry(t, func(ctx context.Context, req ApprovalRequest) (bool, string, error) {
		atomic.AddInt32(&prompts, 1)
		return true, "", nil
	})

	for i := 0; i < 3; i++ {
		if _, err := wrapped.Execute(context.Background(), "bash.execute", nil); err != nil {
			t.Fatal(err)
		}
	}
	if got := atomic.LoadInt32(&prompts); got != 1 {
		t.Errorf("prompt count = %d, want 1", got)
	}

	// Reset clears the scope; next execute prompts again.
	mgr.Reset("sess", "agent")
	if _, err := wrapped.Execute(context.Background(), "bash.execute", nil); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&prompts); got != 2 {
		t.Errorf("prompt count after reset = %d, want 2", got)
	}
}

func TestUnGatedToolSkipsApproval(t *testing.T) {
	wrapped, _ := approvalRegistry(t, func(ctx context.Context, req ApprovalRequest) (bool, string, error) {
		t.Error("prompt fired for ungated tool")
		return false, "", nil
	})

	res, err := wrapped.Execute(context.Background(), "read.file", nil)
	if err != nil || res.IsError {
		t.Errorf("ungated tool failed: %+v %v", res, err)
	}
}

func TestNilPrompterDenies(t *testing.T) {
	wrapped, _ := approvalRegistry(t, nil)
	res, err := wrapped.Execute(context.Background(), "bash.execute", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("nil prompter should deny")
	}
}
