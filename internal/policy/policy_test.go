package policy

import (
	"errors"
	"testing"
)

func TestDenyWinsOverAllow(t *testing.T) {
	p := Policy{
		Allow: []string{AllowAll},
		Deny:  []string{"bash.*"},
	}
	if p.Allows("bash.execute") {
		t.Error("denied tool allowed")
	}
	if !p.Allows("read.file") {
		t.Error("allowed tool denied")
	}
}

func TestEmptyAllowPermitsAll(t *testing.T) {
	p := Policy{}
	if !p.Allows("anything") {
		t.Error("empty policy should permit")
	}
}

func TestExplicitAllowList(t *testing.T) {
	p := Policy{Allow: []string{"read.file", "fs.*"}}
	if !p.Allows("read.file") {
		t.Error("exact allow failed")
	}
	if !p.Allows("fs.list") {
		t.Error("prefix allow failed")
	}
	if p.Allows("bash.execute") {
		t.Error("unlisted tool allowed")
	}
}

func TestMCPPattern(t *testing.T) {
	p := Policy{Allow: []string{AllowAll}, Deny: []string{"mcp:*"}}
	if p.Allows("mcp:github.search") {
		t.Error("mcp tool not denied")
	}
	if !p.Allows("read.file") {
		t.Error("non-mcp tool denied")
	}
}

func TestNeedsApproval(t *testing.T) {
	p := Policy{RequireApproval: []string{"bash.*", "write.file"}}
	if !p.NeedsApproval("bash.execute") {
		t.Error("pattern approval not required")
	}
	if !p.NeedsApproval("write.file") {
		t.Error("exact approval not required")
	}
	if p.NeedsApproval("read.file") {
		t.Error("approval required for unlisted tool")
	}
}

func TestCheckReturnsDenied(t *testing.T) {
	p := Policy{Allow: []string{"read.*"}}
	err := p.Check("bash.execute")
	if !errors.Is(err, ErrDenied) {
		t.Errorf("err = %v, want ErrDenied", err)
	}
	if p.Check("read.file") != nil {
		t.Error("allowed tool rejected")
	}
}

func TestProfiles(t *testing.T) {
	cases := []struct {
		profile Profile
		tool    string
		allowed bool
	}{
		{ProfileFullAccess, "bash.execute", true},
		{ProfileReadOnly, "bash.execute", false},
		{ProfileReadOnly, "read.file", true},
		{ProfileReadOnly, "write.file", false},
		{ProfileSafeMode, "exec.spawn", false},
		{ProfileSafeMode, "bash.execute", true},
		{ProfileSubagentRestricted, "agent.spawn", false},
		{ProfileSubagentRestricted, "read.file", true},
		{ProfileNoExternal, "fetch.url", false},
		{ProfileNoExternal, "mcp:github.search", false},
		{ProfileNoExternal, "read.file", true},
	}
	for _, tc := range cases {
		p, err := FromProfile(tc.profile)
		if err != nil {
			t.Fatalf("FromProfile(%s): %v", tc.profile, err)
		}
		if got := p.Allows(tc.tool); got != tc.allowed {
			t.Errorf("%s.Allows(%q) = %v, want %v", tc.profile, tc.tool, got, tc.allowed)
		}
	}

	if p, _ := FromProfile(ProfileSafeMode); !p.NeedsApproval("bash.execute") {
		t.Error("safe_mode should gate bash behind approval")
	}
	if p, _ := FromProfile(ProfileSubagentRestricted); !p.NoReply {
		t.Error("subagent_restricted should set no_reply")
	}

	if _, err := FromProfile("bogus"); err == nil {
		t.Error("unknown profile accepted")
	}
	if len(Profiles()) != 5 {
		t.Errorf("profile count = %d", len(Profiles()))
	}
}

func TestMatchToolPattern(t *testing.T) {
	cases := []struct {
		pattern, tool string
		want          bool
	}{
		{"", "x", false},
		{"x", "", false},
		{"read.file", "read.file", true},
		{"read.file", "read.files", false},
		{"fs.*", "fs.list", true},
		{"fs.*", "fsx", false},
		{"mcp:*", "mcp:tool", true},
		{"mcp:*", "other", false},
	}
	for _, tc := range cases {
		if got := matchToolPattern(tc.pattern, tc.tool); got != tc.want {
			t.Errorf("matchToolPattern(%q, %q) = %v, want %v", tc.pattern, tc.tool, got, tc.want)
		}
	}
}
