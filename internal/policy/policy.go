// Package policy provides tool authorization and access control for agent
// runs. A Policy is resolved per run and filters the tool set presented to
// the model; require_approval gates execution rather than visibility.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDenied is returned when a tool call is rejected by policy.
var ErrDenied = errors.New("denied")

// AllowAll is the sentinel allow-list meaning every tool is permitted.
const AllowAll = ":all"

// Profile names a predefined policy.
type Profile string

const (
	ProfileFullAccess         Profile = "full_access"
	ProfileReadOnly           Profile = "read_only"
	ProfileSafeMode           Profile = "safe_mode"
	ProfileSubagentRestricted Profile = "subagent_restricted"
	ProfileNoExternal         Profile = "no_external"
)

// Policy controls which tools a run may see and execute. Deny wins over
// allow; entries may be exact names or prefix patterns ("fs.*", "mcp:*").
type Policy struct {
	// Allow lists permitted tools; nil or containing AllowAll permits all.
	Allow []string `json:"allow,omitempty" yaml:"allow,omitempty"`

	// Deny lists forbidden tools. Deny wins over allow.
	Deny []string `json:"deny,omitempty" yaml:"deny,omitempty"`

	// RequireApproval lists tools whose execution needs an approval grant.
	RequireApproval []string `json:"require_approval,omitempty" yaml:"require_approval,omitempty"`

	// NoReply suppresses outbound replies for the run.
	NoReply bool `json:"no_reply,omitempty" yaml:"no_reply,omitempty"`

	// Profile records which predefined profile this policy came from, if any.
	Profile Profile `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// profiles are the predefined policies. Deny/approval sets reference tool
// name prefixes used by the built-in tool set.
var profiles = map[Profile]Policy{
	ProfileFullAccess: {
		Allow:   []string{AllowAll},
		Profile: ProfileFullAccess,
	},
	ProfileReadOnly: {
		Allow:   []string{AllowAll},
		Deny:    []string{"write.*", "edit.*", "bash.*", "exec.*"},
		Profile: ProfileReadOnly,
	},
	ProfileSafeMode: {
		Allow:           []string{AllowAll},
		Deny:            []string{"exec.*"},
		RequireApproval: []string{"bash.*", "write.*", "edit.*", "fetch.*"},
		Profile:         ProfileSafeMode,
	},
	ProfileSubagentRestricted: {
		Allow:   []string{AllowAll},
		Deny:    []string{"agent.*", "session.*"},
		NoReply: true,
		Profile: ProfileSubagentRestricted,
	},
	ProfileNoExternal: {
		Allow:   []string{AllowAll},
		Deny:    []string{"fetch.*", "web.*", "mcp:*"},
		Profile: ProfileNoExternal,
	},
}

// FromProfile returns the predefined policy for name.
func FromProfile(name Profile) (Policy, error) {
	p, ok := profiles[name]
	if !ok {
		return Policy{}, fmt.Errorf("unknown policy profile %q", name)
	}
	return p, nil
}

// Profiles lists the predefined profile names, sorted.
func Profiles() []Profile {
	out := make([]Profile, 0, len(profiles))
	for name := range profiles {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Allows reports whether the policy permits toolName. Deny wins over allow;
// an empty allow list permits everything.
func (p Policy) Allows(toolName string) bool {
	for _, pattern := range p.Deny {
		if matchToolPattern(pattern, toolName) {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, pattern := range p.Allow {
		if pattern == AllowAll || matchToolPattern(pattern, toolName) {
			return true
		}
	}
	return false
}

// NeedsApproval reports whether executing toolName requires an approval
// grant. Tools the policy denies never reach approval.
func (p Policy) NeedsApproval(toolName string) bool {
	for _, pattern := range p.RequireApproval {
		if matchToolPattern(pattern, toolName) {
			return true
		}
	}
	return false
}

// Check returns ErrDenied with a reason when the policy rejects toolName.
func (p Policy) Check(toolName string) error {
	if !p.Allows(toolName) {
		return fmt.Errorf("%w: tool %q not permitted by policy", ErrDenied, toolName)
	}
	return nil
}

// matchToolPattern matches a policy entry against a tool name. Supported
// forms: exact name, "prefix.*", and "mcp:*".
func matchToolPattern(pattern, toolName string) bool {
	if pattern == "" || toolName == "" {
		return false
	}
	if pattern == "mcp:*" {
		return strings.HasPrefix(toolName, "mcp:")
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(toolName, prefix)
	}
	return pattern == toolName
}
