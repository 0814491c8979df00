package guardrails

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const truncationMarker = "\n...[truncated]...\n"

// truncateMiddle keeps roughly 70% of the budget from the head and 30% from
// the tail with a marker between, backing cut points off to rune boundaries
// so the output stays valid UTF-8. Pure function of its inputs.
func truncateMiddle(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	if limit <= len(truncationMarker) {
		return safeCut(text, limit)
	}

	budget := limit - len(truncationMarker)
	headLen := budget * 7 / 10
	tailLen := budget - headLen

	head := safeCut(text, headLen)
	tail := safeCutTail(text, tailLen)
	return head + truncationMarker + tail
}

// safeCut truncates to at most n bytes ending on a rune boundary.
func safeCut(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// safeCutTail keeps at most n trailing bytes starting on a rune boundary.
func safeCutTail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}

// truncationHeader is the deterministic prefix prepended to truncated tool
// results.
func truncationHeader(toolName string, originalBytes int, sha, spillPath string) string {
	header := fmt.Sprintf("[tool_result truncated] tool=%s original_bytes=%d sha256=%s", toolName, originalBytes, sha)
	if spillPath != "" {
		header += " spill_path=" + spillPath
	}
	return header + "\n"
}

// LineMode selects which lines survive a max_lines truncation.
type LineMode string

const (
	LineModeHead   LineMode = "head"
	LineModeTail   LineMode = "tail"
	LineModeMiddle LineMode = "middle"
	LineModeSmart  LineMode = "smart"
)

// importantPrefixes rank lines for smart truncation. Earlier entries are
// more important; within a tier, earlier lines win.
var importantPrefixes = [][]string{
	// imports / module references
	{"import ", "from ", "#include", "use ", "require ", "package "},
	// declarations
	{"func ", "def ", "class ", "type ", "struct ", "interface ", "fn ", "pub fn ", "var ", "const ", "let ", "module "},
}

func lineImportance(line string) int {
	trimmed := strings.TrimSpace(line)
	for tier, prefixes := range importantPrefixes {
		for _, p := range prefixes {
			if strings.HasPrefix(trimmed, p) {
				return tier
			}
		}
	}
	return len(importantPrefixes)
}

// TruncateLines bounds text to maxLines using the given mode. Smart mode
// keeps declaration and import lines first, replacing elided runs with an
// ellipsis marker while preserving original line order.
func TruncateLines(text string, maxLines int, mode LineMode) string {
	if maxLines <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) <= maxLines {
		return text
	}

	switch mode {
	case LineModeTail:
		kept := lines[len(lines)-maxLines:]
		return "...\n" + strings.Join(kept, "\n")
	case LineModeMiddle:
		headN := maxLines * 7 / 10
		tailN := maxLines - headN
		out := append([]string{}, lines[:headN]...)
		out = append(out, "...")
		out = append(out, lines[len(lines)-tailN:]...)
		return strings.Join(out, "\n")
	case LineModeSmart:
		return smartTruncateLines(lines, maxLines)
	default:
		return strings.Join(lines[:maxLines], "\n") + "\n..."
	}
}

// smartTruncateLines keeps the most important maxLines lines, ranked by
// importance tier then by line number, then renders survivors in original
// order with "..." where runs were elided.
func smartTruncateLines(lines []string, maxLines int) string {
	type scored struct {
		index      int
		importance int
	}
	ranked := make([]scored, len(lines))
	for i, line := range lines {
		ranked[i] = scored{index: i, importance: lineImportance(line)}
	}
	// Stable selection: lower importance value first, then earlier line.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0; j-- {
			a, b := ranked[j-1], ranked[j]
			if b.importance < a.importance || (b.importance == a.importance && b.index < a.index) {
				ranked[j-1], ranked[j] = b, a
			} else {
				break
			}
		}
	}

	keep := make(map[int]bool, maxLines)
	for i := 0; i < maxLines && i < len(ranked); i++ {
		keep[ranked[i].index] = true
	}

	var out []string
	elided := false
	for i, line := range lines {
		if keep[i] {
			if elided {
				out = append(out, "...")
				elided = false
			}
			out = append(out, line)
		} else {
			elided = true
		}
	}
	if elided {
		out = append(out, "...")
	}
	return strings.Join(out, "\n")
}

// headTailExcerpt builds the short preview carried in an argument
// placeholder: first and last excerptLen bytes on rune boundaries.
func headTailExcerpt(s string, excerptLen int) string {
	if len(s) <= 2*excerptLen {
		return s
	}
	return safeCut(s, excerptLen) + " ... " + safeCutTail(s, excerptLen)
}
