// Package guardrails bounds the size of content flowing to the model:
// thinking blocks, tool-call arguments, tool-result text and images. Oversize
// content is truncated deterministically and optionally spilled to a
// content-addressed directory so nothing is lost.
package guardrails

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// labelMaxLen caps sanitized spill labels.
const labelMaxLen = 80

// Spill writes oversize content to a content-addressed directory. Layout is
// <root>/<label>/<sha256>.<ext>; writes are create-if-absent so identical
// content spilled twice produces one file and retries are safe.
type Spill struct {
	root string
}

// NewSpill creates a spill store rooted at dir. An empty dir disables
// spilling; Write then returns an empty path.
func NewSpill(dir string) *Spill {
	return &Spill{root: dir}
}

// Enabled reports whether a spill directory is configured.
func (s *Spill) Enabled() bool { return s != nil && s.root != "" }

// Write stores data under label and returns the file path. The filename is
// the sha256 of the content; an existing file with that hash is never
// overwritten.
func (s *Spill) Write(label string, data []byte, ext string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	sum := sha256.Sum256(data)
	return s.writeHashed(label, hex.EncodeToString(sum[:]), data, ext)
}

func (s *Spill) writeHashed(label, sha string, data []byte, ext string) (string, error) {
	dir := filepath.Join(s.root, sanitizeLabel(label))
	path := filepath.Join(dir, sha+"."+ext)

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat spill file: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create spill directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write spill file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename spill file: %w", err)
	}
	return path, nil
}

// sanitizeLabel replaces any character outside [a-zA-Z0-9_\-:.] with an
// underscore and caps the result at 80 chars.
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '-', r == ':', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "_"
	}
	if len(out) > labelMaxLen {
		out = out[:labelMaxLen]
	}
	return out
}

// extForMime maps image mime types to spill file extensions.
func extForMime(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "bin"
	}
}

// sha256Hex returns the hex digest of data.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
