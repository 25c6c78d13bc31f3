package status

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultHeader opens a fresh status artifact.
const defaultHeader = "# Status\n"

// Writer is the single legitimate editor of the shared status artifact.
// Exactly one agent instance constructs a Writer; every other process
// routes proposed updates through the envelope queue.
type Writer struct {
	path  string
	queue *Queue
}

// NewWriter creates the writer for the artifact at path, draining the
// given queue.
func NewWriter(path string, queue *Queue) *Writer {
	return &Writer{path: path, queue: queue}
}

// Drain folds every pending envelope into the artifact and consumes it.
// Each envelope is applied and deleted individually, so a crash mid-pass
// loses nothing: unconsumed envelopes fold again next pass, and folding
// is idempotent by construction.
func (w *Writer) Drain() (int, error) {
	envs, err := w.queue.List()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, env := range envs {
		if err := w.Apply(env); err != nil {
			return applied, fmt.Errorf("folding envelope %s: %w", env.ID, err)
		}
		if err := w.queue.Consume(env.ID); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Apply folds one envelope into the artifact via content-addressable
// insertion: the item's marker block is replaced in place if present,
// otherwise inserted under the envelope's section. Free-text patching
// never happens, so concurrent edits cannot clash by construction.
func (w *Writer) Apply(env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	text, err := w.read()
	if err != nil {
		return err
	}

	text = fold(text, env)
	return w.write(text)
}

// Render returns the current artifact content.
func (w *Writer) Render() (string, error) {
	return w.read()
}

func (w *Writer) read() (string, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultHeader, nil
		}
		return "", err
	}
	return string(data), nil
}

func (w *Writer) write(text string) error {
	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".tmp-status-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, w.path)
}

// markers delimit one item's block in the artifact.
func markers(itemID string) (openTag, closeTag string) {
	return fmt.Sprintf("<!-- item:%s -->", itemID), fmt.Sprintf("<!-- /item:%s -->", itemID)
}

// Block renders the marker-delimited block for an envelope.
func Block(env Envelope) string {
	openTag, closeTag := markers(env.ItemID)
	body := strings.TrimRight(env.Body, "\n")
	return openTag + "\n" + body + "\n" + closeTag + "\n"
}

// fold performs the content-addressable insertion.
func fold(text string, env Envelope) string {
	openTag, closeTag := markers(env.ItemID)
	block := Block(env)

	// Replace an existing block in place.
	if start := strings.Index(text, openTag); start >= 0 {
		if end := strings.Index(text[start:], closeTag); end >= 0 {
			endAbs := start + end + len(closeTag)
			// swallow the trailing newline of the old block
			if endAbs < len(text) && text[endAbs] == '\n' {
				endAbs++
			}
			return text[:start] + block + text[endAbs:]
		}
	}

	// Insert under the section, creating it at the end if absent.
	if env.Section != "" {
		heading := "## " + env.Section
		if idx := sectionEnd(text, heading); idx >= 0 {
			return text[:idx] + block + "\n" + text[idx:]
		}
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		return text + "\n" + heading + "\n\n" + block
	}

	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + "\n" + block
}

// sectionEnd returns the offset just past the given section's content
// (before the next heading), or -1 if the section does not exist.
func sectionEnd(text, heading string) int {
	lines := strings.SplitAfter(text, "\n")
	offset := 0
	inSection := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\n")
		if inSection && strings.HasPrefix(trimmed, "## ") {
			return offset
		}
		if trimmed == heading {
			inSection = true
		}
		offset += len(line)
	}
	if inSection {
		return offset
	}
	return -1
}
