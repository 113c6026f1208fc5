package capture

import (
	"fmt"
	"strings"
)

// TextHook stands in for an interpreter's default text output for the
// duration of one run. It is bound to a single sink and must not be shared
// between runs.
type TextHook struct {
	sink *Sink
}

// NewTextHook creates a text hook appending to sink.
func NewTextHook(sink *Sink) *TextHook {
	return &TextHook{sink: sink}
}

// Write appends the trimmed payload as a text item. Whitespace-only payloads
// are dropped; interpreters emit those for line endings and flushes.
func (h *TextHook) Write(p []byte) (int, error) {
	return h.WriteString(string(p))
}

// WriteString is Write for strings.
func (h *TextHook) WriteString(s string) (int, error) {
	if t := strings.TrimSpace(s); t != "" {
		h.sink.Append(Text(t))
	}
	return len(s), nil
}

// Flush is a no-op.
func (h *TextHook) Flush() error {
	return nil
}

// Figure is the renderer's currently active figure.
type Figure interface {
	// PNG serializes the figure as it stands now.
	PNG() ([]byte, error)
	// Clear releases the figure so the next render starts blank.
	Clear()
}

// VisualHook stands in for the renderer's "display now" operation.
type VisualHook struct {
	sink *Sink
}

// NewVisualHook creates a visual hook appending to sink.
func NewVisualHook(sink *Sink) *VisualHook {
	return &VisualHook{sink: sink}
}

// Show snapshots fig into an image item and then clears it.
func (h *VisualHook) Show(fig Figure) error {
	data, err := fig.PNG()
	if err != nil {
		return fmt.Errorf("serializing figure: %w", err)
	}
	h.sink.Append(Image(data))
	fig.Clear()
	return nil
}
