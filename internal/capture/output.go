// Package capture collects the visible effects of a single snippet run.
package capture

import (
	"encoding/base64"
	"sync"
)

// ItemType tags an output item.
type ItemType string

const (
	TypeText  ItemType = "text"
	TypeImage ItemType = "image"
)

// Item is one captured unit of output. Image content is base64-encoded PNG.
type Item struct {
	Type    ItemType `json:"type"`
	Content string   `json:"content"`
}

// Text returns a text item.
func Text(s string) Item {
	return Item{Type: TypeText, Content: s}
}

// Image returns an image item holding the base64 encoding of png.
func Image(png []byte) Item {
	return Item{Type: TypeImage, Content: base64.StdEncoding.EncodeToString(png)}
}

// Sink is the ordered, append-only output log of one run.
type Sink struct {
	mu    sync.Mutex
	items []Item
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Append adds an item at the end of the log.
func (s *Sink) Append(it Item) {
	s.mu.Lock()
	s.items = append(s.items, it)
	s.mu.Unlock()
}

// Items returns a copy of the log in append order. The result is never nil.
func (s *Sink) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of items appended so far.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Result is what a run returns to its caller: an optional fault message and
// every output collected up to the point the run ended.
type Result struct {
	Error   *string `json:"error"`
	Outputs []Item  `json:"outputs"`
}

// Success builds a result from the sink with no error.
func Success(s *Sink) Result {
	return Result{Outputs: s.Items()}
}

// Failure builds a result from the sink carrying msg as the fault.
func Failure(s *Sink, msg string) Result {
	return Result{Error: &msg, Outputs: s.Items()}
}

// Failed reports whether the run ended with a fault.
func (r Result) Failed() bool {
	return r.Error != nil
}

// ErrorMessage returns the fault message, or "" for a clean run.
func (r Result) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// Count returns the number of text and image items.
func (r Result) Count() (text, images int) {
	for _, it := range r.Outputs {
		switch it.Type {
		case TypeText:
			text++
		case TypeImage:
			images++
		}
	}
	return text, images
}
