package analysis

import (
	"context"
	"fmt"
	"strconv"

	"goa.design/clue/log"
)

// Cursor is a zero-based editor cursor.
type Cursor struct {
	Line int `json:"line"`
	Ch   int `json:"ch"`
}

// Completion is one candidate at the cursor, in provider rank order.
type Completion struct {
	Label string `json:"text"`
	Kind  string `json:"type"`
}

// CompletionProvider returns completions at a one-based line and a column.
type CompletionProvider interface {
	Complete(ctx context.Context, code string, line, column int) ([]Completion, error)
}

// Completer translates editor cursors for a completion provider.
type Completer struct {
	provider CompletionProvider
	cache    *resultCache[Completion]
}

// NewCompleter creates a completer caching up to cacheSize results.
func NewCompleter(provider CompletionProvider, cacheSize int) (*Completer, error) {
	cache, err := newResultCache[Completion](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Completer{provider: provider, cache: cache}, nil
}

// Complete returns completions at cur. On provider failure it returns an
// empty slice and an error wrapping ErrProvider.
func (c *Completer) Complete(ctx context.Context, code string, cur Cursor) ([]Completion, error) {
	line, column := cur.Line+1, cur.Ch
	key := cacheKey(code, strconv.Itoa(line), strconv.Itoa(column))
	if items, ok := c.cache.get(key); ok {
		return items, nil
	}

	items, err := c.provider.Complete(ctx, code, line, column)
	if err != nil {
		log.Errorf(ctx, err, "completion provider")
		return []Completion{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if items == nil {
		items = []Completion{}
	}
	c.cache.put(key, items)
	return items, nil
}
