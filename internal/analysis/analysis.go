// Package analysis adapts external Python analyzers (pyflakes for lint, jedi
// for completion) and translates their one-based coordinates into the
// zero-based positions editors use.
package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrProvider marks a failure inside an external analyzer.
var ErrProvider = errors.New("analysis provider failed")

// Position is a zero-based line and character offset.
type Position struct {
	Line int `json:"line"`
	Ch   int `json:"ch"`
}

// DefaultLineWidth is the column every diagnostic range extends to. Analyzer
// reports carry no line length, so the range covers a typical line instead.
const DefaultLineWidth = 80

// DefaultCacheSize is the number of results each cache keeps.
const DefaultCacheSize = 256

// resultCache memoizes provider results by a hash of their inputs. A nil
// cache stores nothing.
type resultCache[T any] struct {
	lru *lru.Cache[string, []T]
}

func newResultCache[T any](size int) (*resultCache[T], error) {
	if size <= 0 {
		return &resultCache[T]{}, nil
	}
	c, err := lru.New[string, []T](size)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &resultCache[T]{lru: c}, nil
}

func (c *resultCache[T]) get(key string) ([]T, bool) {
	if c.lru == nil {
		return nil, false
	}
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return slices.Clone(v), true
}

func (c *resultCache[T]) put(key string, v []T) {
	if c.lru == nil {
		return
	}
	c.lru.Add(key, slices.Clone(v))
}

func (c *resultCache[T]) len() int {
	if c.lru == nil {
		return 0
	}
	return c.lru.Len()
}

func cacheKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
