package checklist

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrDanglingParent = errors.New("parent reference outside the item list")
	ErrSelfParent     = errors.New("item references itself as parent")
	ErrParentCycle    = errors.New("parent references form a cycle")
	ErrDuplicateID    = errors.New("id generator returned a duplicate id")
)

// Item is a checklist item with a stable id. It is also the extraction
// artifact element.
type Item struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	ParentID    *string `json:"parent_id"`
}

// IDFunc mints a new globally unique item id.
type IDFunc func() string

// DefaultIDFunc returns random UUIDs.
func DefaultIDFunc() string { return uuid.NewString() }

// Remap assigns stable ids to provisional items and rewrites their local
// parent indices to those ids. Output is ordered parent before child and
// otherwise keeps input order.
func Remap(items []ProvisionalItem, newID IDFunc) ([]Item, error) {
	if newID == nil {
		newID = DefaultIDFunc
	}
	n := len(items)
	for i, it := range items {
		if it.LocalParent == nil {
			continue
		}
		p := *it.LocalParent
		switch {
		case p < 0 || p >= n:
			return nil, fmt.Errorf("item %d parent %d: %w", i, p, ErrDanglingParent)
		case p == i:
			return nil, fmt.Errorf("item %d: %w", i, ErrSelfParent)
		}
	}

	ids := make(map[int]string, n)
	seen := make(map[string]struct{}, n)
	var dupErr error
	resolve := func(idx int) string {
		if id, ok := ids[idx]; ok {
			return id
		}
		id := newID()
		if _, dup := seen[id]; dup && dupErr == nil {
			dupErr = fmt.Errorf("%q: %w", id, ErrDuplicateID)
		}
		seen[id] = struct{}{}
		ids[idx] = id
		return id
	}

	// A forward parent gets its id reserved on first reference.
	resolved := make([]Item, n)
	for i, it := range items {
		out := Item{ID: resolve(i), Name: it.Name, Description: it.Description}
		if it.LocalParent != nil {
			pid := resolve(*it.LocalParent)
			out.ParentID = &pid
		}
		resolved[i] = out
	}
	if dupErr != nil {
		return nil, dupErr
	}

	return topoOrder(items, resolved)
}

// topoOrder emits the smallest ready index first, which keeps input order
// for any list that is already parent-before-child.
func topoOrder(items []ProvisionalItem, resolved []Item) ([]Item, error) {
	n := len(items)
	children := make([][]int, n)
	ready := &indexHeap{}
	for i, it := range items {
		if it.LocalParent == nil {
			*ready = append(*ready, i)
			continue
		}
		children[*it.LocalParent] = append(children[*it.LocalParent], i)
	}
	heap.Init(ready)

	out := make([]Item, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		out = append(out, resolved[i])
		for _, c := range children[i] {
			heap.Push(ready, c)
		}
	}
	if len(out) != n {
		return nil, fmt.Errorf("%d of %d items unreachable from a root: %w", n-len(out), n, ErrParentCycle)
	}
	return out, nil
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
