package issues

// Accumulator collects the issues of one category during a scan run. It
// keeps call order and does not deduplicate.
type Accumulator[T any] struct {
	items []T
	reset bool
}

// Reset empties the list and marks the category as collected.
func (a *Accumulator[T]) Reset() {
	a.items = make([]T, 0)
	a.reset = true
}

func (a *Accumulator[T]) Add(item T) {
	if a.items == nil {
		a.items = make([]T, 0, 1)
	}
	a.items = append(a.items, item)
	a.reset = true
}

// Snapshot returns a copy of the current list, or nil when the category was
// never reset nor added to in this run.
func (a *Accumulator[T]) Snapshot() []T {
	if !a.reset {
		return nil
	}
	out := make([]T, len(a.items))
	copy(out, a.items)
	return out
}

func (a *Accumulator[T]) Len() int {
	return len(a.items)
}
