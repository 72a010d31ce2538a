package cbor

import "iter"

// Map is an insertion ordered map with string keys, the default decode
// result for CBOR maps. Its pointer identity is what shared references
// resolve to.
type Map struct {
	keys  []string
	vals  []any
	index map[string]int
}

// Pair is one Map entry.
type Pair struct {
	Key   string
	Value any
}

// NewMap returns an empty Map with room for capacity entries.
func NewMap(capacity int) *Map {
	return &Map{
		keys:  make([]string, 0, capacity),
		vals:  make([]any, 0, capacity),
		index: make(map[string]int, capacity),
	}
}

// Set stores value under key. Replacing a key keeps its position.
func (m *Map) Set(key string, value any) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[key]; ok {
		m.vals[i] = value
		return
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, value)
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (any, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.vals[i], true
}

func (m *Map) Has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Delete removes key, keeping the order of the remaining entries.
func (m *Map) Delete(key string) {
	i, ok := m.index[key]
	if !ok {
		return
	}
	delete(m.index, key)
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	m.vals = append(m.vals[:i], m.vals[i+1:]...)
	for j := i; j < len(m.keys); j++ {
		m.index[m.keys[j]] = j
	}
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string { return append([]string(nil), m.keys...) }

// All iterates the entries in insertion order.
func (m *Map) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for i, k := range m.keys {
			if !yield(k, m.vals[i]) {
				return
			}
		}
	}
}

// Pairs returns a copy of the entries in insertion order.
func (m *Map) Pairs() []Pair {
	out := make([]Pair, len(m.keys))
	for i, k := range m.keys {
		out[i] = Pair{Key: k, Value: m.vals[i]}
	}
	return out
}
