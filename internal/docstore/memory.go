package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"chariotek.org/internal/ids"
)

// Memory implements Store in process. Transactions serialize on a single
// lock, so the read-check-write of a save is indivisible, mirroring the
// conflict semantics a real document database provides.
type Memory struct {
	mu          sync.RWMutex
	docs        map[string]map[string]any
	collections map[string][]Row
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		docs:        make(map[string]map[string]any),
		collections: make(map[string][]Row),
	}
}

func (s *Memory) Get(ctx context.Context, path string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

type memoryTx struct {
	store  *Memory
	writes map[string]map[string]any
	dels   map[string]bool
}

func (t *memoryTx) Get(path string) (map[string]any, error) {
	if t.dels[path] {
		return nil, ErrNotFound
	}
	if doc, ok := t.writes[path]; ok {
		return clone(doc), nil
	}
	doc, ok := t.store.docs[path]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

func (t *memoryTx) Set(path string, value map[string]any) error {
	delete(t.dels, path)
	t.writes[path] = clone(value)
	return nil
}

func (t *memoryTx) Delete(path string) error {
	delete(t.writes, path)
	t.dels[path] = true
	return nil
}

// RunTransaction executes fn under the store lock. A returned error aborts
// the transaction: buffered writes are discarded.
func (s *Memory) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:  s,
		writes: make(map[string]map[string]any),
		dels:   make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for path := range tx.dels {
		delete(s.docs, path)
	}
	for path, doc := range tx.writes {
		s.docs[path] = doc
	}
	return nil
}

func (s *Memory) AddToCollection(ctx context.Context, collection string, value map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ids.New()
	s.collections[collection] = append(s.collections[collection], Row{ID: id, Value: clone(value)})
	return id, nil
}

func (s *Memory) QueryCollection(ctx context.Context, collection string, q Query) ([]Row, error) {
	s.mu.RLock()
	rows := make([]Row, 0, len(s.collections[collection]))
	for _, r := range s.collections[collection] {
		if matches(r.Value, q.Filters) {
			rows = append(rows, Row{ID: r.ID, Value: clone(r.Value)})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		if q.Desc {
			return compareRows(rows[j], rows[i], q)
		}
		return compareRows(rows[i], rows[j], q)
	})

	if q.AfterID != "" {
		idx := -1
		for i, r := range rows {
			if r.ID == q.AfterID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			rows = rows[idx+1:]
		}
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func (s *Memory) DeleteFromCollection(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.collections[collection]
	for i, r := range rows {
		if r.ID == id {
			s.collections[collection] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func matches(value map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := value[f.Field]
		if !ok {
			return false
		}
		have, want := fmt.Sprintf("%v", v), fmt.Sprintf("%v", f.Value)
		switch f.Op {
		case OpAtLeast:
			if have < want {
				return false
			}
		case OpAtMost:
			if have > want {
				return false
			}
		default:
			if have != want {
				return false
			}
		}
	}
	return true
}

func compareRows(a, b Row, q Query) bool {
	if q.OrderBy == "" {
		return a.ID < b.ID
	}
	av, bv := a.Value[q.OrderBy], b.Value[q.OrderBy]
	if q.OrderNumeric {
		return toFloat(av) < toFloat(bv)
	}
	as, bs := fmt.Sprintf("%v", av), fmt.Sprintf("%v", bv)
	if as == bs {
		return a.ID < b.ID
	}
	return as < bs
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

// clone deep-copies a document so callers never alias stored state.
func clone(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		out := make(map[string]any, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return doc
	}
	return out
}
