package models

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	seq uint64
	rec Record
}

// MemoryRepo is an in-process Gateway. It backs tests and STORE_BACKEND=memory.
type MemoryRepo struct {
	mu    sync.RWMutex
	seq   uint64
	cols  map[string]map[string]*memoryEntry
	clock func() time.Time

	// failWrites, when set, makes every write fail with the returned error.
	failWrites func(collection string) error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		cols:  make(map[string]map[string]*memoryEntry),
		clock: now,
	}
}

// WithClock replaces the timestamp source. Used by tests that need ties.
func (m *MemoryRepo) WithClock(clock func() time.Time) *MemoryRepo {
	m.clock = clock
	return m
}

// FailWrites makes subsequent writes to any collection fail with err until cleared with nil.
func (m *MemoryRepo) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.failWrites = nil
		return
	}
	m.failWrites = func(string) error { return err }
}

func (m *MemoryRepo) col(name string) map[string]*memoryEntry {
	c, ok := m.cols[name]
	if !ok {
		c = make(map[string]*memoryEntry)
		m.cols[name] = c
	}
	return c
}

func (m *MemoryRepo) checkWrite(collection string) error {
	if m.failWrites == nil {
		return nil
	}
	return m.failWrites(collection)
}

func (m *MemoryRepo) insert(collection, id string, payload Record) {
	m.seq++
	m.col(collection)[id] = &memoryEntry{seq: m.seq, rec: stamp(payload, id, m.clock())}
}

func (m *MemoryRepo) Create(ctx context.Context, collection string, payload Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", writeErr("create", collection, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite(collection); err != nil {
		return "", writeErr("create", collection, err)
	}
	id := newID()
	m.insert(collection, id, payload)
	return id, nil
}

func (m *MemoryRepo) CreateWithID(ctx context.Context, collection, id string, payload Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, writeErr("create", collection, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite(collection); err != nil {
		return false, writeErr("create", collection, err)
	}
	if _, ok := m.col(collection)[id]; ok {
		return false, nil
	}
	m.insert(collection, id, payload)
	return true, nil
}

// sorted returns entries newest first; equal timestamps fall back to insertion order.
func (m *MemoryRepo) sorted(collection string) []*memoryEntry {
	c := m.cols[collection]
	out := make([]*memoryEntry, 0, len(c))
	for _, e := range c {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].rec.CreatedAt(), out[j].rec.CreatedAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].seq > out[j].seq
	})
	return out
}

func matches(rec Record, match Record) bool {
	for k, v := range match {
		if !reflect.DeepEqual(plainValue(rec[k]), plainValue(v)) {
			return false
		}
	}
	return true
}

func (m *MemoryRepo) ListRecent(ctx context.Context, collection string, limit int, filter *Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, readErr("list", collection, err)
	}
	if limit <= 0 {
		return []Record{}, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, limit)
	for _, e := range m.sorted(collection) {
		if filter != nil && !matches(e.rec, Record{filter.Field: filter.Value}) {
			continue
		}
		out = append(out, cloneRecord(e.rec))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryRepo) GetByID(ctx context.Context, collection, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, readErr("get", collection, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.cols[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(e.rec), nil
}

func (m *MemoryRepo) GetMany(ctx context.Context, collection string, ids []string) (map[string]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, readErr("get many", collection, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record)
	for _, id := range distinct(ids) {
		if e, ok := m.cols[collection][id]; ok {
			out[id] = cloneRecord(e.rec)
		}
	}
	return out, nil
}

func (m *MemoryRepo) CountWhere(ctx context.Context, collection, field string, value any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, readErr("count", collection, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, e := range m.cols[collection] {
		if matches(e.rec, Record{field: value}) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepo) FindOne(ctx context.Context, collection string, match Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, readErr("find", collection, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.sorted(collection) {
		if matches(e.rec, match) {
			return cloneRecord(e.rec), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) Update(ctx context.Context, collection, id string, fields Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, writeErr("update", collection, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite(collection); err != nil {
		return nil, writeErr("update", collection, err)
	}
	e, ok := m.cols[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	for k, v := range fields {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		e.rec[k] = v
	}
	return cloneRecord(e.rec), nil
}

func (m *MemoryRepo) Upsert(ctx context.Context, collection string, match, fields Record) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, writeErr("upsert", collection, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkWrite(collection); err != nil {
		return "", false, writeErr("upsert", collection, err)
	}
	for _, e := range m.sorted(collection) {
		if matches(e.rec, match) {
			for k, v := range fields {
				if k == FieldID || k == FieldCreatedAt {
					continue
				}
				e.rec[k] = v
			}
			return e.rec.ID(), false, nil
		}
	}
	payload := make(Record, len(match)+len(fields))
	for k, v := range match {
		payload[k] = v
	}
	for k, v := range fields {
		payload[k] = v
	}
	id := newID()
	m.insert(collection, id, payload)
	return id, true, nil
}

func (m *MemoryRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}
