package attendance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore: プロセス内ストア（テスト・デモ用）。SQLStore と同じ一意性ルールを持つ
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	day     map[string]string // record_id -> entry_day
	open    map[openKey]string
}

type openKey struct {
	personID string
	day      string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]*Record{},
		day:     map[string]string{},
		open:    map[openKey]string{},
	}
}

func (m *MemoryStore) FindOpen(ctx context.Context, personID string, day DayWindow) (*Record, error) {
	return m.latestOpen(ctx, personID, day.Contains)
}

func (m *MemoryStore) LatestOpen(ctx context.Context, personID string) (*Record, error) {
	return m.latestOpen(ctx, personID, func(time.Time) bool { return true })
}

func (m *MemoryStore) latestOpen(ctx context.Context, personID string, inRange func(time.Time) bool) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *Record
	for _, r := range m.records {
		if r.PersonID != personID || !r.IsOpen() || !inRange(r.EntryAt) {
			continue
		}
		if found == nil || r.EntryAt.After(found.EntryAt) {
			found = r
		}
	}
	if found == nil {
		return nil, nil
	}
	c := cloneRecord(*found)
	return &c, nil
}

func (m *MemoryStore) Insert(ctx context.Context, rec Record, day DayWindow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := openKey{personID: rec.PersonID, day: day.Key()}
	if _, ok := m.open[k]; ok {
		return errConcurrentCreationLost
	}
	if _, ok := m.records[rec.RecordID]; ok {
		return ErrConflict("duplicate record_id")
	}
	c := cloneRecord(rec)
	c.ExitAt = nil
	m.records[c.RecordID] = &c
	m.day[c.RecordID] = k.day
	m.open[k] = c.RecordID
	return nil
}

func (m *MemoryStore) Close(ctx context.Context, recordID string, exitAt time.Time) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[recordID]
	if !ok || !r.IsOpen() || exitAt.Before(r.EntryAt) {
		return Record{}, errAlreadyClosed
	}
	t := exitAt.UTC()
	r.ExitAt = &t
	delete(m.open, openKey{personID: r.PersonID, day: m.day[recordID]})
	return cloneRecord(*r), nil
}

func (m *MemoryStore) ListBetween(ctx context.Context, from, to time.Time) ([]Record, error) {
	return m.list(ctx, 0, func(r *Record) bool {
		return !r.EntryAt.Before(from) && r.EntryAt.Before(to)
	})
}

func (m *MemoryStore) ListByPerson(ctx context.Context, personID string, limit int) ([]Record, error) {
	return m.list(ctx, limit, func(r *Record) bool { return r.PersonID == personID })
}

func (m *MemoryStore) DeleteByPerson(ctx context.Context, personID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, r := range m.records {
		if r.PersonID != personID {
			continue
		}
		delete(m.open, openKey{personID: personID, day: m.day[id]})
		delete(m.records, id)
		delete(m.day, id)
		n++
	}
	return n, nil
}

func (m *MemoryStore) list(ctx context.Context, limit int, keep func(*Record) bool) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []Record{}
	for _, r := range m.records {
		if keep(r) {
			out = append(out, cloneRecord(*r))
		}
	}
	// SQLStore と同じ並び: entry 降順, record_id 降順
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryAt.Equal(out[j].EntryAt) {
			return out[i].EntryAt.After(out[j].EntryAt)
		}
		return out[i].RecordID > out[j].RecordID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneRecord(r Record) Record {
	if r.ExitAt != nil {
		t := *r.ExitAt
		r.ExitAt = &t
	}
	if r.ConfidenceScore != nil {
		v := *r.ConfidenceScore
		r.ConfidenceScore = &v
	}
	return r
}
