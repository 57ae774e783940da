package remediation

import "sync"

// Store is the in-memory table of remediation attempts. Records are
// retained for the process lifetime; the audit sink holds the durable
// copy.
type Store struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// NewStore creates an empty record store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*Record),
	}
}

func (s *Store) add(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.id] = rec
	s.order = append(s.order, rec.id)
}

// Get returns a snapshot of the record with the given id.
func (s *Store) Get(id string) (RecordView, bool) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return RecordView{}, false
	}
	return rec.Snapshot(), true
}

// List returns record snapshots, most recent first. A non-empty status
// filters the result; limit <= 0 means no limit.
func (s *Store) List(status Status, limit int) []RecordView {
	s.mu.RLock()
	ids := append([]string(nil), s.order...)
	recs := make([]*Record, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		recs = append(recs, s.records[ids[i]])
	}
	s.mu.RUnlock()

	out := make([]RecordView, 0, len(recs))
	for _, rec := range recs {
		view := rec.Snapshot()
		if status != "" && view.Status != status {
			continue
		}
		out = append(out, view)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Counts returns the number of running and total records, plus the count
// per terminal status.
func (s *Store) Counts() (running, total int, byStatus map[Status]int) {
	s.mu.RLock()
	recs := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	byStatus = make(map[Status]int)
	for _, rec := range recs {
		view := rec.Snapshot()
		byStatus[view.Status]++
		if view.Status == StatusRunning {
			running++
		}
	}
	return running, len(recs), byStatus
}
