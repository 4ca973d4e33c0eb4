package state

import (
	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
)

// Action is a change applied by Reduce.
type Action interface {
	action()
}

// LoadStarted marks the records as loading.
type LoadStarted struct{}

// Loaded replaces every record with the ones fetched from the store.
type Loaded struct {
	Records []*models.DeathRecord
}

// LoadFailed leaves the tracker empty. The failure is not surfaced as an error.
type LoadFailed struct{}

// Changed applies one change-feed event.
type Changed struct {
	Event changes.Event
}

// RecordSet stores a record after a successful write.
type RecordSet struct {
	Record *models.DeathRecord
}

// RecordCleared drops the record of one monster after a successful delete.
type RecordCleared struct {
	MvpID string
}

// AllCleared drops every record.
type AllCleared struct{}

// OperationStarted resets the last error before a write.
type OperationStarted struct{}

// Failed records a user-facing error message.
type Failed struct {
	Message string
}

// ErrorCleared resets the last error.
type ErrorCleared struct{}

// SignedOut forgets everything.
type SignedOut struct{}

func (LoadStarted) action()      {}
func (Loaded) action()           {}
func (LoadFailed) action()       {}
func (Changed) action()          {}
func (RecordSet) action()        {}
func (RecordCleared) action()    {}
func (AllCleared) action()       {}
func (OperationStarted) action() {}
func (Failed) action()           {}
func (ErrorCleared) action()     {}
func (SignedOut) action()        {}

// Reduce returns the snapshot that results from applying a to s. The
// second result is false when the action changed nothing.
func Reduce(s Snapshot, a Action) (Snapshot, bool) {
	switch a := a.(type) {
	case LoadStarted:
		if s.loading {
			return s, false
		}
		next := s.clone()
		next.loading = true
		return next, true
	case Loaded:
		next := s.clone()
		next.records = make(map[string]Record, len(a.Records))
		next.rowIndex = make(map[string]string, len(a.Records))
		for _, r := range a.Records {
			next.put(r)
		}
		next.loading = false
		return next, true
	case LoadFailed:
		next := s.clone()
		next.records = map[string]Record{}
		next.rowIndex = map[string]string{}
		next.loading = false
		return next, true
	case Changed:
		return reduceChange(s, a.Event)
	case RecordSet:
		if a.Record == nil || a.Record.MvpID == "" {
			return s, false
		}
		next := s.clone()
		next.put(a.Record)
		return next, true
	case RecordCleared:
		if _, ok := s.records[a.MvpID]; !ok {
			return s, false
		}
		next := s.clone()
		next.remove(a.MvpID)
		return next, true
	case AllCleared:
		next := s.clone()
		next.records = map[string]Record{}
		next.rowIndex = map[string]string{}
		return next, true
	case OperationStarted, ErrorCleared:
		if s.lastError == "" {
			return s, false
		}
		next := s.clone()
		next.lastError = ""
		return next, true
	case Failed:
		next := s.clone()
		next.lastError = a.Message
		return next, true
	case SignedOut:
		next := Empty()
		next.version = s.version + 1
		return next, true
	}
	return s, false
}

// reduceChange applies a feed event. The last event observed wins.
func reduceChange(s Snapshot, e changes.Event) (Snapshot, bool) {
	switch e.EventType {
	case changes.EventInsert, changes.EventUpdate:
		if e.New == nil || e.New.MvpID == "" || e.New.DeathTime.IsZero() {
			return s, false
		}
		next := s.clone()
		next.put(e.New)
		return next, true
	case changes.EventDelete:
		if e.Old == nil {
			return s, false
		}
		mvpID := e.Old.MvpID
		if mvpID == "" {
			mvpID = s.rowIndex[e.Old.ID]
		}
		if mvpID == "" {
			return s, false
		}
		next := s.clone()
		delete(next.rowIndex, e.Old.ID)
		next.remove(mvpID)
		return next, true
	}
	return s, false
}

// put and remove only run on a fresh clone.
func (s *Snapshot) put(r *models.DeathRecord) {
	if previous, ok := s.records[r.MvpID]; ok && previous.RowID != "" && previous.RowID != r.ID {
		delete(s.rowIndex, previous.RowID)
	}
	var position *models.MapPosition
	if r.MapPosition != nil {
		p := *r.MapPosition
		position = &p
	}
	s.records[r.MvpID] = Record{
		RowID:       r.ID,
		MvpID:       r.MvpID,
		DeathTime:   r.DeathTime,
		MapPosition: position,
	}
	if r.ID != "" {
		s.rowIndex[r.ID] = r.MvpID
	}
}

func (s *Snapshot) remove(mvpID string) {
	if r, ok := s.records[mvpID]; ok && r.RowID != "" {
		delete(s.rowIndex, r.RowID)
	}
	delete(s.records, mvpID)
}
