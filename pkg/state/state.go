// Package state holds the client's view of a user's death records as
// immutable snapshots produced by a single reducer.
package state

import (
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/respawn"
)

// Record is the last known death of one monster.
type Record struct {
	RowID       string
	MvpID       string
	DeathTime   time.Time
	MapPosition *models.MapPosition
}

// Snapshot is an immutable view of the tracker. Reduce never modifies its
// input; accessors return copies.
type Snapshot struct {
	records   map[string]Record
	rowIndex  map[string]string
	loading   bool
	lastError string
	version   uint64
}

// Empty returns a snapshot with no records that is not loading.
func Empty() Snapshot {
	return Snapshot{}
}

// Record returns the stored record of a monster, expired or not.
func (s Snapshot) Record(mvpID string) (Record, bool) {
	r, ok := s.records[mvpID]
	return r, ok
}

// Records returns a copy of every stored record keyed by monster id.
func (s Snapshot) Records() map[string]Record {
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// Len returns the number of stored records.
func (s Snapshot) Len() int {
	return len(s.records)
}

// MvpIDForRow resolves a row id seen on the change feed.
func (s Snapshot) MvpIDForRow(rowID string) (string, bool) {
	mvpID, ok := s.rowIndex[rowID]
	return mvpID, ok
}

// MapPosition returns the stored position of a monster, if any.
func (s Snapshot) MapPosition(mvpID string) *models.MapPosition {
	r, ok := s.records[mvpID]
	if !ok || r.MapPosition == nil {
		return nil
	}
	p := *r.MapPosition
	return &p
}

func (s Snapshot) Loading() bool {
	return s.loading
}

// LastError is the user-facing message of the last failed operation.
func (s Snapshot) LastError() string {
	return s.lastError
}

// Version increases with every change.
func (s Snapshot) Version() uint64 {
	return s.version
}

// DeathTimes returns, for every catalog monster, its death time or nil when
// nothing is recorded or the record expired at now.
func (s Snapshot) DeathTimes(c *catalog.Catalog, now time.Time) map[string]*time.Time {
	out := make(map[string]*time.Time, c.Len())
	for _, m := range c.List() {
		out[m.ID] = nil
		r, ok := s.records[m.ID]
		if !ok {
			continue
		}
		if respawn.IsExpired(r.DeathTime, m.RespawnMaxDuration(), now) {
			continue
		}
		deathTime := r.DeathTime
		out[m.ID] = &deathTime
	}
	return out
}

func (s Snapshot) clone() Snapshot {
	next := s
	next.records = make(map[string]Record, len(s.records))
	for k, v := range s.records {
		next.records[k] = v
	}
	next.rowIndex = make(map[string]string, len(s.rowIndex))
	for k, v := range s.rowIndex {
		next.rowIndex[k] = v
	}
	next.version++
	return next
}
