package state

import (
	"sort"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/respawn"
)

type SortOrder string

const (
	// SortByStatus puts actionable monsters first, then the soonest
	// countdown. Untracked monsters go last by name.
	SortByStatus SortOrder = "status"
	SortByName   SortOrder = "name"
	SortByLevel  SortOrder = "level"
)

// Row is one line of the tracker board. Respawn is nil when nothing is
// recorded or the record expired.
type Row struct {
	Monster catalog.Monster
	Record  *Record
	Respawn *respawn.Snapshot
}

// Board evaluates every catalog monster against the snapshot at now.
func Board(c *catalog.Catalog, s Snapshot, now time.Time, order SortOrder) []Row {
	deathTimes := s.DeathTimes(c, now)
	monsters := c.List()
	rows := make([]Row, 0, len(monsters))
	for _, m := range monsters {
		row := Row{Monster: m}
		if deathTime := deathTimes[m.ID]; deathTime != nil {
			if snapshot, ok := respawn.Evaluate(deathTime, m.Window(), now); ok {
				r := s.records[m.ID]
				row.Record = &r
				row.Respawn = &snapshot
			}
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch order {
		case SortByName:
			return a.Monster.Name < b.Monster.Name
		case SortByLevel:
			if a.Monster.Level != b.Monster.Level {
				return a.Monster.Level > b.Monster.Level
			}
			return a.Monster.Name < b.Monster.Name
		default:
			return lessByStatus(a, b)
		}
	})
	return rows
}

func lessByStatus(a, b Row) bool {
	if (a.Respawn == nil) != (b.Respawn == nil) {
		return a.Respawn != nil
	}
	if a.Respawn == nil {
		return a.Monster.Name < b.Monster.Name
	}
	if ra, rb := a.Respawn.Status.Rank(), b.Respawn.Status.Rank(); ra != rb {
		return ra < rb
	}
	if a.Respawn.CountdownSeconds != b.Respawn.CountdownSeconds {
		return a.Respawn.CountdownSeconds < b.Respawn.CountdownSeconds
	}
	return a.Monster.Name < b.Monster.Name
}
