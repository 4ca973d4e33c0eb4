package state

import (
	"testing"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/respawn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.Monster{
		{ID: "1", Name: "Baphomet", Level: 81, RespawnMin: 60, RespawnMax: 90},
		{ID: "2", Name: "Drake", Level: 70, RespawnMin: 60, RespawnMax: 70},
		{ID: "3", Name: "Amon Ra", Level: 88, RespawnMin: 60, RespawnMax: 70},
		{ID: "4", Name: "Eddga", Level: 65, RespawnMin: 120, RespawnMax: 130},
	})
	require.NoError(t, err)
	return c
}

func record(rowID, mvpID string, deathTime time.Time) *models.DeathRecord {
	return &models.DeathRecord{ID: rowID, MvpID: mvpID, DeathTime: deathTime}
}

func mustReduce(t *testing.T, s Snapshot, a Action) Snapshot {
	t.Helper()
	next, changed := Reduce(s, a)
	require.True(t, changed, "action %T changed nothing", a)
	return next
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	before := mustReduce(t, Empty(), Loaded{Records: []*models.DeathRecord{record("row-1", "1", testNow)}})
	after := mustReduce(t, before, RecordCleared{MvpID: "1"})

	_, ok := before.Record("1")
	assert.True(t, ok)
	_, ok = after.Record("1")
	assert.False(t, ok)
	assert.Greater(t, after.Version(), before.Version())
}

func TestReduce_Loading(t *testing.T) {
	s := mustReduce(t, Empty(), LoadStarted{})
	assert.True(t, s.Loading())

	_, changed := Reduce(s, LoadStarted{})
	assert.False(t, changed)

	loaded := mustReduce(t, s, Loaded{Records: []*models.DeathRecord{record("row-1", "1", testNow)}})
	assert.False(t, loaded.Loading())
	assert.Equal(t, 1, loaded.Len())

	failed := mustReduce(t, mustReduce(t, loaded, LoadStarted{}), LoadFailed{})
	assert.False(t, failed.Loading())
	assert.Zero(t, failed.Len())
	assert.Empty(t, failed.LastError())
}

func TestReduce_ChangeFeed(t *testing.T) {
	s := Empty()

	s = mustReduce(t, s, Changed{Event: changes.Event{
		EventType: changes.EventInsert,
		New: &models.DeathRecord{
			ID:          "row-1",
			MvpID:       "1",
			DeathTime:   testNow,
			MapPosition: &models.MapPosition{X: 1, Y: 2},
		},
	}})
	mvpID, ok := s.MvpIDForRow("row-1")
	require.True(t, ok)
	assert.Equal(t, "1", mvpID)
	assert.Equal(t, &models.MapPosition{X: 1, Y: 2}, s.MapPosition("1"))

	// Last write observed wins.
	later := testNow.Add(time.Minute)
	s = mustReduce(t, s, Changed{Event: changes.Event{
		EventType: changes.EventUpdate,
		New:       record("row-1", "1", later),
	}})
	r, ok := s.Record("1")
	require.True(t, ok)
	assert.Equal(t, later, r.DeathTime)
	assert.Nil(t, s.MapPosition("1"))

	// Rows without a monster or death time are ignored.
	_, changed := Reduce(s, Changed{Event: changes.Event{EventType: changes.EventInsert, New: record("row-2", "", testNow)}})
	assert.False(t, changed)
	_, changed = Reduce(s, Changed{Event: changes.Event{EventType: changes.EventInsert, New: record("row-2", "2", time.Time{})}})
	assert.False(t, changed)

	// A delete carrying only the row id resolves the monster through the index.
	s = mustReduce(t, s, Changed{Event: changes.Event{
		EventType: changes.EventDelete,
		Old:       &models.DeathRecord{ID: "row-1"},
	}})
	_, ok = s.Record("1")
	assert.False(t, ok)
	_, ok = s.MvpIDForRow("row-1")
	assert.False(t, ok)

	_, changed = Reduce(s, Changed{Event: changes.Event{
		EventType: changes.EventDelete,
		Old:       &models.DeathRecord{ID: "unknown-row"},
	}})
	assert.False(t, changed)
}

func TestReduce_Errors(t *testing.T) {
	s := mustReduce(t, Empty(), Failed{Message: "boom"})
	assert.Equal(t, "boom", s.LastError())

	cleared := mustReduce(t, s, ErrorCleared{})
	assert.Empty(t, cleared.LastError())

	started := mustReduce(t, s, OperationStarted{})
	assert.Empty(t, started.LastError())

	_, changed := Reduce(cleared, ErrorCleared{})
	assert.False(t, changed)
}

func TestReduce_SignedOut(t *testing.T) {
	s := mustReduce(t, Empty(), Loaded{Records: []*models.DeathRecord{record("row-1", "1", testNow)}})
	s = mustReduce(t, s, Failed{Message: "boom"})
	s = mustReduce(t, s, SignedOut{})
	assert.Zero(t, s.Len())
	assert.Empty(t, s.LastError())
}

func TestSnapshot_DeathTimesFiltersExpired(t *testing.T) {
	c := testCatalog(t)
	s := mustReduce(t, Empty(), Loaded{Records: []*models.DeathRecord{
		record("row-1", "1", testNow.Add(-30*time.Minute)),
		// 70 minute max plus one hour grace.
		record("row-2", "2", testNow.Add(-130*time.Minute)),
		record("row-3", "3", testNow.Add(-130*time.Minute-time.Millisecond)),
	}})

	deathTimes := s.DeathTimes(c, testNow)
	assert.Len(t, deathTimes, 4)
	require.NotNil(t, deathTimes["1"])
	require.NotNil(t, deathTimes["2"], "exactly at the boundary is kept")
	assert.Nil(t, deathTimes["3"])
	assert.Nil(t, deathTimes["4"])
}

func TestBoard_SortByStatus(t *testing.T) {
	c := testCatalog(t)
	s := mustReduce(t, Empty(), Loaded{Records: []*models.DeathRecord{
		record("row-1", "1", testNow.Add(-10*time.Minute)), // far
		record("row-2", "2", testNow.Add(-65*time.Minute)), // window-active
		record("row-3", "3", testNow.Add(-58*time.Minute)), // near
	}})

	rows := Board(c, s, testNow, SortByStatus)
	require.Len(t, rows, 4)
	assert.Equal(t, "2", rows[0].Monster.ID)
	assert.Equal(t, respawn.StatusWindowActive, rows[0].Respawn.Status)
	assert.Equal(t, "3", rows[1].Monster.ID)
	assert.Equal(t, respawn.StatusNear, rows[1].Respawn.Status)
	assert.Equal(t, "1", rows[2].Monster.ID)
	assert.Equal(t, "4", rows[3].Monster.ID)
	assert.Nil(t, rows[3].Respawn)
	assert.Nil(t, rows[3].Record)
}

func TestBoard_OtherOrders(t *testing.T) {
	c := testCatalog(t)

	rows := Board(c, Empty(), testNow, SortByName)
	names := []string{}
	for _, r := range rows {
		names = append(names, r.Monster.Name)
	}
	assert.Equal(t, []string{"Amon Ra", "Baphomet", "Drake", "Eddga"}, names)

	rows = Board(c, Empty(), testNow, SortByLevel)
	assert.Equal(t, "Amon Ra", rows[0].Monster.Name)
	assert.Equal(t, "Eddga", rows[3].Monster.Name)
}

func TestStore_DispatchAndWatch(t *testing.T) {
	store := NewStore()
	ch, stop := store.Watch()

	initial := <-ch
	assert.Zero(t, initial.Len())

	store.Dispatch(RecordSet{Record: record("row-1", "1", testNow)})
	store.Dispatch(RecordSet{Record: record("row-2", "2", testNow)})

	latest := <-ch
	assert.Equal(t, 2, latest.Len())
	assert.Equal(t, 2, store.Get().Len())

	// Unchanged dispatches do not notify.
	store.Dispatch(RecordCleared{MvpID: "unknown"})
	select {
	case s := <-ch:
		t.Fatalf("unexpected snapshot version %d", s.Version())
	default:
	}

	stop()
	stop()
	_, ok := <-ch
	assert.False(t, ok)
	store.Dispatch(AllCleared{})
}
