package client

import (
	"context"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/state"
)

// StorageErrorMessage is shown when a write fails even after refreshing the session.
const StorageErrorMessage = "Sessão expirada ou erro de rede. Tente novamente ou faça login."

// Tracker writes records through a Backend and folds the results into the
// state store.
type Tracker struct {
	backend  Backend
	sessions SessionSource
	store    state.StateManager
	now      func() time.Time
}

type NewTrackerOptions struct {
	Backend Backend
	// Sessions gates every operation. Nil runs without a session, as the
	// offline store does.
	Sessions SessionSource
	Store    state.StateManager
	Now      func() time.Time
}

func NewTracker(opts NewTrackerOptions) *Tracker {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		backend:  opts.Backend,
		sessions: opts.Sessions,
		store:    opts.Store,
		now:      now,
	}
}

func (t *Tracker) Snapshot() state.Snapshot {
	return t.store.Get()
}

// Refresh replaces the tracked records with the backend's. A failed load
// leaves the tracker empty without surfacing an error message.
func (t *Tracker) Refresh(ctx context.Context) error {
	if err := t.requireSession(ctx); err != nil {
		return err
	}
	t.store.Dispatch(state.LoadStarted{})

	var records []*models.DeathRecord
	err := t.withAuthRetry(ctx, func(ctx context.Context) error {
		var err error
		records, err = t.backend.ListDeaths(ctx)
		return err
	})
	if err != nil {
		log.Warn("Failed to load records: %v", err)
		t.store.Dispatch(state.LoadFailed{})
		return err
	}
	t.store.Dispatch(state.Loaded{Records: records})
	return nil
}

// SetDeathTime records a kill. A nil death time means now.
func (t *Tracker) SetDeathTime(ctx context.Context, mvpID string, deathTime *time.Time, position *models.MapPosition) error {
	at := t.now()
	if deathTime != nil {
		at = *deathTime
	}
	return t.run(ctx, func(ctx context.Context) error {
		record, err := t.backend.SetDeath(ctx, mvpID, at, position)
		if err != nil {
			return err
		}
		t.store.Dispatch(state.RecordSet{Record: record})
		return nil
	})
}

func (t *Tracker) ClearRecord(ctx context.Context, mvpID string) error {
	return t.run(ctx, func(ctx context.Context) error {
		if err := t.backend.ClearDeath(ctx, mvpID); err != nil {
			return err
		}
		t.store.Dispatch(state.RecordCleared{MvpID: mvpID})
		return nil
	})
}

func (t *Tracker) ClearAll(ctx context.Context) error {
	return t.run(ctx, func(ctx context.Context) error {
		if _, err := t.backend.ClearAllDeaths(ctx); err != nil {
			return err
		}
		t.store.Dispatch(state.AllCleared{})
		return nil
	})
}

func (t *Tracker) ClearError() {
	t.store.Dispatch(state.ErrorCleared{})
}

// HandleAuthStateChange forgets every record on sign out. It is meant to be
// registered with SessionManager.OnAuthStateChange.
func (t *Tracker) HandleAuthStateChange(session *Session) {
	if session == nil {
		t.store.Dispatch(state.SignedOut{})
	}
}

// run is the shared path of every write: reset the last error, try once,
// refresh the session on an auth failure and try again. Any failure left
// becomes the storage error message and the state stays as it was.
func (t *Tracker) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := t.requireSession(ctx); err != nil {
		return err
	}
	t.store.Dispatch(state.OperationStarted{})
	if err := t.withAuthRetry(ctx, fn); err != nil {
		log.Error("Storage operation failed: %v", err)
		t.store.Dispatch(state.Failed{Message: StorageErrorMessage})
		return err
	}
	return nil
}

func (t *Tracker) withAuthRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || t.sessions == nil || !IsAuthError(err) {
		return err
	}
	log.Debug("Retrying after auth error: %v", err)
	if _, refreshErr := t.sessions.RefreshSession(ctx); refreshErr != nil {
		return refreshErr
	}
	return fn(ctx)
}

func (t *Tracker) requireSession(ctx context.Context) error {
	if t.sessions == nil {
		return nil
	}
	session, err := t.sessions.GetSession(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		return &ErrLoginRequired{}
	}
	return nil
}
