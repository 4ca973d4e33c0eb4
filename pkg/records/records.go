// Package records owns the lifecycle of a user's death records: every write
// goes to the repository first and is then published as a change event.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/changes"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/respawn"
)

type ErrUnknownMonster struct {
	MvpID string
}

func (e *ErrUnknownMonster) Error() string {
	return fmt.Sprintf("unknown monster %q", e.MvpID)
}

func IsUnknownMonster(err error) bool {
	var target *ErrUnknownMonster
	return errors.As(err, &target)
}

type ErrInvalidPosition struct {
	Position models.MapPosition
}

func (e *ErrInvalidPosition) Error() string {
	return fmt.Sprintf("map position out of range: (%g, %g)", e.Position.X, e.Position.Y)
}

func IsInvalidPosition(err error) bool {
	var target *ErrInvalidPosition
	return errors.As(err, &target)
}

// Entry is an active record together with its respawn state.
type Entry struct {
	*models.DeathRecord
	Respawn respawn.Snapshot `json:"respawn"`
}

type Service struct {
	repository repositories.Repository
	broker     changes.Broker
	catalog    *catalog.Catalog
	now        func() time.Time
}

type NewServiceOptions struct {
	Repository repositories.Repository
	Broker     changes.Broker
	Catalog    *catalog.Catalog
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewService(opts NewServiceOptions) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repository: opts.Repository,
		broker:     opts.Broker,
		catalog:    opts.Catalog,
		now:        now,
	}
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// List returns the user's non-expired records evaluated at now.
func (s *Service) List(ctx context.Context, userID string, now time.Time) ([]Entry, error) {
	stored, err := s.repository.ListDeaths(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deaths: %v", err)
	}

	entries := make([]Entry, 0, len(stored))
	for _, record := range stored {
		monster, ok := s.catalog.Lookup(record.MvpID)
		if !ok {
			log.Warn("Skipping record %s for unknown monster %s", record.ID, record.MvpID)
			continue
		}
		if respawn.IsExpired(record.DeathTime, monster.RespawnMaxDuration(), now) {
			continue
		}
		deathTime := record.DeathTime
		snapshot, ok := respawn.Evaluate(&deathTime, monster.Window(), now)
		if !ok {
			continue
		}
		entries = append(entries, Entry{DeathRecord: record, Respawn: snapshot})
	}
	return entries, nil
}

// SetDeathTime records a kill. A death time in the future is moved back by
// whole days; a nil position clears any stored one.
func (s *Service) SetDeathTime(ctx context.Context, userID string, mvpID string, deathTime time.Time, position *models.MapPosition) (*models.DeathRecord, error) {
	if !s.catalog.Contains(mvpID) {
		return nil, &ErrUnknownMonster{MvpID: mvpID}
	}
	if position != nil && !position.Valid() {
		return nil, &ErrInvalidPosition{Position: *position}
	}
	if deathTime.IsZero() {
		return nil, fmt.Errorf("death time is required")
	}

	now := s.now()
	record := &models.DeathRecord{
		UserID:      userID,
		MvpID:       mvpID,
		DeathTime:   respawn.NormalizeDeathTime(deathTime, now).UTC().Truncate(time.Millisecond),
		MapPosition: position,
		UpdatedAt:   now,
	}

	stored, inserted, err := s.repository.UpsertDeath(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert death: %v", err)
	}

	eventType := changes.EventUpdate
	if inserted {
		eventType = changes.EventInsert
	}
	s.publish(ctx, changes.Event{
		EventType: eventType,
		UserID:    userID,
		New:       stored,
	})
	return stored, nil
}

// Clear removes the record of one monster. A missing record is not an error.
func (s *Service) Clear(ctx context.Context, userID string, mvpID string) error {
	deleted, err := s.repository.DeleteDeath(ctx, userID, mvpID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete death: %v", err)
	}
	s.publish(ctx, changes.Event{
		EventType: changes.EventDelete,
		UserID:    userID,
		Old:       deleted,
	})
	return nil
}

// ClearAll removes every record of the user and publishes one delete per row.
func (s *Service) ClearAll(ctx context.Context, userID string) (int, error) {
	deleted, err := s.repository.DeleteAllDeaths(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete deaths: %v", err)
	}
	for _, record := range deleted {
		s.publish(ctx, changes.Event{
			EventType: changes.EventDelete,
			UserID:    userID,
			Old:       record,
		})
	}
	return len(deleted), nil
}

// publish never fails the write: the record is already stored.
func (s *Service) publish(ctx context.Context, event changes.Event) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, event); err != nil {
		log.Error("Failed to publish %s event for %s: %v", event.EventType, event.MvpID(), err)
	}
}
