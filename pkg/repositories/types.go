package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
)

type ErrNotFound struct {
}

func (e *ErrNotFound) Error() string {
	return "not found"
}

func IsNotFound(err error) bool {
	var target *ErrNotFound
	return errors.As(err, &target)
}

// ErrConflict is returned when a unique field is already taken
type ErrConflict struct {
	Field string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

func IsConflict(err error) bool {
	var target *ErrConflict
	return errors.As(err, &target)
}

// timeLayout keeps millisecond precision, matching ISO strings produced by clients.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %v", s, err)
	}
	return t.UTC(), nil
}

func encodePosition(p *models.MapPosition) (interface{}, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode map position: %v", err)
	}
	return string(b), nil
}

func decodePosition(b []byte) (*models.MapPosition, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	p := &models.MapPosition{}
	if err := json.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("failed to decode map position: %v", err)
	}
	return p, nil
}

func prepareRecord(record *models.DeathRecord, newID func() string) *models.DeathRecord {
	stored := *record
	if stored.ID == "" {
		stored.ID = newID()
	}
	stored.DeathTime = stored.DeathTime.UTC().Truncate(time.Millisecond)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	stored.UpdatedAt = stored.UpdatedAt.UTC().Truncate(time.Millisecond)
	return &stored
}
