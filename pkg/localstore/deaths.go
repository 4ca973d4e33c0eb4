package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/catalog"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/log"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/respawn"
)

// DeathKeyPrefix prefixes the key of every stored death.
const DeathKeyPrefix = "mvp-death-"

// timeLayout matches ISO strings with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// StoredDeath is the JSON value kept under each death key.
type StoredDeath struct {
	DeathTime   string              `json:"deathTime"`
	MapPosition *models.MapPosition `json:"mapPosition,omitempty"`
}

func DeathKey(mvpID string) string {
	return DeathKeyPrefix + mvpID
}

// DeathStore keeps death records in a KV store. Malformed values are treated
// as absent; expired ones are deleted when read.
type DeathStore struct {
	kv      KV
	catalog *catalog.Catalog
	now     func() time.Time
}

type NewDeathStoreOptions struct {
	KV      KV
	Catalog *catalog.Catalog
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewDeathStore(opts NewDeathStoreOptions) *DeathStore {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &DeathStore{
		kv:      opts.KV,
		catalog: opts.Catalog,
		now:     now,
	}
}

// Load returns the active record of a monster.
func (s *DeathStore) Load(ctx context.Context, mvpID string) (*models.DeathRecord, bool, error) {
	monster, ok := s.catalog.Lookup(mvpID)
	if !ok {
		return nil, false, nil
	}
	value, ok, err := s.kv.Get(ctx, DeathKey(mvpID))
	if err != nil || !ok {
		return nil, false, err
	}
	record, ok := decodeDeath(mvpID, value)
	if !ok {
		return nil, false, nil
	}
	if respawn.IsExpired(record.DeathTime, monster.RespawnMaxDuration(), s.now()) {
		if err := s.kv.Delete(ctx, DeathKey(mvpID)); err != nil {
			log.Warn("Failed to prune expired record of %s: %v", mvpID, err)
		}
		return nil, false, nil
	}
	return record, true, nil
}

// ListDeaths returns every active record, pruning expired ones.
func (s *DeathStore) ListDeaths(ctx context.Context) ([]*models.DeathRecord, error) {
	keys, err := s.kv.Keys(ctx, DeathKeyPrefix)
	if err != nil {
		return nil, err
	}
	out := []*models.DeathRecord{}
	for _, key := range keys {
		record, ok, err := s.Load(ctx, strings.TrimPrefix(key, DeathKeyPrefix))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, record)
		}
	}
	return out, nil
}

// SetDeath stores a kill, moving a future death time back by whole days.
func (s *DeathStore) SetDeath(ctx context.Context, mvpID string, deathTime time.Time, position *models.MapPosition) (*models.DeathRecord, error) {
	if !s.catalog.Contains(mvpID) {
		return nil, fmt.Errorf("unknown monster %q", mvpID)
	}
	if position != nil && !position.Valid() {
		return nil, fmt.Errorf("map position out of range: (%g, %g)", position.X, position.Y)
	}

	deathTime = respawn.NormalizeDeathTime(deathTime, s.now()).UTC().Truncate(time.Millisecond)
	b, err := json.Marshal(&StoredDeath{
		DeathTime:   deathTime.Format(timeLayout),
		MapPosition: position,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %v", err)
	}
	if err := s.kv.Set(ctx, DeathKey(mvpID), string(b)); err != nil {
		return nil, err
	}
	return &models.DeathRecord{
		MvpID:       mvpID,
		DeathTime:   deathTime,
		MapPosition: position,
		UpdatedAt:   s.now(),
	}, nil
}

func (s *DeathStore) ClearDeath(ctx context.Context, mvpID string) error {
	return s.kv.Delete(ctx, DeathKey(mvpID))
}

// ClearAllDeaths removes every death key, malformed ones included.
func (s *DeathStore) ClearAllDeaths(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, DeathKeyPrefix)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := s.kv.Delete(ctx, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// Prune deletes expired and malformed records and reports how many went.
func (s *DeathStore) Prune(ctx context.Context) (int, error) {
	keys, err := s.kv.Keys(ctx, DeathKeyPrefix)
	if err != nil {
		return 0, err
	}
	now := s.now()
	pruned := 0
	for _, key := range keys {
		mvpID := strings.TrimPrefix(key, DeathKeyPrefix)
		value, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			return pruned, err
		}
		if !ok {
			continue
		}
		monster, known := s.catalog.Lookup(mvpID)
		record, valid := decodeDeath(mvpID, value)
		if known && valid && !respawn.IsExpired(record.DeathTime, monster.RespawnMaxDuration(), now) {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

func decodeDeath(mvpID string, value string) (*models.DeathRecord, bool) {
	stored := &StoredDeath{}
	if err := json.Unmarshal([]byte(value), stored); err != nil {
		log.Debug("Ignoring malformed record of %s: %v", mvpID, err)
		return nil, false
	}
	deathTime, err := time.Parse(time.RFC3339Nano, stored.DeathTime)
	if err != nil {
		log.Debug("Ignoring record of %s with invalid death time %q", mvpID, stored.DeathTime)
		return nil, false
	}
	return &models.DeathRecord{
		MvpID:       mvpID,
		DeathTime:   deathTime.UTC(),
		MapPosition: stored.MapPosition,
	}, true
}
