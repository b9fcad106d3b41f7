package feedws

import (
	"sync"
	"time"

	"github.com/underxbet/inplay-engine/internal/core/feature"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// staleAfter drops events whose feed went quiet; a finished match
// stops pushing updates well before this.
const staleAfter = 5 * time.Minute

// Store keeps the latest snapshot per event. The poller reads the
// whole set each tick; the websocket client overwrites entries as
// updates arrive.
type Store struct {
	mu        sync.RWMutex
	latest    map[string]*feature.Snapshot
	updatedAt map[string]time.Time
}

func NewStore() *Store {
	return &Store{
		latest:    make(map[string]*feature.Snapshot),
		updatedAt: make(map[string]time.Time),
	}
}

func (s *Store) Put(snap *feature.Snapshot) {
	if snap == nil || snap.ID == "" {
		return
	}
	s.mu.Lock()
	s.latest[snap.ID] = snap
	s.updatedAt[snap.ID] = time.Now()
	telemetry.Metrics.TrackedEvents.Set(int64(len(s.latest)))
	s.mu.Unlock()
}

// Snapshots returns the current live set, evicting stale entries.
func (s *Store) Snapshots() []*feature.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	out := make([]*feature.Snapshot, 0, len(s.latest))
	for id, snap := range s.latest {
		if s.updatedAt[id].Before(cutoff) {
			delete(s.latest, id)
			delete(s.updatedAt, id)
			continue
		}
		out = append(out, snap)
	}
	telemetry.Metrics.TrackedEvents.Set(int64(len(s.latest)))
	return out
}

func (s *Store) Get(eventID string) (*feature.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.latest[eventID]
	return snap, ok
}
