package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/core/cashout"
	"github.com/underxbet/inplay-engine/internal/core/decision"
	"github.com/underxbet/inplay-engine/internal/core/feature"
	"github.com/underxbet/inplay-engine/internal/core/rules"
)

type memStore struct {
	mu     sync.Mutex
	recs   map[string]*bet.Record
	getErr error
}

func newMemStore() *memStore { return &memStore{recs: map[string]*bet.Record{}} }

func (s *memStore) PlaceIfAbsent(_ context.Context, rec *bet.Record, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[rec.EventID]; ok {
		return false, nil
	}
	cp := *rec
	s.recs[rec.EventID] = &cp
	return true, nil
}

func (s *memStore) Get(_ context.Context, eventID string) (*bet.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.recs[eventID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) MarkCashedOut(_ context.Context, eventID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.recs[eventID]; ok {
		rec.Cashout = true
		rec.CashoutReason = reason
	}
	return nil
}

func (s *memStore) AppendMatchEvent(context.Context, string, bet.MatchEvent) error { return nil }
func (s *memStore) MatchEvents(context.Context, string) ([]bet.MatchEvent, error) {
	return nil, nil
}

func (s *memStore) ActiveEventIDs(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, rec := range s.recs {
		if !rec.Cashout {
			out = append(out, id)
		}
	}
	return out, nil
}

type memSink struct {
	mu       sync.Mutex
	bets     []bet.Signal
	cashouts []bet.CashoutSignal
}

func (s *memSink) PublishBet(_ context.Context, sig bet.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bets = append(s.bets, sig)
	return nil
}

func (s *memSink) PublishCashout(_ context.Context, sig bet.CashoutSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cashouts = append(s.cashouts, sig)
	return nil
}

type staticSource struct{ snaps []*feature.Snapshot }

func (s *staticSource) Snapshots() []*feature.Snapshot { return s.snaps }

type staticRules struct{ set []rules.Rule }

func (s *staticRules) Current() []rules.Rule { return s.set }

type recordingJournal struct {
	mu        sync.Mutex
	decisions []decision.Decision
	bets      []bet.Signal
	cashouts  []bet.CashoutSignal
	panicOn   string
}

func (j *recordingJournal) RecordDecision(d decision.Decision) {
	if d.EventID == j.panicOn {
		panic("journal exploded")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.decisions = append(j.decisions, d)
}

func (j *recordingJournal) RecordBet(sig bet.Signal) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.bets = append(j.bets, sig)
}

func (j *recordingJournal) RecordCashout(sig bet.CashoutSignal) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cashouts = append(j.cashouts, sig)
}

func liveSnapshot(id string, minute, home, away int, avg float64) *feature.Snapshot {
	minuteJSON, _ := json.Marshal(minute)
	avgJSON, _ := json.Marshal(avg)
	total := home + away
	oddsJSON, _ := json.Marshal(map[string]float64{
		feature.UnderMarket(total + 3): 1.03,
	})
	return &feature.Snapshot{
		ID:           id,
		Minute:       minuteJSON,
		Score:        scoreString(home, away),
		IsLive:       true,
		Odds:         oddsJSON,
		HomeAvgGoals: avgJSON,
		AwayAvgGoals: avgJSON,
	}
}

func scoreString(home, away int) string {
	return fmt.Sprintf("%d - %d", home, away)
}

func newTestPoller(store bet.Store, sink bet.Sink, source SnapshotSource, jr Journal) *Poller {
	return New(
		source,
		&staticRules{set: rules.Defaults()},
		decision.NewBlender(nil, time.Second),
		bet.NewCoordinator(store, sink, time.Hour),
		cashout.NewMonitor(store, sink),
		jr, nil, nil,
		Options{Interval: time.Second, MaxConcurrentEvents: 4},
	)
}

func TestRunOncePlacesSuitableBet(t *testing.T) {
	store := newMemStore()
	sink := &memSink{}
	jr := &recordingJournal{}
	source := &staticSource{snaps: []*feature.Snapshot{
		liveSnapshot("ev1", 55, 1, 1, 1.2), // inside every window
		liveSnapshot("ev2", 20, 0, 0, 1.2), // too early, no goals
	}}

	p := newTestPoller(store, sink, source, jr)
	p.RunOnce(context.Background())

	require.Len(t, sink.bets, 1)
	assert.Equal(t, "ev1", sink.bets[0].EventID)
	assert.Len(t, jr.bets, 1)
	assert.Len(t, jr.decisions, 2, "unsuitable decisions are journaled too")

	rec, err := store.Get(context.Background(), "ev1")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestRunOnceIdempotentAcrossTicks(t *testing.T) {
	store := newMemStore()
	sink := &memSink{}
	source := &staticSource{snaps: []*feature.Snapshot{
		liveSnapshot("ev1", 55, 1, 1, 1.2),
	}}

	p := newTestPoller(store, sink, source, &recordingJournal{})
	p.RunOnce(context.Background())
	p.RunOnce(context.Background())
	p.RunOnce(context.Background())

	assert.Len(t, sink.bets, 1, "same event across ticks places once")
}

func TestRunOnceAvgGoalsGate(t *testing.T) {
	store := newMemStore()
	sink := &memSink{}
	jr := &recordingJournal{}
	source := &staticSource{snaps: []*feature.Snapshot{
		liveSnapshot("ev1", 55, 1, 1, 1.8), // combined 3.6 > 3.0
	}}

	p := newTestPoller(store, sink, source, jr)
	p.RunOnce(context.Background())

	assert.Empty(t, sink.bets)
	require.Len(t, jr.decisions, 1)
	assert.False(t, jr.decisions[0].Suitable)
	assert.Contains(t, jr.decisions[0].RulesFailed, "avg_goals")
}

func TestRunOnceTrackedEventGoesToMonitor(t *testing.T) {
	store := newMemStore()
	sink := &memSink{}
	jr := &recordingJournal{}

	// Pre-existing bet at 1-1; the feed now shows 3-1 at minute 65.
	placed, err := store.PlaceIfAbsent(context.Background(), &bet.Record{
		EventID: "ev1", Market: "under_5.5",
		HomeGoalsAtBet: 1, AwayGoalsAtBet: 1, MinuteAtBet: 55,
	}, time.Hour)
	require.NoError(t, err)
	require.True(t, placed)

	source := &staticSource{snaps: []*feature.Snapshot{
		liveSnapshot("ev1", 65, 3, 1, 1.2),
	}}

	p := newTestPoller(store, sink, source, jr)
	p.RunOnce(context.Background())

	assert.Empty(t, sink.bets, "tracked events are never re-evaluated")
	require.Len(t, sink.cashouts, 1)
	assert.Equal(t, cashout.Reason2GoalsBefore70, sink.cashouts[0].Reason)
	assert.Len(t, jr.cashouts, 1)
}

func TestRunOnceStoreErrorSkipsEvent(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("store down")
	sink := &memSink{}
	source := &staticSource{snaps: []*feature.Snapshot{
		liveSnapshot("ev1", 55, 1, 1, 1.2),
	}}

	p := newTestPoller(store, sink, source, &recordingJournal{})
	p.RunOnce(context.Background())

	assert.Empty(t, sink.bets, "unreachable store must not be read as no active bet")
}

func TestRunOncePanicIsolated(t *testing.T) {
	store := newMemStore()
	sink := &memSink{}
	jr := &recordingJournal{panicOn: "ev1"}
	source := &staticSource{snaps: []*feature.Snapshot{
		liveSnapshot("ev1", 55, 1, 1, 1.2),
		liveSnapshot("ev2", 55, 1, 1, 1.2),
	}}

	p := newTestPoller(store, sink, source, jr)
	p.RunOnce(context.Background())

	// ev1's goroutine panicked in the journal, ev2 still placed.
	require.Len(t, sink.bets, 1)
	assert.Equal(t, "ev2", sink.bets[0].EventID)
}

func TestRunOnceSkipsNotLive(t *testing.T) {
	store := newMemStore()
	sink := &memSink{}
	snap := liveSnapshot("ev1", 55, 1, 1, 1.2)
	snap.IsLive = false
	source := &staticSource{snaps: []*feature.Snapshot{snap}}

	p := newTestPoller(store, sink, source, &recordingJournal{})
	p.RunOnce(context.Background())

	assert.Empty(t, sink.bets)
}
