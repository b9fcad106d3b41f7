package cashout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/core/feature"
)

type fakeStore struct {
	rec      *bet.Record
	getErr   error
	markErr  error
	events   []bet.MatchEvent
	markedAs string
}

func (s *fakeStore) PlaceIfAbsent(context.Context, *bet.Record, time.Duration) (bool, error) {
	return false, errors.New("not used")
}

func (s *fakeStore) Get(context.Context, string) (*bet.Record, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.rec == nil {
		return nil, nil
	}
	cp := *s.rec
	return &cp, nil
}

func (s *fakeStore) MarkCashedOut(_ context.Context, _ string, reason string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.rec.Cashout = true
	s.rec.CashoutReason = reason
	s.markedAs = reason
	return nil
}

func (s *fakeStore) AppendMatchEvent(_ context.Context, _ string, ev bet.MatchEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) MatchEvents(context.Context, string) ([]bet.MatchEvent, error) {
	return s.events, nil
}

func (s *fakeStore) ActiveEventIDs(context.Context) ([]string, error) { return nil, nil }

type fakeSink struct {
	cashouts []bet.CashoutSignal
	fail     bool
}

func (s *fakeSink) PublishBet(context.Context, bet.Signal) error { return nil }

func (s *fakeSink) PublishCashout(_ context.Context, sig bet.CashoutSignal) error {
	if s.fail {
		return errors.New("broker down")
	}
	s.cashouts = append(s.cashouts, sig)
	return nil
}

func trackedRecord() *bet.Record {
	return &bet.Record{
		EventID:        "ev1",
		Market:         "under_5.5",
		HomeGoalsAtBet: 1,
		AwayGoalsAtBet: 1,
		MinuteAtBet:    55,
		PlacedAt:       time.Now(),
	}
}

func featuresAt(home, away, minute int) *feature.Features {
	return &feature.Features{
		EventID:    "ev1",
		Minute:     minute,
		HomeGoals:  home,
		AwayGoals:  away,
		TotalGoals: home + away,
	}
}

func TestCheckUntrackedEvent(t *testing.T) {
	store := &fakeStore{}
	m := NewMonitor(store, &fakeSink{})

	sig, tracked, err := m.Check(context.Background(), featuresAt(1, 1, 60))
	require.NoError(t, err)
	assert.False(t, tracked)
	assert.Nil(t, sig)
}

func TestCheckNoTriggerWhileScoreHolds(t *testing.T) {
	store := &fakeStore{rec: trackedRecord()}
	sink := &fakeSink{}
	m := NewMonitor(store, sink)

	sig, tracked, err := m.Check(context.Background(), featuresAt(1, 1, 75))
	require.NoError(t, err)
	assert.True(t, tracked)
	assert.Nil(t, sig)
	assert.Empty(t, sink.cashouts)
}

func TestCheckTwoGoalsBefore70(t *testing.T) {
	store := &fakeStore{rec: trackedRecord()}
	sink := &fakeSink{}
	m := NewMonitor(store, sink)

	sig, tracked, err := m.Check(context.Background(), featuresAt(3, 1, 69))
	require.NoError(t, err)
	assert.True(t, tracked)
	require.NotNil(t, sig)
	assert.Equal(t, Reason2GoalsBefore70, sig.Reason)
	assert.Equal(t, "normal", sig.Urgency)
	assert.Equal(t, Reason2GoalsBefore70, store.markedAs)
}

func TestCheckTwoGoalsAt70DoesNotFire(t *testing.T) {
	store := &fakeStore{rec: trackedRecord()}
	sink := &fakeSink{}
	m := NewMonitor(store, sink)

	sig, _, err := m.Check(context.Background(), featuresAt(3, 1, 70))
	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Empty(t, sink.cashouts)
}

func TestCheckThirdGoalWindows(t *testing.T) {
	cases := []struct {
		minute int
		reason string
		fires  bool
	}{
		{75, Reason3rdGoalBefore82, true},
		{81, Reason3rdGoalBefore82, true},
		{82, Reason3rdGoalLate, true},
		{84, Reason3rdGoalLate, true},
		{85, "", false},
		{88, "", false},
	}
	for _, tc := range cases {
		store := &fakeStore{rec: trackedRecord()}
		sink := &fakeSink{}
		m := NewMonitor(store, sink)

		sig, _, err := m.Check(context.Background(), featuresAt(3, 2, tc.minute))
		require.NoError(t, err, "minute %d", tc.minute)
		if tc.fires {
			require.NotNil(t, sig, "minute %d", tc.minute)
			assert.Equal(t, tc.reason, sig.Reason, "minute %d", tc.minute)
		} else {
			assert.Nil(t, sig, "minute %d", tc.minute)
		}
	}
}

func TestCheckGoalCancellationFiresAnyMinute(t *testing.T) {
	// Minute 88 is outside every threshold window, but a score rewind
	// still forces the emergency exit.
	store := &fakeStore{rec: trackedRecord()}
	sink := &fakeSink{}
	m := NewMonitor(store, sink)

	sig, tracked, err := m.Check(context.Background(), featuresAt(1, 0, 88))
	require.NoError(t, err)
	assert.True(t, tracked)
	require.NotNil(t, sig)
	assert.Equal(t, ReasonGoalCanceled, sig.Reason)
	assert.Equal(t, "high", sig.Urgency)

	require.Len(t, store.events, 1)
	assert.Equal(t, "goal_canceled", store.events[0].Type)
}

func TestCheckCancellationPrecedesThresholds(t *testing.T) {
	// Current total below the bet total always reads as a cancellation,
	// regardless of what the threshold table would say.
	rec := trackedRecord()
	rec.HomeGoalsAtBet, rec.AwayGoalsAtBet = 3, 2
	store := &fakeStore{rec: rec}
	m := NewMonitor(store, &fakeSink{})

	sig, _, err := m.Check(context.Background(), featuresAt(2, 2, 65))
	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, ReasonGoalCanceled, sig.Reason)
}

func TestCheckSettledShortCircuits(t *testing.T) {
	rec := trackedRecord()
	rec.Cashout = true
	store := &fakeStore{rec: rec}
	sink := &fakeSink{}
	m := NewMonitor(store, sink)

	sig, tracked, err := m.Check(context.Background(), featuresAt(4, 1, 60))
	require.NoError(t, err)
	assert.True(t, tracked)
	assert.Nil(t, sig, "one signal per bet")
	assert.Empty(t, sink.cashouts)
}

func TestCheckStoreErrorPropagates(t *testing.T) {
	store := &fakeStore{getErr: errors.New("store down")}
	m := NewMonitor(store, &fakeSink{})

	sig, tracked, err := m.Check(context.Background(), featuresAt(1, 1, 60))
	assert.Error(t, err, "store failure must not read as no active bet")
	assert.False(t, tracked)
	assert.Nil(t, sig)
}

func TestCheckPublishFailureLeavesBetLive(t *testing.T) {
	store := &fakeStore{rec: trackedRecord()}
	sink := &fakeSink{fail: true}
	m := NewMonitor(store, sink)

	sig, tracked, err := m.Check(context.Background(), featuresAt(3, 1, 65))
	assert.Error(t, err)
	assert.True(t, tracked)
	assert.Nil(t, sig)
	assert.False(t, store.rec.Cashout, "not settled, next poll retries")
}

func TestTriggerTable(t *testing.T) {
	cases := []struct {
		goals, minute int
		reason        string
		ok            bool
	}{
		{1, 60, "", false},
		{2, 69, Reason2GoalsBefore70, true},
		{2, 70, "", false},
		{3, 69, Reason2GoalsBefore70, true},
		{3, 81, Reason3rdGoalBefore82, true},
		{3, 82, Reason3rdGoalLate, true},
		{3, 84, Reason3rdGoalLate, true},
		{3, 85, "", false},
		{4, 80, Reason3rdGoalBefore82, true},
	}
	for _, tc := range cases {
		reason, ok := Trigger(tc.goals, tc.minute)
		assert.Equal(t, tc.ok, ok, "goals=%d minute=%d", tc.goals, tc.minute)
		assert.Equal(t, tc.reason, reason, "goals=%d minute=%d", tc.goals, tc.minute)
	}
}
