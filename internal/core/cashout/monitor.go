package cashout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/core/feature"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// Exit reasons, most urgent first. A goal cancellation (VAR overturn)
// means the under line we bought is no longer the line we priced, so
// it always wins over the goal thresholds.
const (
	ReasonGoalCanceled    = "goal_canceled_emergency"
	Reason2GoalsBefore70  = "2_goals_before_70"
	Reason3rdGoalBefore82 = "3rd_goal_before_82"
	Reason3rdGoalLate     = "3rd_goal_after_82_before_85"
)

// Monitor checks tracked bets against fresh match state and publishes
// cash-out signals.
type Monitor struct {
	store bet.Store
	sink  bet.Sink
}

func NewMonitor(store bet.Store, sink bet.Sink) *Monitor {
	return &Monitor{store: store, sink: sink}
}

// Check compares f against the stored bet for the event. tracked
// reports whether a record exists at all, so the caller can route
// untracked events to decision evaluation instead. The returned signal
// is non-nil only when a cash-out fired on this call.
//
// A store read failure is returned as an error: it must not be
// mistaken for "no active bet", or the caller would re-evaluate and
// risk a duplicate position.
func (m *Monitor) Check(ctx context.Context, f *feature.Features) (sig *bet.CashoutSignal, tracked bool, err error) {
	rec, err := m.store.Get(ctx, f.EventID)
	if err != nil {
		return nil, false, fmt.Errorf("cashout check %s: %w", f.EventID, err)
	}
	if rec == nil {
		return nil, false, nil
	}
	if rec.Cashout {
		// Already settled. One signal per bet.
		return nil, true, nil
	}

	curTotal := f.TotalGoals
	betTotal := rec.TotalAtBet()

	var reason, urgency string
	switch {
	case curTotal < betTotal:
		// Score went backwards: a goal was overturned. Fire regardless
		// of minute.
		reason = ReasonGoalCanceled
		urgency = "high"
		m.appendEvent(ctx, f, "goal_canceled")
	case curTotal > betTotal:
		m.appendEvent(ctx, f, "goal")
		r, ok := Trigger(curTotal-betTotal, f.Minute)
		if !ok {
			return nil, true, nil
		}
		reason = r
		urgency = "normal"
	default:
		return nil, true, nil
	}

	out := bet.CashoutSignal{
		ID:        uuid.NewString(),
		EventID:   f.EventID,
		Action:    "cashout",
		Reason:    reason,
		Urgency:   urgency,
		Market:    rec.Market,
		Score:     f.ScoreString(),
		Minute:    f.Minute,
		Timestamp: time.Now().Unix(),
	}
	if err := m.sink.PublishCashout(ctx, out); err != nil {
		// Not marked settled, so the next poll retries the publish.
		return nil, true, fmt.Errorf("cashout %s: publish: %w", f.EventID, err)
	}
	if err := m.store.MarkCashedOut(ctx, f.EventID, reason); err != nil {
		// The signal went out; surface the mark failure so operators
		// see the record may refire.
		return &out, true, fmt.Errorf("cashout %s: mark settled: %w", f.EventID, err)
	}

	telemetry.Metrics.CashoutsFired.Inc()
	telemetry.Metrics.ActiveBets.Dec()
	telemetry.Warnf("cashout fired: %s reason=%s urgency=%s score=%s minute=%d",
		f.EventID, reason, urgency, f.ScoreString(), f.Minute)
	return &out, true, nil
}

// Trigger maps goals scored since placement and the current minute to
// an exit reason.
func Trigger(goalsScored, minute int) (string, bool) {
	switch {
	case goalsScored >= 2 && minute < 70:
		return Reason2GoalsBefore70, true
	case goalsScored >= 3 && minute < 82:
		return Reason3rdGoalBefore82, true
	case goalsScored >= 3 && minute >= 82 && minute < 85:
		return Reason3rdGoalLate, true
	}
	return "", false
}

// appendEvent is best effort; history gaps never block a cash-out.
func (m *Monitor) appendEvent(ctx context.Context, f *feature.Features, typ string) {
	ev := bet.MatchEvent{
		Type:      typ,
		Minute:    f.Minute,
		Score:     f.ScoreString(),
		Timestamp: time.Now().Unix(),
	}
	if err := m.store.AppendMatchEvent(ctx, f.EventID, ev); err != nil {
		telemetry.Debugf("append match event %s: %v", f.EventID, err)
	}
}
