package bet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/underxbet/inplay-engine/internal/core/decision"
	"github.com/underxbet/inplay-engine/internal/core/feature"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// Coordinator turns suitable decisions into persisted bets and
// published signals, at most one bet per event.
type Coordinator struct {
	store Store
	sink  Sink
	ttl   time.Duration
}

func NewCoordinator(store Store, sink Sink, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Coordinator{store: store, sink: sink, ttl: ttl}
}

// Place persists the bet and publishes exactly one placement signal,
// returned to the caller for journaling. Returns (nil, nil) when the
// decision is unsuitable or a bet for the event already exists. A
// non-nil error means the operation should be retried on the next
// poll: either the store rejected the write, or the record was
// persisted but the signal did not go out.
func (c *Coordinator) Place(ctx context.Context, d decision.Decision, f *feature.Features) (*Signal, error) {
	if !d.Suitable {
		return nil, nil
	}

	rec := &Record{
		EventID:        d.EventID,
		Market:         d.Market,
		Stake:          d.Stake,
		StakeStrategy:  d.StakeStrategy,
		RiskLevel:      d.RiskLevel,
		Confidence:     d.Confidence,
		HomeGoalsAtBet: f.HomeGoals,
		AwayGoalsAtBet: f.AwayGoals,
		MinuteAtBet:    f.Minute,
		League:         f.League,
		HomeTeam:       f.HomeTeam,
		AwayTeam:       f.AwayTeam,
		PlacedAt:       time.Now().UTC(),
	}

	created, err := c.store.PlaceIfAbsent(ctx, rec, c.ttl)
	if err != nil {
		return nil, fmt.Errorf("place bet %s: %w", d.EventID, err)
	}
	if !created {
		// A concurrent or earlier evaluation won the race.
		return nil, nil
	}

	sig := Signal{
		ID:            uuid.NewString(),
		EventID:       d.EventID,
		Action:        "place",
		Market:        d.Market,
		Stake:         d.Stake,
		StakeStrategy: d.StakeStrategy,
		RiskLevel:     d.RiskLevel,
		Confidence:    d.Confidence,
		Odds:          f.Odds[d.Market],
		Score:         f.ScoreString(),
		Minute:        f.Minute,
		League:        f.League,
		HomeTeam:      f.HomeTeam,
		AwayTeam:      f.AwayTeam,
		Timestamp:     time.Now().Unix(),
	}
	if err := c.sink.PublishBet(ctx, sig); err != nil {
		telemetry.Metrics.BetSignalErrors.Inc()
		return nil, fmt.Errorf("bet %s persisted but signal not published: %w", d.EventID, err)
	}

	telemetry.Metrics.BetsPlaced.Inc()
	telemetry.Metrics.ActiveBets.Inc()
	telemetry.Infof("bet placed: %s %s stake=%.2f risk=%s conf=%.2f at %d' (%s)",
		d.EventID, d.Market, d.Stake, d.RiskLevel, d.Confidence, f.Minute, f.ScoreString())
	return &sig, nil
}
