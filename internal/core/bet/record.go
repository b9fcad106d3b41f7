package bet

import (
	"context"
	"time"
)

// Record is the persisted state of one placed bet, keyed by event id.
type Record struct {
	EventID        string    `json:"event_id"`
	Market         string    `json:"market"`
	Stake          float64   `json:"stake"`
	StakeStrategy  string    `json:"stake_strategy"`
	RiskLevel      string    `json:"risk_level"`
	Confidence     float64   `json:"confidence"`
	HomeGoalsAtBet int       `json:"home_goals_at_bet"`
	AwayGoalsAtBet int       `json:"away_goals_at_bet"`
	MinuteAtBet    int       `json:"minute_at_bet"`
	League         string    `json:"league,omitempty"`
	HomeTeam       string    `json:"home_team,omitempty"`
	AwayTeam       string    `json:"away_team,omitempty"`
	PlacedAt       time.Time `json:"placed_at"`
	Cashout        bool      `json:"cashout"`
	CashoutReason  string    `json:"cashout_reason,omitempty"`
}

func (r *Record) TotalAtBet() int { return r.HomeGoalsAtBet + r.AwayGoalsAtBet }

// MatchEvent is one observed in-play incident appended to a bet's
// history, used for post-hoc review of cash-out timing.
type MatchEvent struct {
	Type      string `json:"type"` // "goal" or "goal_canceled"
	Minute    int    `json:"minute"`
	Score     string `json:"score"`
	Timestamp int64  `json:"timestamp"`
}

// Signal is the placement instruction published downstream. One signal
// per placed bet, identified by a fresh uuid.
type Signal struct {
	ID            string  `json:"id"`
	EventID       string  `json:"event_id"`
	Action        string  `json:"action"` // always "place"
	Market        string  `json:"market"`
	Stake         float64 `json:"stake"`
	StakeStrategy string  `json:"stake_strategy"`
	RiskLevel     string  `json:"risk_level"`
	Confidence    float64 `json:"confidence"`
	Odds          float64 `json:"odds,omitempty"`
	Score         string  `json:"score"`
	Minute        int     `json:"minute"`
	League        string  `json:"league,omitempty"`
	HomeTeam      string  `json:"home_team,omitempty"`
	AwayTeam      string  `json:"away_team,omitempty"`
	Timestamp     int64   `json:"timestamp"`
}

// CashoutSignal instructs downstream to exit the position.
type CashoutSignal struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	Action    string `json:"action"` // always "cashout"
	Reason    string `json:"reason"`
	Urgency   string `json:"urgency"` // "normal" or "high"
	Market    string `json:"market"`
	Score     string `json:"score"`
	Minute    int    `json:"minute"`
	Timestamp int64  `json:"timestamp"`
}

// Store persists bet records. Implementations must make PlaceIfAbsent
// atomic so concurrent evaluations of the same event place at most one
// bet.
type Store interface {
	// PlaceIfAbsent stores rec unless a record for the event already
	// exists. Returns true when rec was stored.
	PlaceIfAbsent(ctx context.Context, rec *Record, ttl time.Duration) (bool, error)

	// Get returns the record for the event, or (nil, nil) when none
	// exists. A store failure comes back as a non-nil error and must
	// never be read as "no active bet".
	Get(ctx context.Context, eventID string) (*Record, error)

	// MarkCashedOut flags the record settled so later checks
	// short-circuit.
	MarkCashedOut(ctx context.Context, eventID, reason string) error

	AppendMatchEvent(ctx context.Context, eventID string, ev MatchEvent) error
	MatchEvents(ctx context.Context, eventID string) ([]MatchEvent, error)

	// ActiveEventIDs lists events with a live (not cashed out) record.
	ActiveEventIDs(ctx context.Context) ([]string, error)
}

// Sink publishes signals downstream.
type Sink interface {
	PublishBet(ctx context.Context, sig Signal) error
	PublishCashout(ctx context.Context, sig CashoutSignal) error
}
