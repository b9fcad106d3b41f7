package pgarchive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// Archive writes placed bets and cash-outs to Postgres for long-term
// analysis. The local journal covers day-to-day review; this is the
// durable copy that survives host churn. Optional: a nil *Archive is
// a no-op on every method.
type Archive struct {
	db *sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bets (
	signal_id   TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL,
	market      TEXT NOT NULL,
	stake       DOUBLE PRECISION NOT NULL,
	risk_level  TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	score       TEXT NOT NULL,
	minute      INTEGER NOT NULL,
	league      TEXT,
	home_team   TEXT,
	away_team   TEXT,
	placed_at   TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS cashouts (
	signal_id   TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL,
	reason      TEXT NOT NULL,
	urgency     TEXT NOT NULL,
	market      TEXT NOT NULL,
	score       TEXT NOT NULL,
	minute      INTEGER NOT NULL,
	fired_at    TIMESTAMPTZ NOT NULL
)`,
}

// Open connects and ensures the schema. An empty DSN returns
// (nil, nil) so callers can wire the archive unconditionally.
func Open(dsn string) (*Archive, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init archive schema: %w", err)
		}
	}
	telemetry.Infof("pgarchive: connected")
	return &Archive{db: db}, nil
}

// ArchiveBet is best effort; archive failures never block placement.
func (a *Archive) ArchiveBet(ctx context.Context, sig bet.Signal) {
	if a == nil {
		return
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO bets (signal_id, event_id, market, stake, risk_level, confidence, score, minute, league, home_team, away_team, placed_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 ON CONFLICT (signal_id) DO NOTHING`,
		sig.ID, sig.EventID, sig.Market, sig.Stake, sig.RiskLevel, sig.Confidence,
		sig.Score, sig.Minute, sig.League, sig.HomeTeam, sig.AwayTeam,
		time.Unix(sig.Timestamp, 0).UTC(),
	)
	if err != nil {
		telemetry.Warnf("pgarchive: bet %s: %v", sig.EventID, err)
	}
}

func (a *Archive) ArchiveCashout(ctx context.Context, sig bet.CashoutSignal) {
	if a == nil {
		return
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO cashouts (signal_id, event_id, reason, urgency, market, score, minute, fired_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (signal_id) DO NOTHING`,
		sig.ID, sig.EventID, sig.Reason, sig.Urgency, sig.Market, sig.Score, sig.Minute,
		time.Unix(sig.Timestamp, 0).UTC(),
	)
	if err != nil {
		telemetry.Warnf("pgarchive: cashout %s: %v", sig.EventID, err)
	}
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
