package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/core/decision"
	"github.com/underxbet/inplay-engine/internal/telemetry"

	_ "modernc.org/sqlite"
)

const (
	maxStoreBytes  int64   = 256 << 20 // 256 MiB
	evictPct       float64 = 0.10      // evict oldest 10% of rows
	vacuumInterval         = 10        // incremental vacuum every N evictions
)

// Journal is a FIFO-capped SQLite audit log of every decision, bet
// signal, and cash-out signal the engine produces. Oldest 10% of rows
// are evicted when the size budget is exceeded.
type Journal struct {
	db           *sql.DB
	mu           sync.Mutex
	cachedSize   int64
	rowCount     int64
	evictCounter int
}

const schema = `CREATE TABLE IF NOT EXISTS entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id   TEXT    NOT NULL,
	kind       TEXT    NOT NULL,
	suitable   INTEGER NOT NULL DEFAULT 0,
	market     TEXT    NOT NULL DEFAULT '',
	stake      REAL    NOT NULL DEFAULT 0,
	risk_level TEXT    NOT NULL DEFAULT '',
	confidence REAL    NOT NULL DEFAULT 0,
	reason     TEXT    NOT NULL DEFAULT '',
	detail     TEXT    NOT NULL DEFAULT '',
	created_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_event ON entries(event_id);`

func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	var avMode int
	if err := db.QueryRow(`PRAGMA auto_vacuum`).Scan(&avMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read auto_vacuum: %w", err)
	}
	if avMode != 2 {
		if _, err := db.Exec(`PRAGMA auto_vacuum = INCREMENTAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set auto_vacuum: %w", err)
		}
		if _, err := db.Exec(`VACUUM`); err != nil {
			telemetry.Warnf("journal: VACUUM to enable auto_vacuum failed: %v", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}

	var size int64
	db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`).Scan(&size)
	var rowCount int64
	db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&rowCount)

	telemetry.Plainf("journal: opened %s  size=%d  rows=%d", path, size, rowCount)
	return &Journal{db: db, cachedSize: size, rowCount: rowCount}, nil
}

// RecordDecision logs every evaluated decision, suitable or not, so
// passed-over events can be reviewed later.
func (j *Journal) RecordDecision(d decision.Decision) {
	detail, _ := json.Marshal(map[string]any{
		"rules_passed": d.RulesPassed,
		"rules_failed": d.RulesFailed,
		"override":     d.Override,
		"target_line":  d.TargetLine,
		"risk_score":   d.RiskScore,
	})
	reason := ""
	if !d.Suitable {
		reason = strings.Join(d.RulesFailed, ",")
	}
	j.insert(d.EventID, "decision", d.Suitable, d.Market, d.Stake, d.RiskLevel, d.Confidence, reason, string(detail))
}

func (j *Journal) RecordBet(sig bet.Signal) {
	detail, _ := json.Marshal(sig)
	j.insert(sig.EventID, "bet", true, sig.Market, sig.Stake, sig.RiskLevel, sig.Confidence, "placed", string(detail))
}

func (j *Journal) RecordCashout(sig bet.CashoutSignal) {
	detail, _ := json.Marshal(sig)
	j.insert(sig.EventID, "cashout", false, sig.Market, 0, "", 0, sig.Reason, string(detail))
}

func (j *Journal) insert(eventID, kind string, suitable bool, market string, stake float64, riskLevel string, confidence float64, reason, detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	suit := 0
	if suitable {
		suit = 1
	}
	_, err := j.db.Exec(
		`INSERT INTO entries (event_id, kind, suitable, market, stake, risk_level, confidence, reason, detail, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		eventID, kind, suit, market, stake, riskLevel, confidence, reason, detail,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		telemetry.Warnf("journal insert %s/%s: %v", kind, eventID, err)
		return
	}

	j.rowCount++
	j.refreshSize()
	if j.cachedSize > maxStoreBytes {
		j.evict()
	}
}

// Entry is one journal row as served by the status API.
type Entry struct {
	ID         int64   `json:"id"`
	EventID    string  `json:"event_id"`
	Kind       string  `json:"kind"`
	Suitable   bool    `json:"suitable"`
	Market     string  `json:"market"`
	Stake      float64 `json:"stake"`
	RiskLevel  string  `json:"risk_level,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
	Detail     string  `json:"detail,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// Recent returns the newest limit entries, optionally filtered by event.
func (j *Journal) Recent(eventID string, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT id, event_id, kind, suitable, market, stake, risk_level, confidence, reason, detail, created_at
		 FROM entries `
	args := []any{}
	if eventID != "" {
		query += `WHERE event_id = ? `
		args = append(args, eventID)
	}
	query += `ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var suit int
		if err := rows.Scan(&e.ID, &e.EventID, &e.Kind, &suit, &e.Market, &e.Stake,
			&e.RiskLevel, &e.Confidence, &e.Reason, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Suitable = suit == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// refreshSize re-reads the database file size from SQLite pragmas.
// Must be called with j.mu held.
func (j *Journal) refreshSize() {
	var size int64
	row := j.db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`)
	if err := row.Scan(&size); err == nil {
		j.cachedSize = size
	}
}

// evict deletes the oldest 10% of rows by count.
// Must be called with j.mu held.
func (j *Journal) evict() {
	toDelete := int64(float64(j.rowCount) * evictPct)
	if toDelete < 1 {
		toDelete = 1
	}

	res, err := j.db.Exec(
		`DELETE FROM entries WHERE id IN (
			SELECT id FROM entries ORDER BY id ASC LIMIT ?
		)`, toDelete,
	)
	if err != nil {
		telemetry.Warnf("journal evict: %v", err)
		return
	}

	deleted, _ := res.RowsAffected()
	j.rowCount -= deleted
	j.evictCounter++

	telemetry.Infof("journal: evicted %d rows (target %d)", deleted, toDelete)

	if j.evictCounter%vacuumInterval == 0 {
		j.db.Exec(`PRAGMA incremental_vacuum`)
	}

	j.refreshSize()
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
