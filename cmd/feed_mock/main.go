// feed_mock simulates the live match snapshot feed locally. It serves
// a WebSocket that pushes per-match snapshots once a second, with
// random goals and the occasional VAR overturn that rewinds the score,
// to exercise the full pipeline including emergency cash-outs.
//
// Usage:
//
//	go run cmd/feed_mock/main.go
//
// Then set this env var before running cmd/engine/main.go:
//
//	FEED_WS_URL=ws://localhost:9090/feed
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const listenAddr = ":9090"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type mockMatch struct {
	mu        sync.Mutex
	id        string
	league    string
	country   string
	home      string
	away      string
	homeGoals int
	awayGoals int
	minute    int
	homeAvg   float64
	awayAvg   float64
}

var matches = []*mockMatch{
	{id: "MOCK-1", league: "English Premier League", country: "England", home: "Arsenal", away: "Chelsea", minute: 40, homeAvg: 1.4, awayAvg: 1.2, homeGoals: 1, awayGoals: 0},
	{id: "MOCK-2", league: "La Liga", country: "Spain", home: "Real Madrid", away: "Barcelona", minute: 48, homeAvg: 2.1, awayAvg: 1.9, homeGoals: 1, awayGoals: 1},
	{id: "MOCK-3", league: "Serie A", country: "Italy", home: "Inter", away: "Juventus", minute: 30, homeAvg: 1.1, awayAvg: 0.9},
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed", handleFeed)

	fmt.Fprintf(os.Stderr, "Feed mock listening on ws://localhost%s/feed\n", listenAddr)

	go tickMatches()

	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	fmt.Fprintf(os.Stderr, "client connected\n")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		for _, m := range matches {
			msg := map[string]any{
				"type":  "match",
				"match": m.snapshot(),
			}
			data, _ := json.Marshal(msg)
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				fmt.Fprintf(os.Stderr, "write error: %v\n", err)
				return
			}
		}
	}
}

func (m *mockMatch) snapshot() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.homeGoals + m.awayGoals
	underLine := total + 3

	// Feeds flip between numbers and digit strings; mirror that so
	// consumers exercise their loose parsing.
	var minute any = m.minute
	if m.minute%2 == 0 {
		minute = fmt.Sprint(m.minute)
	}

	return map[string]any{
		"id":        m.id,
		"league":    m.league,
		"country":   m.country,
		"home_team": m.home,
		"away_team": m.away,
		"minute":    minute,
		"score":     fmt.Sprintf("%d - %d", m.homeGoals, m.awayGoals),
		"is_live":   true,
		"timestamp": time.Now().Unix(),
		"stats": map[string]any{
			"home": map[string]any{
				"shots":             m.minute / 5,
				"shots_on_target":   m.minute / 12,
				"corners":           m.minute / 15,
				"attacks":           m.minute,
				"dangerous_attacks": m.minute / 2,
			},
			"away": map[string]any{
				"shots":             fmt.Sprint(m.minute / 6),
				"shots_on_target":   m.minute / 15,
				"corners":           m.minute / 18,
				"attacks":           m.minute - 5,
				"dangerous_attacks": m.minute / 3,
			},
		},
		"odds": map[string]any{
			fmt.Sprintf("under_%d.5", underLine): 1.01 + rand.Float64()*0.06,
			fmt.Sprintf("over_%d.5", underLine):  8.0 + rand.Float64()*4,
		},
		"home_avg_goals": m.homeAvg,
		"away_avg_goals": m.awayAvg,
	}
}

// tickMatches advances match time, scores random goals, and rarely
// overturns the most recent one.
func tickMatches() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		for _, m := range matches {
			m.mu.Lock()
			m.minute++
			if m.minute > 90 {
				m.minute = 20
				m.homeGoals = 0
				m.awayGoals = 0
			}

			switch {
			// ~3% chance of a goal per tick.
			case rand.Float64() < 0.03:
				if rand.Float64() < 0.5 {
					m.homeGoals++
				} else {
					m.awayGoals++
				}
				fmt.Fprintf(os.Stderr, "[%s] GOAL %d-%d at %d'\n", m.id, m.homeGoals, m.awayGoals, m.minute)

			// ~0.5% chance of a VAR overturn rewinding the score.
			case rand.Float64() < 0.005 && m.homeGoals+m.awayGoals > 0:
				if m.homeGoals > 0 {
					m.homeGoals--
				} else {
					m.awayGoals--
				}
				fmt.Fprintf(os.Stderr, "[%s] GOAL OVERTURNED %d-%d at %d'\n", m.id, m.homeGoals, m.awayGoals, m.minute)
			}
			m.mu.Unlock()
		}
	}
}
