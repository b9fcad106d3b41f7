package feedws

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/gorilla/websocket"

	"github.com/underxbet/inplay-engine/internal/core/feature"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

const (
	minBackoff  = 1 * time.Second
	maxBackoff  = 30 * time.Second
	readTimeout = 90 * time.Second
)

// envelope is the feed's outer frame. "match" carries one snapshot;
// "matches" carries a full live-set refresh.
type envelope struct {
	Type    string            `json:"type"`
	Match   *feature.Snapshot `json:"match,omitempty"`
	Matches []json.RawMessage `json:"matches,omitempty"`
}

// Client connects to the live snapshot feed and keeps the store
// current. One bad message never drops the connection.
type Client struct {
	url   string
	store *Store
}

func NewClient(url string, store *Store) *Client {
	return &Client{url: url, store: store}
}

// ConnectWithRetry connects to the feed and reconnects on failure with
// exponential backoff. Blocks until ctx is cancelled.
func (c *Client) ConnectWithRetry(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		connStart := time.Now()
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(connStart) > time.Minute {
			attempt = 0
		}

		attempt++
		telemetry.Metrics.WSReconnects.Inc()
		backoff := time.Duration(float64(minBackoff) * math.Pow(2, float64(min(attempt-1, 5))))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		if err != nil {
			telemetry.Warnf("feedws: connection lost (attempt %d): %v, retrying in %s",
				attempt, err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Reset deadline on server pings so quiet periods don't trigger a timeout.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	telemetry.Infof("feedws: connected to %s", c.url)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		telemetry.Metrics.SnapshotsReceived.Inc()
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		telemetry.Metrics.SnapshotParseWarns.Inc()
		telemetry.Warnf("feedws: unmarshal envelope: %v", err)
		return
	}

	switch env.Type {
	case "match":
		c.store.Put(env.Match)
	case "matches":
		for _, rawMatch := range env.Matches {
			var snap feature.Snapshot
			if err := json.Unmarshal(rawMatch, &snap); err != nil {
				telemetry.Metrics.SnapshotParseWarns.Inc()
				telemetry.Warnf("feedws: unmarshal match: %v", err)
				continue
			}
			c.store.Put(&snap)
		}
	default:
		// Bare snapshot with no envelope, seen from older feed versions.
		var snap feature.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil || snap.ID == "" {
			telemetry.Debugf("feedws: unknown message type %q", env.Type)
			return
		}
		c.store.Put(&snap)
	}
}
