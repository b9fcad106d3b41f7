package mlpredict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/underxbet/inplay-engine/internal/core/feature"
)

// Client calls the prediction service's /predict endpoint. Rate
// limited so a burst of simultaneous live matches cannot hammer the
// model server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(20), 20),
	}
}

type predictRequest struct {
	EventID          string   `json:"event_id"`
	Minute           int      `json:"minute"`
	HomeGoals        int      `json:"home_goals"`
	AwayGoals        int      `json:"away_goals"`
	TotalGoals       int      `json:"total_goals"`
	GoalDiff         int      `json:"goal_diff"`
	HomeShots        int      `json:"home_shots"`
	AwayShots        int      `json:"away_shots"`
	HomeOnTarget     int      `json:"home_shots_on_target"`
	AwayOnTarget     int      `json:"away_shots_on_target"`
	HomeCorners      int      `json:"home_corners"`
	AwayCorners      int      `json:"away_corners"`
	HomeAttacks      int      `json:"home_attacks"`
	AwayAttacks      int      `json:"away_attacks"`
	HomeDangerous    int      `json:"home_dangerous_attacks"`
	AwayDangerous    int      `json:"away_dangerous_attacks"`
	ConversionRate   *float64 `json:"conversion_rate"`
	HomeAvgGoals     float64  `json:"home_avg_goals"`
	AwayAvgGoals     float64  `json:"away_avg_goals"`
	CombinedAvgGoals float64  `json:"combined_avg_goals"`
}

type predictResponse struct {
	Suitable   bool    `json:"suitable"`
	Confidence float64 `json:"confidence"`
}

// Predict returns the model's verdict for the event's current state.
// Any transport or decoding failure comes back as an error; the caller
// falls back to the rule verdict.
func (c *Client) Predict(ctx context.Context, f *feature.Features) (bool, float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	req := predictRequest{
		EventID:          f.EventID,
		Minute:           f.Minute,
		HomeGoals:        f.HomeGoals,
		AwayGoals:        f.AwayGoals,
		TotalGoals:       f.TotalGoals,
		GoalDiff:         f.GoalDiff,
		HomeShots:        f.HomeShots,
		AwayShots:        f.AwayShots,
		HomeOnTarget:     f.HomeShotsOnTarget,
		AwayOnTarget:     f.AwayShotsOnTarget,
		HomeCorners:      f.HomeCorners,
		AwayCorners:      f.AwayCorners,
		HomeAttacks:      f.HomeAttacks,
		AwayAttacks:      f.AwayAttacks,
		HomeDangerous:    f.HomeDangerous,
		AwayDangerous:    f.AwayDangerous,
		ConversionRate:   f.ConversionRate,
		HomeAvgGoals:     f.HomeAvgGoals,
		AwayAvgGoals:     f.AwayAvgGoals,
		CombinedAvgGoals: f.CombinedAvgGoals(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return false, 0, fmt.Errorf("marshal predict request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(data))
	if err != nil {
		return false, 0, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, 0, fmt.Errorf("predict %s: %w", f.EventID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, 0, fmt.Errorf("read predict response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("predict %s: status %d: %s", f.EventID, resp.StatusCode, truncate(body, 200))
	}

	var out predictResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, 0, fmt.Errorf("decode predict response: %w", err)
	}
	return out.Suitable, out.Confidence, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
