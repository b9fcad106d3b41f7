package decision

import (
	"context"
	"errors"
	"time"

	"github.com/underxbet/inplay-engine/internal/core/feature"
	"github.com/underxbet/inplay-engine/internal/core/rules"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// Predictor scores an event's features against the trained model.
type Predictor interface {
	Predict(ctx context.Context, f *feature.Features) (suitable bool, confidence float64, err error)
}

// Override labels describing how the model changed the rule verdict.
const (
	OverrideNone         = ""
	OverrideUnsuitable   = "model_rejected"
	OverrideStakeReduced = "stake_reduced"
	OverrideSuitable     = "model_forced"
)

// Decision is the final placement verdict after blending the rule
// outcome with the model prediction.
type Decision struct {
	EventID       string
	Suitable      bool
	Market        string
	TargetLine    int
	Stake         float64
	StakeStrategy string
	RiskScore     int
	RiskLevel     string
	Confidence    float64
	Override      string
	RulesPassed   []string
	RulesFailed   []string
}

// Blender turns a rule verdict into a decision, consulting the model
// when one is configured. A nil predictor disables blending and the
// rule verdict stands with a risk-derived confidence.
type Blender struct {
	predictor Predictor
	timeout   time.Duration
}

func NewBlender(p Predictor, timeout time.Duration) *Blender {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Blender{predictor: p, timeout: timeout}
}

// Blend applies the override policy:
//
//	rules suitable, model unsuitable, conf < 0.3   -> rejected
//	rules suitable, model unsuitable, conf < 0.5   -> stake scaled by conf
//	rules suitable, model unsuitable, conf >= 0.5  -> rule verdict stands
//	rules unsuitable, model suitable, conf > 0.8   -> forced suitable
//
// A predictor error or timeout never blocks placement: the rule
// verdict stands on the fallback confidence.
func (b *Blender) Blend(ctx context.Context, v rules.Verdict, f *feature.Features) Decision {
	score := RiskScore(f)
	d := Decision{
		EventID:       v.EventID,
		Suitable:      v.Suitable,
		Market:        v.Market,
		TargetLine:    v.TargetLine,
		Stake:         v.Stake,
		StakeStrategy: v.StakeStrategy,
		RiskScore:     score,
		RiskLevel:     RiskLevel(score),
		Confidence:    FallbackConfidence(score),
		RulesPassed:   v.RulesPassed,
		RulesFailed:   v.RulesFailed,
	}
	if b.predictor == nil {
		return d
	}

	pctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	mlSuitable, conf, err := b.predictor.Predict(pctx, f)
	telemetry.Metrics.PredictLatency.Record(time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			telemetry.Metrics.PredictorTimeouts.Inc()
		} else {
			telemetry.Metrics.PredictorErrors.Inc()
		}
		telemetry.Warnf("predictor unavailable for %s, rule verdict stands: %v", v.EventID, err)
		return d
	}

	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	d.Confidence = conf

	switch {
	case v.Suitable && !mlSuitable:
		switch {
		case conf < 0.3:
			d.Suitable = false
			d.Override = OverrideUnsuitable
		case conf < 0.5:
			d.Stake *= conf
			d.Override = OverrideStakeReduced
		}
	case !v.Suitable && mlSuitable && conf > 0.8:
		d.Suitable = true
		d.Override = OverrideSuitable
	}
	return d
}
