package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/underxbet/inplay-engine/internal/core/rules"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

type ruleOddsYAML struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type conditionYAML struct {
	Field      string  `yaml:"field"`
	Comparison string  `yaml:"comparison"`
	Value      float64 `yaml:"value"`
	Min        float64 `yaml:"min"`
	Max        float64 `yaml:"max"`
}

type ruleYAML struct {
	RuleType string `yaml:"rule_type"`
	Active   *bool  `yaml:"active"`

	MinGoals       int           `yaml:"min_goals"`
	MaxGoals       int           `yaml:"max_goals"`
	GoalLineBuffer int           `yaml:"goal_line_buffer"`
	Odds           *ruleOddsYAML `yaml:"odds"`
	Leagues        []string      `yaml:"leagues"`
	Countries      []string      `yaml:"countries"`

	MinMinute int `yaml:"min_minute"`
	MaxMinute int `yaml:"max_minute"`

	Stake         float64 `yaml:"stake"`
	StakeStrategy string  `yaml:"stake_strategy"`

	Market string  `yaml:"market"`
	MinOdd float64 `yaml:"min_odd"`
	MaxOdd float64 `yaml:"max_odd"`

	Divisor float64 `yaml:"divisor"`

	Conditions []conditionYAML `yaml:"conditions"`
}

type rulesFileYAML struct {
	Rules []ruleYAML `yaml:"rules"`
}

func (r ruleYAML) toRule() (rules.Rule, error) {
	out := rules.Rule{Kind: rules.Kind(r.RuleType), Active: true}
	if r.Active != nil {
		out.Active = *r.Active
	}

	switch out.Kind {
	case rules.KindGoals:
		p := &rules.GoalsParams{
			MinGoals:       r.MinGoals,
			MaxGoals:       r.MaxGoals,
			GoalLineBuffer: r.GoalLineBuffer,
			Leagues:        r.Leagues,
			Countries:      r.Countries,
		}
		if r.Odds != nil {
			p.Odds = &rules.OddsRange{Min: r.Odds.Min, Max: r.Odds.Max}
		}
		out.Goals = p
	case rules.KindTime:
		out.Time = &rules.TimeParams{MinMinute: r.MinMinute, MaxMinute: r.MaxMinute}
	case rules.KindStake:
		out.Stake = &rules.StakeParams{Stake: r.Stake, Strategy: r.StakeStrategy}
	case rules.KindOdds:
		out.Odds = &rules.OddsParams{Market: r.Market, Min: r.MinOdd, Max: r.MaxOdd}
	case rules.KindDivisor:
		out.Divisor = &rules.DivisorParams{Divisor: r.Divisor}
	case rules.KindComposite:
		p := &rules.CompositeParams{}
		for _, c := range r.Conditions {
			p.Conditions = append(p.Conditions, rules.Condition{
				Field:      c.Field,
				Comparison: c.Comparison,
				Value:      c.Value,
				Min:        c.Min,
				Max:        c.Max,
			})
		}
		out.Composite = p
	default:
		return rules.Rule{}, fmt.Errorf("unknown rule_type %q", r.RuleType)
	}
	return out, nil
}

// ParseRules decodes a YAML rule file into the evaluator's rule set.
func ParseRules(data []byte) ([]rules.Rule, error) {
	var file rulesFileYAML
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	out := make([]rules.Rule, 0, len(file.Rules))
	for i, r := range file.Rules {
		rule, err := r.toRule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

// RulesLoader serves the current rule set and reloads it from disk
// without stopping evaluation. Concurrent reload requests collapse
// into one disk read; a failed reload keeps the previous set.
type RulesLoader struct {
	path  string
	group singleflight.Group

	mu       sync.RWMutex
	rules    []rules.Rule
	loadedAt time.Time
}

// NewRulesLoader loads path once up front. A missing file is not an
// error: the hardcoded defaults serve until the file appears.
func NewRulesLoader(path string) (*RulesLoader, error) {
	l := &RulesLoader{path: path}
	if err := l.Reload(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		telemetry.Warnf("rules file %s not found, using defaults", path)
		l.mu.Lock()
		l.rules = rules.Defaults()
		l.loadedAt = time.Now()
		l.mu.Unlock()
	}
	return l, nil
}

func (l *RulesLoader) Current() []rules.Rule {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rules
}

func (l *RulesLoader) LoadedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loadedAt
}

func (l *RulesLoader) Reload() error {
	_, err, _ := l.group.Do("reload", func() (any, error) {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, err
		}
		parsed, err := ParseRules(data)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.rules = parsed
		l.loadedAt = time.Now()
		l.mu.Unlock()
		telemetry.Infof("rules reloaded from %s: %d rules", l.path, len(parsed))
		return nil, nil
	})
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reload rules: %w", err)
	}
	return err
}

// WatchReload re-reads the rule file on a fixed period until ctx ends.
// Reload errors are logged and the current set keeps serving.
func (l *RulesLoader) WatchReload(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Reload(); err != nil {
				telemetry.Warnf("rules reload failed, keeping current set: %v", err)
			}
		}
	}
}
