package poller

import (
	"context"
	"sync"
	"time"

	"github.com/underxbet/inplay-engine/internal/core/bet"
	"github.com/underxbet/inplay-engine/internal/core/cashout"
	"github.com/underxbet/inplay-engine/internal/core/decision"
	"github.com/underxbet/inplay-engine/internal/core/feature"
	"github.com/underxbet/inplay-engine/internal/core/rules"
	"github.com/underxbet/inplay-engine/internal/telemetry"
)

// SnapshotSource serves the latest snapshot per live event.
type SnapshotSource interface {
	Snapshots() []*feature.Snapshot
}

// RuleSource serves the current rule set, hot-reloadable behind the
// interface.
type RuleSource interface {
	Current() []rules.Rule
}

// Journal records pipeline outcomes for later review. All methods are
// fire-and-forget.
type Journal interface {
	RecordDecision(d decision.Decision)
	RecordBet(sig bet.Signal)
	RecordCashout(sig bet.CashoutSignal)
}

// Notifier pushes operator alerts. Implementations must tolerate being
// called from many goroutines.
type Notifier interface {
	NotifyBet(sig bet.Signal, f *feature.Features)
	NotifyCashout(sig bet.CashoutSignal, f *feature.Features)
}

// Archiver receives durable copies of placed bets and cash-outs.
type Archiver interface {
	ArchiveBet(ctx context.Context, sig bet.Signal)
	ArchiveCashout(ctx context.Context, sig bet.CashoutSignal)
}

type noopJournal struct{}

func (noopJournal) RecordDecision(decision.Decision) {}
func (noopJournal) RecordBet(bet.Signal)             {}
func (noopJournal) RecordCashout(bet.CashoutSignal)  {}

type noopNotifier struct{}

func (noopNotifier) NotifyBet(bet.Signal, *feature.Features)            {}
func (noopNotifier) NotifyCashout(bet.CashoutSignal, *feature.Features) {}

type noopArchiver struct{}

func (noopArchiver) ArchiveBet(context.Context, bet.Signal)            {}
func (noopArchiver) ArchiveCashout(context.Context, bet.CashoutSignal) {}

// Poller drives the engine: every interval it walks the live snapshot
// set and runs each event through monitoring (when a bet exists) or
// evaluation (when none does). Events are processed concurrently under
// a semaphore; one bad event never stops the batch.
type Poller struct {
	source      SnapshotSource
	ruleSource  RuleSource
	blender     *decision.Blender
	coordinator *bet.Coordinator
	monitor     *cashout.Monitor
	journal     Journal
	notifier    Notifier
	archiver    Archiver

	interval       time.Duration
	maxConcurrent  int
	maxCombinedAvg float64
}

type Options struct {
	Interval            time.Duration
	MaxConcurrentEvents int
	MaxCombinedAvgGoals float64
}

func New(source SnapshotSource, ruleSource RuleSource, blender *decision.Blender,
	coordinator *bet.Coordinator, monitor *cashout.Monitor,
	journal Journal, notifier Notifier, archiver Archiver, opts Options) *Poller {

	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.MaxConcurrentEvents <= 0 {
		opts.MaxConcurrentEvents = 16
	}
	if opts.MaxCombinedAvgGoals <= 0 {
		opts.MaxCombinedAvgGoals = 3.0
	}
	if journal == nil {
		journal = noopJournal{}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if archiver == nil {
		archiver = noopArchiver{}
	}
	return &Poller{
		source:         source,
		ruleSource:     ruleSource,
		blender:        blender,
		coordinator:    coordinator,
		monitor:        monitor,
		journal:        journal,
		notifier:       notifier,
		archiver:       archiver,
		interval:       opts.Interval,
		maxConcurrent:  opts.MaxConcurrentEvents,
		maxCombinedAvg: opts.MaxCombinedAvgGoals,
	}
}

// Run blocks until ctx is cancelled, processing one batch per tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	telemetry.Infof("poller: running every %s", p.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce processes the current live set. Exported for tests and for
// one-shot invocations.
func (p *Poller) RunOnce(ctx context.Context) {
	snaps := p.source.Snapshots()
	if len(snaps) == 0 {
		return
	}

	sem := make(chan struct{}, p.maxConcurrent)
	var wg sync.WaitGroup
	for _, snap := range snaps {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(snap *feature.Snapshot) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					telemetry.Metrics.EventErrors.Inc()
					telemetry.Errorf("poller: panic processing %s: %v", snap.ID, r)
				}
			}()
			p.processEvent(ctx, snap)
		}(snap)
	}
	wg.Wait()
}

func (p *Poller) processEvent(ctx context.Context, snap *feature.Snapshot) {
	start := time.Now()
	defer func() { telemetry.Metrics.PipelineLatency.Record(time.Since(start)) }()

	f := feature.Normalize(snap)
	telemetry.Metrics.EventsProcessed.Inc()

	// Tracked events go to the cash-out monitor and nowhere else. When
	// the store is unreachable we skip the event entirely rather than
	// risk evaluating an event that already carries a bet.
	sig, tracked, err := p.monitor.Check(ctx, &f)
	if err != nil {
		telemetry.Metrics.EventErrors.Inc()
		telemetry.Errorf("poller: %v", err)
		if sig == nil {
			return
		}
	}
	if sig != nil {
		p.journal.RecordCashout(*sig)
		p.archiver.ArchiveCashout(ctx, *sig)
		p.notifier.NotifyCashout(*sig, &f)
		return
	}
	if tracked {
		return
	}

	if !snap.IsLive {
		return
	}

	verdict := rules.Evaluate(&f, p.ruleSource.Current())

	// Two attack-minded teams can blow through an under line from any
	// score, so a high combined season average vetoes the rules.
	if avg := f.CombinedAvgGoals(); avg > p.maxCombinedAvg {
		if verdict.Suitable {
			verdict.Suitable = false
			verdict.RulesFailed = append(verdict.RulesFailed, "avg_goals")
		}
	}

	d := p.blender.Blend(ctx, verdict, &f)
	p.journal.RecordDecision(d)
	if !d.Suitable {
		return
	}

	betSig, err := p.coordinator.Place(ctx, d, &f)
	if err != nil {
		telemetry.Metrics.EventErrors.Inc()
		telemetry.Errorf("poller: %v", err)
		return
	}
	if betSig == nil {
		return
	}
	p.journal.RecordBet(*betSig)
	p.archiver.ArchiveBet(ctx, *betSig)
	p.notifier.NotifyBet(*betSig, &f)
}
