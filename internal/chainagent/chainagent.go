// Package chainagent owns one chain's liquidation lifecycle: it drains a
// merged candidate stream, runs every candidate through the scorer cascade,
// dispatches accepted plans to an executor, records every decision to the
// attempt log, and halts cleanly on a kill switch, a session cap breach, or
// its own fail-rate circuit breaker. Grounded on the teacher's
// specs/001-liquidity-repositioning/contracts/strategy_api.go
// (StrategyConfig/StrategyPhase/StrategyReport/CircuitBreaker/StrategyRunner),
// retargeted from the teacher's single-strategy liquidity-repositioning loop
// to a per-chain liquidation pipeline, and wired to context.Context
// cancellation per SPEC_FULL.md §5 instead of the teacher's placeholder
// report-channel-only shutdown.
package chainagent

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/blackhole-labs/liquidationd/internal/alert"
	"github.com/blackhole-labs/liquidationd/internal/db"
	"github.com/blackhole-labs/liquidationd/internal/killswitch"
	"github.com/blackhole-labs/liquidationd/internal/market"
	"github.com/blackhole-labs/liquidationd/internal/revert"
	"github.com/blackhole-labs/liquidationd/internal/scorer"
	"github.com/blackhole-labs/liquidationd/internal/session"
)

// Phase mirrors the teacher's StrategyPhase enum, collapsed to the three
// states a liquidation agent actually passes through (there is no
// rebalancing/stability-wait workflow here — every candidate is scored and
// dispatched independently).
type Phase int

const (
	PhaseInitializing Phase = iota
	PhaseRunning
	PhaseHalted
)

// String returns the human-readable phase name, same shape as the
// teacher's StrategyPhase.String().
func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "Initializing"
	case PhaseRunning:
		return "Running"
	case PhaseHalted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// Report is a structured message sent via the reporting channel, the same
// shape and purpose as the teacher's StrategyReport: JSON-serializable,
// optional fields populated per event type.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	ChainID   int64     `json:"chain_id"`
	EventType string    `json:"event_type"`
	Message   string    `json:"message"`
	Phase     string    `json:"phase,omitempty"`

	Protocol string `json:"protocol,omitempty"`
	Borrower string `json:"borrower,omitempty"`
	Reason   string `json:"reason,omitempty"`
	TxHash   string `json:"tx_hash,omitempty"`
	EstNetUSD string `json:"est_net_usd,omitempty"`
	GasUSD    string `json:"gas_usd,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ToJSON serializes the report, the same method the teacher's
// StrategyReport exposes for reportChan consumers.
func (r Report) ToJSON() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Event types emitted on the report channel.
const (
	EventAgentStart    = "agent_start"
	EventPlanSent      = "plan_sent"
	EventPlanDryRun    = "dry_run"
	EventPlanSkipped   = "plan_skipped"
	EventSendError     = "send_error"
	EventHalt          = "halt"
	EventShutdown      = "shutdown"
)

// Config is the per-chain agent's runtime tunables, the liquidation
// agent's analog of the teacher's StrategyConfig.
type Config struct {
	// DryRun scores and records every candidate but never calls Executor.Submit.
	DryRun bool

	// CircuitBreakerWindow is the rolling window the fail-rate cap is
	// evaluated over (spec.md §4.3). Default 5 minutes.
	CircuitBreakerWindow time.Duration

	// FailRateCap is the maximum errors/attempts ratio tolerated once
	// attempts >= 5 within the window, before the breaker trips.
	FailRateCap float64

	// AlertCooldown is how long the fail-rate/halt alert is suppressed
	// after firing once. Default 15 minutes (spec.md §4.3).
	AlertCooldown time.Duration
}

// DefaultConfig returns constitutional defaults; the caller must still
// derive FailRateCap from the chain's risk overrides.
func DefaultConfig() Config {
	return Config{
		CircuitBreakerWindow: 5 * time.Minute,
		FailRateCap:          0.5,
		AlertCooldown:        15 * time.Minute,
	}
}

// Executor dispatches one accepted plan on-chain. Implemented by
// internal/execution; kept as a narrow interface here so the agent loop is
// testable without a live RPC connection.
type Executor interface {
	Submit(ctx context.Context, plan market.Plan) (txHash string, err error)
}

// Recorder persists one scoring decision. Implemented by *db.AttemptRecorder;
// narrowed to the one method the agent calls so tests can stub it.
type Recorder interface {
	RecordAttempt(in db.AttemptInput) error
}

// Agent runs one chain's candidate-to-execution pipeline.
type Agent struct {
	Chain      *market.Chain
	Deps       scorer.Deps
	Config     Config
	Candidates <-chan market.Candidate

	Executor   Executor
	Recorder   Recorder
	Session    *session.Counters
	KillSwitch *killswitch.Switch
	Alerter    *alert.Throttled
	Log        *zap.Logger

	// RetryQueue, if set, is offered every candidate rejected only for
	// sitting above the health-factor ceiling (market.RejHFAboveMax), on
	// the theory that a thin margin resolves itself on the next oracle
	// update. Left nil, those candidates are simply dropped.
	RetryQueue RetryScheduler

	breaker *CircuitBreaker
}

// RetryScheduler re-scores a borrower after a backoff delay. Implemented by
// *ingest.RetryQueue.
type RetryScheduler interface {
	Schedule(candidate market.Candidate)
}

// New builds an Agent, wiring its own fail-rate circuit breaker from cfg.
func New(
	chain *market.Chain,
	deps scorer.Deps,
	cfg Config,
	candidates <-chan market.Candidate,
	executor Executor,
	recorder Recorder,
	sess *session.Counters,
	ks *killswitch.Switch,
	alerter *alert.Throttled,
	log *zap.Logger,
) *Agent {
	return &Agent{
		Chain:      chain,
		Deps:       deps,
		Config:     cfg,
		Candidates: candidates,
		Executor:   executor,
		Recorder:   recorder,
		Session:    sess,
		KillSwitch: ks,
		Alerter:    alerter,
		Log:        log.With(zap.Int64("chain_id", chain.ChainID), zap.String("chain", chain.Name)),
		breaker:    NewCircuitBreaker(cfg.CircuitBreakerWindow, cfg.FailRateCap, alerter),
	}
}

// Run drains Candidates, scoring and dispatching each, until the context is
// cancelled, the kill switch engages, a session cap is breached, or the
// fail-rate circuit breaker trips. It returns nil on any clean stop — per
// spec.md §4.7, kill-switch/cap shutdown is not an error condition.
func (a *Agent) Run(ctx context.Context, reportChan chan<- string) error {
	a.emit(reportChan, Report{EventType: EventAgentStart, Phase: PhaseRunning.String(), Message: "chain agent starting"})

	for {
		select {
		case <-ctx.Done():
			a.emit(reportChan, Report{EventType: EventShutdown, Phase: PhaseHalted.String(), Message: "context cancelled"})
			return nil

		case c, ok := <-a.Candidates:
			if !ok {
				a.emit(reportChan, Report{EventType: EventShutdown, Phase: PhaseHalted.String(), Message: "candidate stream closed"})
				return nil
			}

			if a.KillSwitch != nil && a.KillSwitch.Engaged() {
				a.emit(reportChan, Report{EventType: EventHalt, Phase: PhaseHalted.String(), Message: "kill switch engaged"})
				return nil
			}

			a.handleCandidate(ctx, reportChan, c)

			if a.Session != nil && a.Session.CapsExceeded() {
				a.emit(reportChan, Report{EventType: EventHalt, Phase: PhaseHalted.String(), Message: "session cap reached"})
				return nil
			}
			if a.breaker.Tripped() {
				a.emit(reportChan, Report{EventType: EventHalt, Phase: PhaseHalted.String(), Message: "fail-rate circuit breaker tripped"})
				return nil
			}
		}
	}
}

func (a *Agent) handleCandidate(ctx context.Context, reportChan chan<- string, c market.Candidate) {
	outcome := scorer.Score(ctx, a.Deps, c, a.Chain)

	borrower := c.Borrower.Hex()

	if outcome.IsAccepted() {
		a.handleAccepted(ctx, reportChan, c, outcome.Plan, borrower)
		return
	}

	rej := outcome.Rejection
	status := statusForRejection(rej.Reason)
	a.record(c, nil, status, string(rej.Reason)+detailSuffix(rej.Detail), "")
	a.Log.Debug("candidate rejected", zap.String("reason", string(rej.Reason)), zap.String("detail", rej.Detail), zap.String("borrower", borrower))

	if a.RetryQueue != nil && rej.Reason == market.RejHFAboveMax {
		a.RetryQueue.Schedule(c)
	}
	a.emit(reportChan, Report{
		EventType: EventPlanSkipped,
		Phase:     PhaseRunning.String(),
		Message:   "candidate rejected",
		Protocol:  string(c.Protocol),
		Borrower:  borrower,
		Reason:    string(rej.Reason),
	})
}

func (a *Agent) handleAccepted(ctx context.Context, reportChan chan<- string, c market.Candidate, plan *market.Plan, borrower string) {
	if a.Session != nil {
		a.Session.RecordReady()
	}

	if a.Config.DryRun {
		a.record(c, plan, db.StatusDryRun, "", "")
		a.emit(reportChan, Report{
			EventType: EventPlanDryRun,
			Phase:     PhaseRunning.String(),
			Message:   "plan ready (dry run)",
			Protocol:  string(c.Protocol),
			Borrower:  borrower,
			EstNetUSD: plan.EstNetUSD.String(),
			GasUSD:    plan.GasUSD.String(),
		})
		return
	}

	if a.Session != nil && !a.Session.ReserveSend(plan.RepayUSD) {
		a.record(c, plan, db.StatusThrottled, "session-cap-reserve-failed", "")
		a.emit(reportChan, Report{
			EventType: EventPlanSkipped,
			Phase:     PhaseRunning.String(),
			Message:   "session cap prevented send",
			Protocol:  string(c.Protocol),
			Borrower:  borrower,
			Reason:    "session-cap",
		})
		return
	}

	txHash, err := a.Executor.Submit(ctx, *plan)
	if err != nil {
		recoverable := isHFRecovered(err)
		if a.Session != nil {
			a.Session.RecordError()
		}
		a.breaker.RecordAttempt(!recoverable)

		status := db.StatusError
		reason := err.Error()
		if recoverable {
			status = db.StatusPolicySkip
			reason = "hf-recovered"
		}
		a.record(c, plan, status, reason, "")
		a.emit(reportChan, Report{
			EventType: EventSendError,
			Phase:     PhaseRunning.String(),
			Message:   "submission failed",
			Protocol:  string(c.Protocol),
			Borrower:  borrower,
			Error:     err.Error(),
		})
		return
	}

	if a.Session != nil {
		a.Session.RecordSent()
	}
	a.breaker.RecordAttempt(false)
	a.record(c, plan, db.StatusSent, "", txHash)
	a.emit(reportChan, Report{
		EventType: EventPlanSent,
		Phase:     PhaseRunning.String(),
		Message:   "plan sent",
		Protocol:  string(c.Protocol),
		Borrower:  borrower,
		TxHash:    txHash,
		EstNetUSD: plan.EstNetUSD.String(),
		GasUSD:    plan.GasUSD.String(),
	})
}

func (a *Agent) record(c market.Candidate, plan *market.Plan, status db.AttemptStatus, reason, txHash string) {
	if a.Recorder == nil {
		return
	}
	in := db.AttemptInput{
		Timestamp: time.Now(),
		ChainID:   c.ChainID,
		Borrower:  c.Borrower.Hex(),
		Protocol:  string(c.Protocol),
		Status:    status,
		Reason:    reason,
		TxHash:    txHash,
		Candidate: c,
	}
	if plan != nil {
		in.Plan = plan
	}
	if err := a.Recorder.RecordAttempt(in); err != nil {
		a.Log.Warn("failed to record attempt", zap.Error(err))
	}
}

func (a *Agent) emit(reportChan chan<- string, r Report) {
	if reportChan == nil {
		return
	}
	r.Timestamp = time.Now()
	r.ChainID = a.Chain.ChainID
	payload, err := r.ToJSON()
	if err != nil {
		a.Log.Warn("failed to serialize report", zap.Error(err))
		return
	}
	select {
	case reportChan <- payload:
	default:
		a.Log.Warn("report channel full, dropping report", zap.String("event_type", r.EventType))
	}
}

func statusForRejection(reason market.RejectionReason) db.AttemptStatus {
	switch reason {
	case market.RejThrottled:
		return db.StatusThrottled
	case market.RejGapAboveCap:
		return db.StatusGapSkip
	case market.RejContractRevert:
		return db.StatusError
	default:
		return db.StatusPolicySkip
	}
}

func detailSuffix(detail string) string {
	if detail == "" {
		return ""
	}
	return ": " + detail
}

// isHFRecovered reports whether err is a "HealthFactorNotBelowThreshold"
// revert — spec.md §4.3 excludes these from the error count since the
// opportunity simply vanished, it is not a failure of the agent.
func isHFRecovered(err error) bool {
	return revert.Classify(err).Kind == revert.KindHFRecovered
}
