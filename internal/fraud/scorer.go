// Package fraud provides the CEL-based fraud signal scorer.
//
// Scoring is a deterministic, auditable heuristic: independent weighted
// predicates evaluated against request facts, summed and capped to [0,1].
// It is not a statistical classifier, and a flag never rejects a return
// by itself; review is a downstream decision.
package fraud

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-commerce/heron/internal/domain"
)

// DefaultFlagThreshold is the score at or above which a request is flagged.
const DefaultFlagThreshold = 0.7

// HistoryGetter returns the number of returns a customer made in the
// given category within the scorer's lookback window. Optional external
// signal: errors and absence both degrade to zero, never to a failure.
type HistoryGetter func(ctx context.Context, tenantID, customerID, category string) (int64, error)

// Scorer evaluates fraud signals against return request facts.
type Scorer struct {
	mu            sync.RWMutex
	env           *cel.Env
	signals       []*compiledSignal
	history       HistoryGetter
	flagThreshold float64
}

type compiledSignal struct {
	config  *SignalConfig
	program cel.Program
}

// NewScorer creates a scorer with the builtin signal set loaded.
func NewScorer(history HistoryGetter, flagThreshold float64) (*Scorer, error) {
	if flagThreshold <= 0 {
		flagThreshold = DefaultFlagThreshold
	}

	env, err := cel.NewEnv(
		cel.Variable("price", cel.DoubleType),
		cel.Variable("hours_since_purchase", cel.DoubleType),
		cel.Variable("reason", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("condition", cel.StringType),
		cel.Variable("recent_returns", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	s := &Scorer{
		env:           env,
		history:       history,
		flagThreshold: flagThreshold,
	}
	if err := s.LoadSignals(BuiltinSignals()); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSignals compiles and replaces the loaded signal set. Evaluation
// order follows config order so results are deterministic.
func (s *Scorer) LoadSignals(configs []*SignalConfig) error {
	compiled := make([]*compiledSignal, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		cs, err := s.compileSignal(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, cs)
	}

	s.mu.Lock()
	s.signals = compiled
	s.mu.Unlock()
	return nil
}

// Signals returns the loaded signal configs in evaluation order.
func (s *Scorer) Signals() []*SignalConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SignalConfig, 0, len(s.signals))
	for _, sig := range s.signals {
		out = append(out, sig.config)
	}
	return out
}

// SignalCount returns the number of loaded signals.
func (s *Scorer) SignalCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signals)
}

// FlagThreshold returns the configured flag threshold.
func (s *Scorer) FlagThreshold() float64 {
	return s.flagThreshold
}

// Input holds the request facts scored against the signals.
type Input struct {
	TenantID           string
	CustomerID         string
	Price              float64
	HoursSincePurchase float64
	Reason             domain.ReturnReason
	Category           string
	Condition          string
}

// Score evaluates all loaded signals and returns the capped score, the
// flag decision, and the per-signal audit trail.
func (s *Scorer) Score(ctx context.Context, in *Input) (float64, bool, []domain.SignalResult) {
	s.mu.RLock()
	signals := s.signals
	s.mu.RUnlock()

	var recentReturns int64
	if s.history != nil {
		if count, err := s.history(ctx, in.TenantID, in.CustomerID, in.Category); err == nil {
			recentReturns = count
		}
	}

	activation := map[string]any{
		"price":                in.Price,
		"hours_since_purchase": in.HoursSincePurchase,
		"reason":               string(in.Reason),
		"category":             in.Category,
		"condition":            in.Condition,
		"recent_returns":       recentReturns,
	}

	score := 0.0
	results := make([]domain.SignalResult, 0, len(signals))
	for _, sig := range signals {
		res := domain.SignalResult{
			SignalID: sig.config.ID,
			Weight:   sig.config.Weight,
		}

		out, _, err := sig.program.Eval(activation)
		if err == nil {
			if b, ok := out.(types.Bool); ok && bool(b) {
				res.Triggered = true
				res.Reason = sig.config.Reason
				score += sig.config.Weight
			}
		}
		results = append(results, res)
	}

	if score > 1.0 {
		score = 1.0
	}

	return score, score >= s.flagThreshold, results
}

func (s *Scorer) compileSignal(cfg *SignalConfig) (*compiledSignal, error) {
	ast, issues := s.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile signal %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("signal %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := s.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for signal %s: %w", cfg.ID, err)
	}

	return &compiledSignal{config: cfg, program: program}, nil
}
