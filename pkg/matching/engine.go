// Package matching resolves verification claims against the authoritative
// registry: exact identifier matching first, fuzzy scoring as the fallback.
package matching

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/tracing"
)

// Config contains configuration for the match engine
type Config struct {
	CandidateCap int // Maximum records scored per fuzzy attempt (default: 300)
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		CandidateCap: 300,
	}
}

// Engine runs the match precedence for one claim: precomputed digest, digest
// of the normalized identifier, masked equality, then fuzzy when the rule
// set enables it.
type Engine struct {
	exact  *ExactMatcher
	fuzzy  *FuzzyMatcher
	logger ectologger.Logger
}

// NewEngine creates a new match engine
func NewEngine(store Store, logger ectologger.Logger, cfg Config) *Engine {
	if cfg.CandidateCap <= 0 {
		cfg.CandidateCap = DefaultConfig().CandidateCap
	}
	return &Engine{
		exact:  NewExactMatcher(store, logger),
		fuzzy:  NewFuzzyMatcher(store, logger, cfg),
		logger: logger,
	}
}

// Match resolves a claim to at most one record. A miss everywhere is a none
// outcome, not an error; errors mean the store failed.
func (e *Engine) Match(ctx context.Context, set *models.RuleSet, claim *models.VerificationClaim) (*models.MatchOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	outcome, err := e.exact.Match(ctx, set, claim)
	if err != nil {
		return nil, err
	}
	if outcome.Matched {
		return outcome, nil
	}

	if !set.Fuzzy.Enabled {
		return outcome, nil
	}

	return e.fuzzy.Match(ctx, set, claim)
}
