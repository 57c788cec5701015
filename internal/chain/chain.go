// Package chain runs an ordered list of interchangeable stages until one of them
// produces a valid outcome. A chain never fails: when every stage fails the
// caller-declared fallback outcome is returned, tagged with TierDefault.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/logger"
	"github.com/spigell/interview-scorer/internal/normalize"
)

// Tier identifies the kind of stage that produced an outcome.
type Tier string

const (
	TierPrimary         Tier = "primary"
	TierLexical         Tier = "lexical"
	TierRemoteJudge     Tier = "remote_judge"
	TierLocalHeuristic  Tier = "local_heuristic"
	TierRemoteGenerator Tier = "remote_generator"
	TierDefault         Tier = "default"
)

// DefaultStageName is the stage name reported on fallback outcomes.
const DefaultStageName = "default"

// Outcome is the product of a successful stage or of the fallback.
type Outcome struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
	Rating   string  `json:"qualitative_rating,omitempty"`
	Tier     Tier    `json:"source_tier"`
	Stage    string  `json:"stage"`
}

// Range is the closed interval a stage score must fall in.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether f is a finite number inside the range.
func (r Range) Contains(f float64) bool {
	return normalize.IsFinite(f) && f >= r.Min && f <= r.Max
}

// Stage is one attempt at producing an Outcome from In.
type Stage[In any] interface {
	Name() string
	Tier() Tier
	Attempt(ctx context.Context, in In) (Outcome, error)
}

// Fallback builds the outcome returned when every stage failed.
type Fallback[In any] func(in In) Outcome

// Recorder receives per-stage and per-outcome observations. It may be nil.
type Recorder interface {
	ObserveStage(chain, stage string, ok bool, elapsed time.Duration)
	ObserveOutcome(chain string, tier string)
}

// Config describes a chain.
type Config struct {
	Name         string
	Range        Range
	StageTimeout time.Duration
}

// Chain executes its stages strictly sequentially; the first valid outcome wins.
type Chain[In any] struct {
	name     string
	rng      Range
	timeout  time.Duration
	stages   []Stage[In]
	fallback Fallback[In]
	logger   *zap.Logger
	recorder Recorder
}

// Status describes a configured stage.
type Status struct {
	Name string `json:"name"`
	Tier Tier   `json:"tier"`
}

var errEmptyFeedback = errors.New("feedback is empty")

// New builds a chain. Nil stages are skipped.
func New[In any](cfg Config, stages []Stage[In], fallback Fallback[In], log *zap.Logger, recorder Recorder) *Chain[In] {
	kept := make([]Stage[In], 0, len(stages))
	for _, s := range stages {
		if s != nil {
			kept = append(kept, s)
		}
	}

	return &Chain[In]{
		name:     cfg.Name,
		rng:      cfg.Range,
		timeout:  cfg.StageTimeout,
		stages:   kept,
		fallback: fallback,
		logger:   logger.WithFields(log),
		recorder: recorder,
	}
}

// Name returns the chain name.
func (c *Chain[In]) Name() string { return c.name }

// Describe lists the stages in execution order, followed by the fallback.
func (c *Chain[In]) Describe() []Status {
	statuses := make([]Status, 0, len(c.stages)+1)
	for _, s := range c.stages {
		statuses = append(statuses, Status{Name: s.Name(), Tier: s.Tier()})
	}
	return append(statuses, Status{Name: DefaultStageName, Tier: TierDefault})
}

// Execute runs the stages in order and returns the first valid outcome, or the
// fallback outcome when all of them failed.
func (c *Chain[In]) Execute(ctx context.Context, in In) Outcome {
	for i, stage := range c.stages {
		log := c.logger.With(logger.StageFields(c.name, stage.Name(), string(stage.Tier()))...)
		log.Debug("running stage", zap.Int("position", i+1), zap.Int("stages", len(c.stages)))

		started := time.Now()
		out, err := c.attempt(ctx, stage, in)
		if err == nil {
			err = c.Validate(out)
		}
		elapsed := time.Since(started)
		c.observeStage(stage.Name(), err == nil, elapsed)

		if err != nil {
			log.Warn("stage failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			continue
		}

		out.Tier = stage.Tier()
		out.Stage = stage.Name()
		out.Feedback = strings.TrimSpace(out.Feedback)
		log.Debug("stage succeeded", zap.Float64("score", out.Score), zap.Duration("elapsed", elapsed))
		c.observeOutcome(out.Tier)
		return out
	}

	out := c.defaultOutcome(in)
	c.logger.Warn("all stages failed, using default outcome",
		zap.String(logger.FieldChain, c.name),
		zap.Int("stages", len(c.stages)),
		zap.Float64("score", out.Score),
	)
	c.observeOutcome(out.Tier)
	return out
}

// Validate checks an outcome against the chain's score range and requires feedback text.
func (c *Chain[In]) Validate(out Outcome) error {
	if !normalize.IsFinite(out.Score) {
		return fmt.Errorf("score is not a finite number: %v", out.Score)
	}
	if !c.rng.Contains(out.Score) {
		return fmt.Errorf("score %v outside [%v, %v]", out.Score, c.rng.Min, c.rng.Max)
	}
	if strings.TrimSpace(out.Feedback) == "" {
		return errEmptyFeedback
	}
	return nil
}

type attemptResult struct {
	out Outcome
	err error
}

// attempt runs one stage bounded by the stage timeout. A stage that ignores its
// context is abandoned once the deadline passes; its result is discarded.
func (c *Chain[In]) attempt(ctx context.Context, stage Stage[In], in In) (Outcome, error) {
	stageCtx := ctx
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fmt.Errorf("stage panicked: %v", r)}
			}
		}()
		out, err := stage.Attempt(stageCtx, in)
		done <- attemptResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-stageCtx.Done():
		return Outcome{}, fmt.Errorf("stage %s: %w", stage.Name(), stageCtx.Err())
	}
}

func (c *Chain[In]) defaultOutcome(in In) Outcome {
	var out Outcome
	if c.fallback != nil {
		out = c.fallback(in)
	}
	if !normalize.IsFinite(out.Score) {
		out.Score = c.rng.Min
	}
	out.Score = normalize.Clamp(out.Score, c.rng.Min, c.rng.Max)
	out.Feedback = strings.TrimSpace(out.Feedback)
	out.Tier = TierDefault
	out.Stage = DefaultStageName
	return out
}

func (c *Chain[In]) observeStage(stage string, ok bool, elapsed time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveStage(c.name, stage, ok, elapsed)
	}
}

func (c *Chain[In]) observeOutcome(tier Tier) {
	if c.recorder != nil {
		c.recorder.ObserveOutcome(c.name, string(tier))
	}
}
