// Package evaluation grades answers and writes feedback through fallback chains
// that always yield a usable outcome.
package evaluation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/ai"
	"github.com/spigell/interview-scorer/internal/chain"
	"github.com/spigell/interview-scorer/internal/logger"
	"github.com/spigell/interview-scorer/internal/scoring"
)

const (
	DomainChainName   = "domain"
	FeedbackChainName = "feedback"

	DefaultStageTimeout = 25 * time.Second
)

// Options wires the collaborators of an Evaluator. Nil generators drop their
// stage from the chain.
type Options struct {
	Primary      ai.Generator
	Judge        ai.Generator
	Writer       ai.Generator
	Fusion       *scoring.Engine
	StageTimeout time.Duration
	Logger       *zap.Logger
	Recorder     chain.Recorder
}

// Evaluator runs the domain and feedback chains.
type Evaluator struct {
	domain   *chain.Chain[DomainInput]
	feedback *chain.Chain[FeedbackInput]
	fusion   *scoring.Engine
	logger   *zap.Logger
}

// Feedback is the fused score of an answer with its written feedback.
type Feedback struct {
	Fusion  scoring.Result `json:"fusion"`
	Outcome chain.Outcome  `json:"outcome"`
}

// New builds an Evaluator. A nil fusion engine selects the default weights.
func New(opts Options) (*Evaluator, error) {
	fusion := opts.Fusion
	if fusion == nil {
		var err error
		if fusion, err = scoring.NewEngine(nil); err != nil {
			return nil, err
		}
	}

	timeout := opts.StageTimeout
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}

	log := logger.WithFields(opts.Logger)

	domainStages := []chain.Stage[DomainInput]{}
	if opts.Primary != nil {
		domainStages = append(domainStages, NewPrimaryStage(opts.Primary))
	}
	domainStages = append(domainStages, LexicalStage{})
	if opts.Judge != nil {
		domainStages = append(domainStages, NewJudgeStage(opts.Judge))
	}

	feedbackStages := []chain.Stage[FeedbackInput]{HeuristicStage{}}
	if opts.Writer != nil {
		feedbackStages = append(feedbackStages, NewWriterStage(opts.Writer))
	}

	return &Evaluator{
		domain: chain.New(
			chain.Config{Name: DomainChainName, Range: DomainRange, StageTimeout: timeout},
			domainStages, NeutralOutcome, log, opts.Recorder,
		),
		feedback: chain.New(
			chain.Config{Name: FeedbackChainName, Range: FeedbackRange, StageTimeout: timeout},
			feedbackStages, DefaultAggregateOutcome, log, opts.Recorder,
		),
		fusion: fusion,
		logger: log,
	}, nil
}

// EvaluateDomain grades an answer on a 0-100 scale. An empty answer scores 0
// without calling any stage.
func (e *Evaluator) EvaluateDomain(ctx context.Context, in DomainInput) chain.Outcome {
	in.Answer = strings.TrimSpace(in.Answer)
	in.IdealAnswer = strings.TrimSpace(in.IdealAnswer)

	if in.Answer == "" {
		e.logger.Debug("empty answer, skipping domain evaluation")
		return noResponseOutcome()
	}

	return e.domain.Execute(ctx, in)
}

// GenerateFeedback fuses the signals and writes feedback for them. domainTier is
// the tier of the domain evaluation behind the nlp signal, or empty.
func (e *Evaluator) GenerateFeedback(ctx context.Context, signals scoring.Signals, domainTier chain.Tier, domainFeedback string) Feedback {
	fused := e.fusion.FuseSignals(signals)

	out := e.feedback.Execute(ctx, FeedbackInput{
		Signals:        signals,
		Fusion:         fused,
		DomainTier:     domainTier,
		DomainFeedback: domainFeedback,
	})
	if out.Rating == "" {
		out.Rating = scoring.Rating(out.Score)
	}

	return Feedback{Fusion: fused, Outcome: out}
}

// DomainStages lists the domain chain in execution order.
func (e *Evaluator) DomainStages() []chain.Status { return e.domain.Describe() }

// FeedbackStages lists the feedback chain in execution order.
func (e *Evaluator) FeedbackStages() []chain.Status { return e.feedback.Describe() }

// Fusion returns the fusion engine.
func (e *Evaluator) Fusion() *scoring.Engine { return e.fusion }
