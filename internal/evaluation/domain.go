package evaluation

import (
	"context"
	"errors"

	"github.com/spigell/interview-scorer/internal/ai"
	"github.com/spigell/interview-scorer/internal/apperr"
	"github.com/spigell/interview-scorer/internal/chain"
	"github.com/spigell/interview-scorer/internal/normalize"
)

const (
	// NeutralScore is the domain score used when every stage failed.
	NeutralScore    = 50.0
	NeutralFeedback = "Decent attempt! Try adding more structure and covering the key points more clearly. Short examples also help improve clarity."

	NoResponseFeedback = "No response was detected. Try explaining your thoughts next time, even if you're unsure. Two or three sentences are enough."
)

// DomainRange is the score range of domain evaluations.
var DomainRange = chain.Range{Min: 0, Max: 100}

// DomainInput is one answer to evaluate against its reference.
type DomainInput struct {
	Question    string `json:"question,omitempty"`
	Answer      string `json:"answer"`
	IdealAnswer string `json:"ideal_answer"`
}

type domainResult struct {
	SimilarityScore float64 `mapstructure:"similarity_score"`
	Feedback        string  `mapstructure:"feedback"`
}

var errMissingScore = errors.New("response has no similarity_score")

// ModelStage asks a language model to grade the answer. The same stage type
// serves as the primary model and as the remote judge.
type ModelStage struct {
	name      string
	tier      chain.Tier
	generator ai.Generator
}

// NewPrimaryStage grades with the primary domain model.
func NewPrimaryStage(g ai.Generator) *ModelStage {
	return &ModelStage{name: "primary-model", tier: chain.TierPrimary, generator: g}
}

// NewJudgeStage grades with the remote judge.
func NewJudgeStage(g ai.Generator) *ModelStage {
	return &ModelStage{name: "remote-judge", tier: chain.TierRemoteJudge, generator: g}
}

func (s *ModelStage) Name() string     { return s.name }
func (s *ModelStage) Tier() chain.Tier { return s.tier }

func (s *ModelStage) Attempt(ctx context.Context, in DomainInput) (chain.Outcome, error) {
	raw, err := s.generator.GenerateContent(ctx, domainSystemPrompt, buildDomainPrompt(in))
	if err != nil {
		return chain.Outcome{}, apperr.Upstream(s.name, err)
	}
	return parseDomainResponse(raw)
}

func parseDomainResponse(raw string) (chain.Outcome, error) {
	obj, err := normalize.ParseObject(raw)
	if err != nil {
		return chain.Outcome{}, apperr.Upstream("parse domain evaluation", err)
	}

	var res domainResult
	resolved, err := normalize.DomainSchema.Decode(obj, &res)
	if err != nil {
		return chain.Outcome{}, apperr.Upstream("decode domain evaluation", err)
	}
	if !resolved.Has("similarity_score") {
		return chain.Outcome{}, apperr.Upstream("decode domain evaluation", errMissingScore)
	}

	return chain.Outcome{Score: res.SimilarityScore, Feedback: res.Feedback}, nil
}

// NeutralOutcome is the domain fallback.
func NeutralOutcome(DomainInput) chain.Outcome {
	return chain.Outcome{Score: NeutralScore, Feedback: NeutralFeedback}
}

func noResponseOutcome() chain.Outcome {
	return chain.Outcome{
		Score:    0,
		Feedback: NoResponseFeedback,
		Tier:     chain.TierLexical,
		Stage:    "empty-answer",
	}
}
