package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/spigell/interview-scorer/internal/ai"
	"github.com/spigell/interview-scorer/internal/apperr"
	"github.com/spigell/interview-scorer/internal/chain"
	"github.com/spigell/interview-scorer/internal/normalize"
	"github.com/spigell/interview-scorer/internal/scoring"
)

// DefaultFeedback is the text of the last-resort feedback outcome.
const DefaultFeedback = "Thank you for your answer! Keep practising: structure your response clearly, cover the key points and support them with a short example."

// FeedbackRange is the score range of feedback outcomes.
var FeedbackRange = chain.Range{Min: 0, Max: 1}

// FeedbackInput carries everything known about one answer when writing feedback.
type FeedbackInput struct {
	Signals scoring.Signals
	Fusion  scoring.Result
	// DomainTier is the tier of the domain evaluation behind the nlp signal,
	// empty when unknown.
	DomainTier     chain.Tier
	DomainFeedback string
}

type feedbackResult struct {
	FinalScore float64 `mapstructure:"final_score"`
	Rating     string  `mapstructure:"qualitative_rating"`
	Feedback   string  `mapstructure:"feedback"`
}

var (
	errNoNLPSignal      = errors.New("nlp signal is missing")
	errDefaultDomainRun = errors.New("domain evaluation fell back to the default outcome")
)

var modalityLabels = []struct {
	modality scoring.Modality
	label    string
	tip      string
}{
	{scoring.NLP, "answer content", "Review the core concept and cover its key points with one short example."},
	{scoring.Emotion, "facial expression", "Keep a relaxed, engaged expression; rehearse once in front of a camera."},
	{scoring.Tone, "vocal tone", "Speak at a steady pace with a calm, confident voice."},
	{scoring.Posture, "posture", "Sit upright, face the camera and keep your shoulders relaxed."},
}

// HeuristicStage writes feedback locally from the sub-scores. It refuses to run
// when there is no concrete domain evaluation to comment on.
type HeuristicStage struct{}

func (HeuristicStage) Name() string     { return "local-heuristic" }
func (HeuristicStage) Tier() chain.Tier { return chain.TierLocalHeuristic }

func (HeuristicStage) Attempt(_ context.Context, in FeedbackInput) (chain.Outcome, error) {
	if _, ok := scoring.Similarity(in.Signals.NLP); !ok {
		return chain.Outcome{}, errNoNLPSignal
	}
	if in.DomainTier == chain.TierDefault {
		return chain.Outcome{}, errDefaultDomainRun
	}

	return chain.Outcome{
		Score:    in.Fusion.FinalScore,
		Rating:   in.Fusion.Rating,
		Feedback: heuristicFeedback(in),
	}, nil
}

func heuristicFeedback(in FeedbackInput) string {
	subs := map[scoring.Modality]*float64{
		scoring.NLP:     &in.Fusion.SubScores.NLP,
		scoring.Emotion: &in.Fusion.SubScores.Emotion,
		scoring.Tone:    &in.Fusion.SubScores.Tone,
		scoring.Posture: in.Fusion.SubScores.Posture,
	}

	var strengths, improvements, plan []string
	for _, m := range modalityLabels {
		score := subs[m.modality]
		if score == nil {
			continue
		}
		switch {
		case *score >= 0.8:
			strengths = append(strengths, m.label)
		case *score < 0.65:
			improvements = append(improvements, m.label)
			plan = append(plan, m.tip)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summary: Overall this answer rates %s with an approximate score of %d%%.",
		in.Fusion.Rating, int(math.Round(in.Fusion.FinalScore*100)))
	if fb := strings.TrimSpace(domainFeedback(in)); fb != "" {
		b.WriteString(" " + fb)
	}

	b.WriteString("\nStrengths: ")
	if len(strengths) == 0 {
		b.WriteString("You completed the question; build on that foundation.")
	} else {
		b.WriteString("Good " + strings.Join(strengths, ", ") + ".")
	}

	b.WriteString("\nImprovements: ")
	if len(improvements) == 0 {
		b.WriteString("No major gaps detected.")
	} else {
		b.WriteString("Work on your " + strings.Join(improvements, ", ") + ".")
	}

	b.WriteString("\nAction plan: ")
	if len(plan) == 0 {
		b.WriteString("Keep practising with timed mock answers to stay consistent.")
	} else {
		b.WriteString(strings.Join(plan, " "))
	}

	return b.String()
}

func domainFeedback(in FeedbackInput) string {
	if in.DomainFeedback != "" {
		return in.DomainFeedback
	}
	if in.Signals.NLP == nil {
		return ""
	}
	return normalize.String(normalize.DomainSchema.Resolve(in.Signals.NLP).Values["feedback"])
}

// WriterStage asks a language model to write the feedback.
type WriterStage struct {
	generator ai.Generator
}

func NewWriterStage(g ai.Generator) *WriterStage {
	return &WriterStage{generator: g}
}

func (s *WriterStage) Name() string     { return "remote-generator" }
func (s *WriterStage) Tier() chain.Tier { return chain.TierRemoteGenerator }

func (s *WriterStage) Attempt(ctx context.Context, in FeedbackInput) (chain.Outcome, error) {
	analysis, err := analysisJSON(in)
	if err != nil {
		return chain.Outcome{}, err
	}

	raw, err := s.generator.GenerateContent(ctx, feedbackSystemPrompt, buildFeedbackPrompt(analysis))
	if err != nil {
		return chain.Outcome{}, apperr.Upstream(s.Name(), err)
	}

	obj, err := normalize.ParseObject(raw)
	if err != nil {
		return chain.Outcome{}, apperr.Upstream("parse feedback", err)
	}

	var res feedbackResult
	resolved, err := normalize.FeedbackSchema.Decode(obj, &res)
	if err != nil {
		return chain.Outcome{}, apperr.Upstream("decode feedback", err)
	}

	// The model only writes the text; score and rating stay the fused ones.
	score := in.Fusion.FinalScore
	if resolved.Has("final_score") && !validUnitScore(res.FinalScore) {
		return chain.Outcome{}, apperr.Upstream("decode feedback", fmt.Errorf("final_score %v outside [0, 1]", res.FinalScore))
	}

	return chain.Outcome{Score: score, Rating: scoring.Rating(score), Feedback: res.Feedback}, nil
}

func analysisJSON(in FeedbackInput) (string, error) {
	payload := map[string]any{
		"nlp_result":         plainOrNil(in.Signals.NLP),
		"emotion_result":     plainOrNil(in.Signals.Emotion),
		"posture_result":     plainOrNil(in.Signals.Posture),
		"tone_result":        plainOrNil(in.Signals.Tone),
		"final_score":        normalize.Plain(in.Fusion.FinalScore),
		"qualitative_rating": in.Fusion.Rating,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal analysis payload: %w", err)
	}
	return string(data), nil
}

func plainOrNil(m map[string]any) any {
	if m == nil {
		return nil
	}
	return normalize.PlainMap(m)
}

// DefaultAggregateOutcome derives the feedback fallback from the nlp signal
// alone.
func DefaultAggregateOutcome(in FeedbackInput) chain.Outcome {
	score := 0.5
	if s, ok := scoring.Similarity(in.Signals.NLP); ok {
		if s > 1 {
			s /= 100
		}
		score = normalize.Clamp(s, 0, 1)
	}

	return chain.Outcome{
		Score:    score,
		Rating:   scoring.Rating(score),
		Feedback: DefaultFeedback,
	}
}

func validUnitScore(f float64) bool {
	return normalize.IsFinite(f) && f >= 0 && f <= 1
}
