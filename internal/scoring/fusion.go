// Package scoring fuses per-modality sub-scores into one bounded final score and
// a qualitative rating.
package scoring

import (
	"fmt"
	"math"

	"github.com/spigell/interview-scorer/internal/normalize"
)

// Modality names one scoring signal.
type Modality string

const (
	NLP     Modality = "nlp"
	Emotion Modality = "emotion"
	Tone    Modality = "tone"
	Posture Modality = "posture"
)

// Weights maps each modality to its contribution coefficient.
type Weights map[Modality]float64

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// Plain converts the weights to string keys for serialization.
func (w Weights) Plain() map[string]float64 {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[string(k)] = v
	}
	return out
}

// DefaultWeights are the base fusion weights.
func DefaultWeights() Weights {
	return Weights{NLP: 0.65, Emotion: 0.15, Tone: 0.10, Posture: 0.10}
}

// Rating labels.
const (
	RatingExcellent = "Excellent"
	RatingGood      = "Good"
	RatingAverage   = "Average"
	RatingPoor      = "Poor"
)

// Rating maps a [0,1] score onto a qualitative label.
func Rating(score float64) string {
	switch {
	case score >= 0.80:
		return RatingExcellent
	case score >= 0.65:
		return RatingGood
	case score >= 0.45:
		return RatingAverage
	default:
		return RatingPoor
	}
}

// Result is a fused score.
type Result struct {
	FinalScore float64   `json:"final_score"`
	Rating     string    `json:"qualitative_rating"`
	SubScores  SubScores `json:"sub_scores"`
	Weights    Weights   `json:"weights"`
}

// Engine fuses sub-scores with a fixed base weight set.
type Engine struct {
	base Weights
}

// NewEngine validates and normalizes the base weights. A nil map selects the
// defaults. Posture may be omitted; the other modalities are required and the
// weights must be finite and non-negative.
func NewEngine(base Weights) (*Engine, error) {
	if base == nil {
		base = DefaultWeights()
	}

	w := make(Weights, len(base))
	for k, v := range base {
		switch k {
		case NLP, Emotion, Tone, Posture:
		default:
			return nil, fmt.Errorf("unknown modality %q in fusion weights", k)
		}
		if !normalize.IsFinite(v) || v < 0 {
			return nil, fmt.Errorf("fusion weight for %s must be a non-negative number, got %v", k, v)
		}
		w[k] = v
	}

	for _, k := range []Modality{NLP, Emotion, Tone} {
		if _, ok := w[k]; !ok {
			return nil, fmt.Errorf("fusion weight for %s is required", k)
		}
	}

	if w[NLP]+w[Emotion]+w[Tone] <= 0 {
		return nil, fmt.Errorf("fusion weights for nlp, emotion and tone must not all be zero")
	}

	return &Engine{base: renormalize(w)}, nil
}

// Weights returns the effective weights, with posture removed and its share
// redistributed when postureAbsent is true. The result always sums to 1.
func (e *Engine) Weights(postureAbsent bool) Weights {
	w := make(Weights, len(e.base))
	for k, v := range e.base {
		w[k] = v
	}

	if postureAbsent {
		removed := w[Posture]
		delete(w, Posture)
		total := w.Sum()
		for k, v := range w {
			w[k] = v + (v/total)*removed
		}
	}

	return renormalize(w)
}

// Fuse combines the sub-scores into a final score in [0,1].
func (e *Engine) Fuse(s SubScores) Result {
	w := e.Weights(s.Posture == nil)

	final := w[NLP]*clampUnit(s.NLP) + w[Emotion]*clampUnit(s.Emotion) + w[Tone]*clampUnit(s.Tone)
	if s.Posture != nil {
		final += w[Posture] * clampUnit(*s.Posture)
	}
	final = normalize.Clamp(final, 0, 1)

	return Result{
		FinalScore: final,
		Rating:     Rating(final),
		SubScores:  s,
		Weights:    w,
	}
}

// FuseSignals maps raw signals to sub-scores and fuses them.
func (e *Engine) FuseSignals(s Signals) Result {
	return e.Fuse(SubScoresFrom(s))
}

func renormalize(w Weights) Weights {
	total := w.Sum()
	if total <= 0 {
		return w
	}
	for k, v := range w {
		w[k] = v / total
	}
	return w
}

func clampUnit(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return normalize.Clamp(f, 0, 1)
}
