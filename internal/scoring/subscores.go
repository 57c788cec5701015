package scoring

import (
	"strings"

	"github.com/spigell/interview-scorer/internal/normalize"
)

const (
	// DefaultNLPScore is used when the similarity signal is absent or unparseable.
	DefaultNLPScore = 0.5
	// DefaultAffectScore is used for unrecognised or failed emotion and tone analysis.
	DefaultAffectScore = 0.7
	// DefaultPostureScore is used for a posture summary that is present but unrecognised.
	DefaultPostureScore = 0.7

	// percentThreshold separates percentages from fractions in similarity signals.
	percentThreshold = 1.5
)

var affectTable = map[string]float64{
	"happy":   0.9,
	"hap":     0.9,
	"joy":     0.9,
	"excited": 0.9,
	"neutral": 0.8,
	"neu":     0.8,
	"calm":    0.8,
	"sad":     0.6,
	"ang":     0.6,
	"angry":   0.6,
	"fear":    0.6,
}

var (
	emotionLabelKeys = []string{"dominant_emotion", "detected_emotion", "emotion"}
	toneLabelKeys    = []string{"detected_emotion", "dominant_emotion", "tone"}
)

// Signals holds the raw per-modality analyzer results. Any of them may be nil.
type Signals struct {
	NLP     map[string]any `json:"nlp,omitempty"`
	Emotion map[string]any `json:"emotion,omitempty"`
	Tone    map[string]any `json:"tone,omitempty"`
	Posture map[string]any `json:"posture,omitempty"`
}

// SubScores are the per-modality contributions mapped onto [0,1].
// A nil Posture means the posture signal is absent.
type SubScores struct {
	NLP     float64  `json:"nlp"`
	Emotion float64  `json:"emotion"`
	Tone    float64  `json:"tone"`
	Posture *float64 `json:"posture"`
}

// SubScoresFrom maps raw signals onto sub-scores.
func SubScoresFrom(s Signals) SubScores {
	return SubScores{
		NLP:     NLPScore(s.NLP),
		Emotion: EmotionScore(s.Emotion),
		Tone:    ToneScore(s.Tone),
		Posture: PostureScore(s.Posture),
	}
}

// NLPScore maps a similarity signal onto [0,1]. Values above 1.5 are treated as
// percentages.
func NLPScore(nlp map[string]any) float64 {
	s, ok := Similarity(nlp)
	if !ok {
		return DefaultNLPScore
	}
	if s > percentThreshold {
		s /= 100
	}
	return normalize.Clamp(s, 0, 1)
}

// Similarity extracts the raw similarity value (similarity_score or score).
func Similarity(nlp map[string]any) (float64, bool) {
	if nlp == nil {
		return 0, false
	}
	resolved := normalize.DomainSchema.Resolve(nlp)
	if !resolved.Has("similarity_score") {
		return 0, false
	}
	s := normalize.Float(resolved.Values["similarity_score"])
	if !normalize.IsFinite(s) {
		return 0, false
	}
	return s, true
}

// EmotionScore maps a facial emotion result onto [0,1].
func EmotionScore(emotion map[string]any) float64 {
	return affectScore(emotion, emotionLabelKeys)
}

// ToneScore maps a vocal tone result onto [0,1].
func ToneScore(tone map[string]any) float64 {
	return affectScore(tone, toneLabelKeys)
}

func affectScore(result map[string]any, keys []string) float64 {
	if !succeeded(result) {
		return DefaultAffectScore
	}
	label := firstLabel(result, keys)
	if score, ok := affectTable[label]; ok {
		return score
	}
	return DefaultAffectScore
}

// PostureScore maps a posture summary onto [0,1]. It returns nil when the
// analyzer result is missing or reports failure.
func PostureScore(posture map[string]any) *float64 {
	if !succeeded(posture) {
		return nil
	}

	summary := strings.ToLower(normalize.String(posture["summary"]))
	score := DefaultPostureScore
	switch {
	case strings.Contains(summary, "excellent"):
		score = 0.9
	case strings.Contains(summary, "good"):
		score = 0.8
	case strings.Contains(summary, "poor"), strings.Contains(summary, "bad"):
		score = 0.6
	}
	return &score
}

// succeeded treats a missing "success" flag as success, like the analyzers do.
func succeeded(result map[string]any) bool {
	if result == nil {
		return false
	}
	return normalize.Bool(result["success"], true)
}

func firstLabel(result map[string]any, keys []string) string {
	for _, k := range keys {
		if label := strings.ToLower(normalize.String(result[k])); label != "" {
			return label
		}
	}
	return ""
}
