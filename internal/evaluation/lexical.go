package evaluation

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/spigell/interview-scorer/internal/chain"
)

var stopWords = toSet(`a about above after again against all am an and any are as at be because been
before being below between both but by can could did do does doing down during each few for from
further had has have having he her here hers herself him himself his how i if in into is it its
itself just me more most my myself no nor not now of off on once only or other our ours ourselves
out over own same she should so some such than that the their theirs them themselves then there
these they this those through to too under until up very was we were what when where which while
who whom why will with would you your yours yourself yourselves`)

func toSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// Lexical band feedback.
const (
	LexicalExcellent = "Excellent"
	LexicalGood      = "Good"
	LexicalFair      = "Fair: add key points"
	LexicalWeak      = "Weak: revise core concept"
)

// LexicalFeedback maps a 0-100 similarity onto its band text.
func LexicalFeedback(percent float64) string {
	switch {
	case percent > 80:
		return LexicalExcellent
	case percent > 60:
		return LexicalGood
	case percent > 40:
		return LexicalFair
	default:
		return LexicalWeak
	}
}

// Similarity returns the bag-of-words cosine similarity of a and b as a
// percentage rounded to two decimals. Stop words are ignored; empty input
// yields 0.
func Similarity(a, b string) float64 {
	va, vb := termFrequencies(a), termFrequencies(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}

	var dot, na, nb float64
	for term, x := range va {
		na += x * x
		if y, ok := vb[term]; ok {
			dot += x * y
		}
	}
	for _, y := range vb {
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}

	cosine := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Round(cosine*100*100) / 100
}

func termFrequencies(text string) map[string]float64 {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tf := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopWords[tok]; stop {
			continue
		}
		tf[tok]++
	}
	return tf
}

// LexicalStage scores the answer by word overlap with the ideal answer. It runs
// locally and cannot fail.
type LexicalStage struct{}

func (LexicalStage) Name() string     { return "lexical" }
func (LexicalStage) Tier() chain.Tier { return chain.TierLexical }

func (LexicalStage) Attempt(_ context.Context, in DomainInput) (chain.Outcome, error) {
	percent := Similarity(in.Answer, in.IdealAnswer)
	return chain.Outcome{Score: percent, Feedback: LexicalFeedback(percent)}, nil
}
