package chain

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type stubStage struct {
	name  string
	tier  Tier
	out   Outcome
	err   error
	delay time.Duration
	panic bool

	mu    sync.Mutex
	calls int
}

func (s *stubStage) Name() string { return s.name }
func (s *stubStage) Tier() Tier   { return s.tier }

func (s *stubStage) Attempt(ctx context.Context, _ string) (Outcome, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.panic {
		panic("model exploded")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
	return s.out, s.err
}

func (s *stubStage) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	stages   []string
	outcomes []string
}

func (r *recorder) ObserveStage(_, stage string, ok bool, _ time.Duration) {
	result := "fail"
	if ok {
		result = "ok"
	}
	r.stages = append(r.stages, stage+":"+result)
}

func (r *recorder) ObserveOutcome(_ string, tier string) {
	r.outcomes = append(r.outcomes, tier)
}

var percent = Range{Min: 0, Max: 100}

func neutral(string) Outcome {
	return Outcome{Score: 50, Feedback: "Decent attempt!"}
}

func TestExecuteFirstSuccessWins(t *testing.T) {
	primary := &stubStage{name: "gemini", tier: TierPrimary, out: Outcome{Score: 88, Feedback: "Great"}}
	lexical := &stubStage{name: "lexical", tier: TierLexical, out: Outcome{Score: 40, Feedback: "Fair"}}

	c := New(Config{Name: "domain", Range: percent}, []Stage[string]{primary, lexical}, neutral, zap.NewNop(), nil)
	out := c.Execute(context.Background(), "answer")

	assert.Equal(t, 88.0, out.Score)
	assert.Equal(t, TierPrimary, out.Tier)
	assert.Equal(t, "gemini", out.Stage)
	assert.Equal(t, 0, lexical.Calls())
}

func TestExecuteAdvancesOnEveryKindOfFailure(t *testing.T) {
	tests := []struct {
		name  string
		stage *stubStage
	}{
		{name: "error", stage: &stubStage{err: errors.New("http 503")}},
		{name: "nan score", stage: &stubStage{out: Outcome{Score: math.NaN(), Feedback: "x"}}},
		{name: "out of range", stage: &stubStage{out: Outcome{Score: 140, Feedback: "x"}}},
		{name: "negative", stage: &stubStage{out: Outcome{Score: -1, Feedback: "x"}}},
		{name: "empty feedback", stage: &stubStage{out: Outcome{Score: 70, Feedback: "  "}}},
		{name: "panic", stage: &stubStage{panic: true}},
		{name: "timeout", stage: &stubStage{delay: time.Second, out: Outcome{Score: 70, Feedback: "late"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.stage.name = "first"
			tt.stage.tier = TierPrimary
			next := &stubStage{name: "second", tier: TierLexical, out: Outcome{Score: 61.5, Feedback: "Good"}}

			rec := &recorder{}
			c := New(Config{Name: "domain", Range: percent, StageTimeout: 20 * time.Millisecond},
				[]Stage[string]{tt.stage, next}, neutral, zap.NewNop(), rec)

			out := c.Execute(context.Background(), "answer")

			assert.Equal(t, 1, tt.stage.Calls())
			assert.Equal(t, 1, next.Calls())
			assert.Equal(t, TierLexical, out.Tier)
			assert.Equal(t, 61.5, out.Score)
			assert.Equal(t, []string{"first:fail", "second:ok"}, rec.stages)
			assert.Equal(t, []string{"lexical"}, rec.outcomes)
		})
	}
}

func TestExecuteReturnsDeclaredDefaultWhenAllFail(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)

	stages := []Stage[string]{
		&stubStage{name: "gemini", tier: TierPrimary, err: errors.New("quota")},
		&stubStage{name: "lexical", tier: TierLexical, out: Outcome{Score: 101, Feedback: "bad"}},
		&stubStage{name: "judge", tier: TierRemoteJudge, err: errors.New("unparseable")},
	}

	c := New(Config{Name: "domain", Range: percent}, stages, neutral, zap.New(core), nil)
	out := c.Execute(context.Background(), "answer")

	assert.Equal(t, Outcome{Score: 50, Feedback: "Decent attempt!", Tier: TierDefault, Stage: DefaultStageName}, out)
	assert.Len(t, observed.FilterMessage("stage failed").All(), 3)
	assert.Len(t, observed.FilterMessage("all stages failed, using default outcome").All(), 1)
}

func TestExecuteWithoutStages(t *testing.T) {
	c := New[string](Config{Name: "feedback", Range: Range{Min: 0, Max: 1}}, nil, func(string) Outcome {
		return Outcome{Score: math.NaN(), Feedback: "keep going"}
	}, nil, nil)

	out := c.Execute(context.Background(), "")
	assert.Equal(t, 0.0, out.Score)
	assert.Equal(t, TierDefault, out.Tier)

	c = New[string](Config{Name: "feedback", Range: Range{Min: 0, Max: 1}}, nil, nil, nil, nil)
	out = c.Execute(context.Background(), "")
	assert.Equal(t, 0.0, out.Score)
	assert.Equal(t, TierDefault, out.Tier)
}

func TestExecuteClampsFallback(t *testing.T) {
	c := New[string](Config{Name: "feedback", Range: Range{Min: 0, Max: 1}}, nil, func(string) Outcome {
		return Outcome{Score: 3, Feedback: "x"}
	}, nil, nil)

	assert.Equal(t, 1.0, c.Execute(context.Background(), "").Score)
}

func TestExecuteCancelledParentStillReturnsDefault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	slow := &stubStage{name: "judge", tier: TierRemoteJudge, delay: time.Second, out: Outcome{Score: 90, Feedback: "x"}}
	c := New(Config{Name: "domain", Range: percent, StageTimeout: time.Second}, []Stage[string]{slow}, neutral, nil, nil)

	out := c.Execute(ctx, "answer")
	assert.Equal(t, TierDefault, out.Tier)
	assert.Equal(t, 50.0, out.Score)
}

func TestDescribe(t *testing.T) {
	var nilStage Stage[string]
	c := New(Config{Name: "domain", Range: percent}, []Stage[string]{
		&stubStage{name: "gemini", tier: TierPrimary},
		nilStage,
		&stubStage{name: "lexical", tier: TierLexical},
	}, neutral, nil, nil)

	require.Equal(t, []Status{
		{Name: "gemini", Tier: TierPrimary},
		{Name: "lexical", Tier: TierLexical},
		{Name: DefaultStageName, Tier: TierDefault},
	}, c.Describe())
	assert.Equal(t, "domain", c.Name())
}
